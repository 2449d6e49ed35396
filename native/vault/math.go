package vault

import (
	"math/big"

	"github.com/holiman/uint256"
)

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// MaxU128 returns the largest representable amount.
func MaxU128() *big.Int { return new(big.Int).Set(maxU128) }

func zero() *big.Int { return new(big.Int) }

func clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func checkU128(v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return ErrUnderflow
	}
	if v.Cmp(maxU128) > 0 {
		return ErrOverflow
	}
	return nil
}

// MulDiv computes x*y/denominator with a 256-bit intermediate product so the
// multiplication cannot overflow for 128-bit operands. The result must fit in
// 128 bits.
func MulDiv(x, y, denominator *big.Int, rounding Rounding) (*big.Int, error) {
	if denominator == nil || denominator.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	for _, v := range []*big.Int{x, y, denominator} {
		if err := checkU128(v); err != nil {
			return nil, err
		}
	}
	ux, _ := uint256.FromBig(x)
	uy, _ := uint256.FromBig(y)
	ud, _ := uint256.FromBig(denominator)

	quotient, overflow := new(uint256.Int).MulDivOverflow(ux, uy, ud)
	if overflow {
		return nil, ErrOverflow
	}
	if rounding == RoundUp && !new(uint256.Int).MulMod(ux, uy, ud).IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	out := quotient.ToBig()
	if out.Cmp(maxU128) > 0 {
		return nil, ErrOverflow
	}
	return out, nil
}

func add128(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Add(clone(a), clone(b))
	if out.Cmp(maxU128) > 0 {
		return nil, ErrOverflow
	}
	return out, nil
}

func sub128(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Sub(clone(a), clone(b))
	if out.Sign() < 0 {
		return nil, ErrUnderflow
	}
	return out, nil
}

func mul128(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Mul(clone(a), clone(b))
	if out.Cmp(maxU128) > 0 {
		return nil, ErrOverflow
	}
	return out, nil
}

func saturatingAdd(a, b *big.Int) *big.Int {
	out := new(big.Int).Add(clone(a), clone(b))
	if out.Cmp(maxU128) > 0 {
		return new(big.Int).Set(maxU128)
	}
	return out
}

func saturatingSub(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(clone(a), clone(b))
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}

// atLeastOne guards denominators.
func atLeastOne(v *big.Int) *big.Int {
	if v == nil || v.Sign() <= 0 {
		return big.NewInt(1)
	}
	return v
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// pow10 returns 10^n or ErrOverflow when it exceeds 128 bits.
func pow10(n uint8) (*big.Int, error) {
	out := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	if out.Cmp(maxU128) > 0 {
		return nil, ErrOverflow
	}
	return out, nil
}
