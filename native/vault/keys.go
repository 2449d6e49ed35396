package vault

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	vaultStateKey      = []byte("vault/state")
	shareSupplyKey     = []byte("vault/shares/supply")
	openOperationsKey  = []byte("vault/ops/open")
	agentIndexKey      = []byte("vault/agents")
	shareBalancePrefix = []byte("vault/shares/balance/")
	intentPrefix       = []byte("vault/intent/")
	depositHashPrefix  = []byte("vault/intent-hash/")
	solverIndexPrefix  = []byte("vault/solver/")
	redemptionPrefix   = []byte("vault/redemption/")
	operationPrefix    = []byte("vault/op/")
	codehashPrefix     = []byte("vault/codehash/")
	agentPrefix        = []byte("vault/agent/")
	quotaPrefix        = []byte("vault/quota/")
)

func hashedKey(prefix []byte, id string) []byte {
	buf := make([]byte, len(prefix)+len(id))
	copy(buf, prefix)
	copy(buf[len(prefix):], id)
	return ethcrypto.Keccak256(buf)
}

func indexedKey(prefix []byte, index uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], index)
	return key
}

func shareBalanceKey(account string) []byte { return hashedKey(shareBalancePrefix, account) }

func intentKey(index uint64) []byte { return indexedKey(intentPrefix, index) }

func depositHashKey(hash string) []byte { return hashedKey(depositHashPrefix, hash) }

func solverIndexKey(solver string) []byte { return hashedKey(solverIndexPrefix, solver) }

func redemptionKey(index uint64) []byte { return indexedKey(redemptionPrefix, index) }

func operationKey(id uint64) []byte { return indexedKey(operationPrefix, id) }

func codehashKey(hash []byte) []byte {
	key := make([]byte, len(codehashPrefix)+len(hash))
	copy(key, codehashPrefix)
	copy(key[len(codehashPrefix):], hash)
	return key
}

func agentKey(account string) []byte { return hashedKey(agentPrefix, account) }

func quotaKey(solver string) []byte { return hashedKey(quotaPrefix, solver) }
