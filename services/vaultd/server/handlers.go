package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"intentvault/native/asset"
	"intentvault/native/vault"
	"intentvault/services/vaultd/middleware"
)

type vaultView struct {
	Owner             string `json:"owner"`
	Account           string `json:"account"`
	Asset             string `json:"asset"`
	ShareDecimals     uint8  `json:"share_decimals"`
	ExtraDecimals     uint8  `json:"extra_decimals"`
	TotalAssets       string `json:"total_assets"`
	TotalDeposits     string `json:"total_deposits"`
	TotalSupply       string `json:"total_supply"`
	TotalBorrowed     string `json:"total_borrowed"`
	ExpectedYield     string `json:"expected_yield"`
	IntentCount       uint64 `json:"intent_count"`
	QueueHead         uint64 `json:"queue_head"`
	QueueLength       uint64 `json:"queue_length"`
	OpenOperations    int    `json:"open_operations"`
	PendingSettlement int    `json:"pending_settlement"`
	Paused            bool   `json:"paused"`
	CodeVersion       uint64 `json:"code_version"`
}

type intentView struct {
	Index             uint64  `json:"index"`
	Solver            string  `json:"solver"`
	Created           uint64  `json:"created"`
	State             string  `json:"state"`
	IntentData        string  `json:"intent_data"`
	UserDepositHash   string  `json:"user_deposit_hash"`
	BorrowAmount      string  `json:"borrow_amount"`
	BorrowTotalSupply string  `json:"borrow_total_supply"`
	RepaymentAmount   *string `json:"repayment_amount,omitempty"`
}

type redeemView struct {
	Queued      bool    `json:"queued"`
	QueueIndex  *uint64 `json:"queue_index,omitempty"`
	OperationID uint64  `json:"operation_id,omitempty"`
	Assets      string  `json:"assets"`
	Shares      string  `json:"shares"`
}

type redemptionView struct {
	Index    uint64 `json:"index"`
	Owner    string `json:"owner"`
	Receiver string `json:"receiver"`
	Shares   string `json:"shares"`
	Memo     string `json:"memo,omitempty"`
}

func intentViewFrom(intent *vault.Intent) intentView {
	view := intentView{
		Index:             intent.Index,
		Solver:            intent.Solver,
		Created:           intent.Created,
		State:             intent.State.String(),
		IntentData:        intent.IntentData,
		UserDepositHash:   intent.UserDepositHash,
		BorrowAmount:      formatAmount(intent.BorrowAmount),
		BorrowTotalSupply: formatAmount(intent.BorrowTotalSupply),
	}
	if intent.RepaymentAmount != nil {
		repaid := intent.RepaymentAmount.String()
		view.RepaymentAmount = &repaid
	}
	return view
}

func intentViews(intents []*vault.Intent) []intentView {
	out := make([]intentView, 0, len(intents))
	for _, intent := range intents {
		out = append(out, intentViewFrom(intent))
	}
	return out
}

func redeemViewFrom(result *vault.RedeemResult) redeemView {
	view := redeemView{
		Queued:      result.Queued,
		OperationID: result.OperationID,
		Assets:      formatAmount(result.Assets),
		Shares:      formatAmount(result.Shares),
	}
	if result.Queued {
		index := result.QueueIndex
		view.QueueIndex = &index
	}
	return view
}

func decodeRequest(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body required", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// decodeOptional is decodeRequest for endpoints whose body may be empty.
func decodeOptional(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func parseAmount(field, value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: %s required", errBadRequest, field)
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, field)
	}
	return amount, nil
}

func parseOptionalAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return parseAmount(field, value)
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func parseUintQuery(r *http.Request, name string) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return value, nil
}

func callerFrom(r *http.Request) (string, error) {
	caller := strings.TrimSpace(middleware.Caller(r.Context()))
	if caller == "" {
		return "", errUnauthenticated
	}
	return caller, nil
}

// callFrom builds the engine call context for the authenticated caller.
func callFrom(r *http.Request, attached string) (vault.Call, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return vault.Call{}, err
	}
	deposit, err := parseOptionalAmount("attached_deposit", attached)
	if err != nil {
		return vault.Call{}, err
	}
	return vault.Call{Predecessor: caller, AttachedDeposit: deposit}, nil
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	var view vaultView
	err := s.host.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		summary, err := engine.Summary()
		if err != nil {
			return err
		}
		meta, err := engine.Metadata()
		if err != nil {
			return err
		}
		view = vaultView{
			Owner:          summary.Owner,
			Account:        s.host.VaultAccount(),
			Asset:          summary.Asset,
			ShareDecimals:  meta.Decimals,
			ExtraDecimals:  summary.ExtraDecimals,
			TotalAssets:    formatAmount(summary.TotalAssets),
			TotalDeposits:  formatAmount(summary.TotalDeposits),
			TotalSupply:    formatAmount(summary.TotalSupply),
			TotalBorrowed:  formatAmount(summary.TotalBorrowed),
			ExpectedYield:  formatAmount(summary.ExpectedYield),
			IntentCount:    summary.IntentCount,
			QueueHead:      summary.QueueHead,
			QueueLength:    summary.QueueLength,
			OpenOperations: summary.OpenOperations,
			Paused:         summary.Paused,
			CodeVersion:    summary.CodeVersion,
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view.PendingSettlement = s.host.Pending()
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleShares(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(chi.URLParam(r, "account"))
	payload := map[string]string{"account": account}
	err := s.host.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		balance, err := engine.BalanceOf(account)
		if err != nil {
			return err
		}
		queued, err := engine.QueuedShares(account)
		if err != nil {
			return err
		}
		entitlement := &vault.Entitlement{}
		if balance.Sign() > 0 {
			if entitlement, err = engine.CalculateLenderEntitlement(balance); err != nil {
				return err
			}
		}
		payload["shares"] = balance.String()
		payload["queued_shares"] = formatAmount(queued)
		payload["deposit_value"] = formatAmount(entitlement.DepositValue)
		payload["premium_value"] = formatAmount(entitlement.PremiumValue)
		payload["total_value"] = formatAmount(entitlement.TotalValue)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleAssetBalance(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(chi.URLParam(r, "account"))
	var balance *big.Int
	err := s.host.View(func(_ *vault.Engine, ledger *asset.Ledger) error {
		registered, err := ledger.IsRegistered(account)
		if err != nil {
			return err
		}
		if !registered {
			return fmt.Errorf("%w: %s", asset.ErrNotRegistered, account)
		}
		balance, err = ledger.BalanceOf(account)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account,
		"asset":   s.host.AssetID(),
		"balance": balance.String(),
	})
}

func (s *Server) handleIntents(w http.ResponseWriter, r *http.Request) {
	offset, err := parseUintQuery(r, "offset")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := parseUintQuery(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if limit == 0 || limit > 500 {
		limit = 100
	}
	var intents []*vault.Intent
	err = s.host.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		var err error
		intents, err = engine.Intents(offset, limit)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"intents": intentViews(intents)})
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: invalid intent index", errBadRequest))
		return
	}
	var intent *vault.Intent
	err = s.host.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		var err error
		intent, err = engine.GetIntent(index)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intentViewFrom(intent))
}

func (s *Server) handleSolverIntents(w http.ResponseWriter, r *http.Request) {
	solver := strings.TrimSpace(chi.URLParam(r, "account"))
	var intents []*vault.Intent
	err := s.host.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		var err error
		intents, err = engine.IntentsBySolver(solver)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"solver": solver, "intents": intentViews(intents)})
}

func (s *Server) handleRedemptions(w http.ResponseWriter, r *http.Request) {
	offset, err := parseUintQuery(r, "offset")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := parseUintQuery(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var (
		head, length uint64
		entries      []vault.QueuedRedemption
	)
	err = s.host.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		var err error
		if head, err = engine.QueueHead(); err != nil {
			return err
		}
		if length, err = engine.QueueLength(); err != nil {
			return err
		}
		entries, err = engine.PendingRedemptions(offset, limit)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]redemptionView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, redemptionView{
			Index:    entry.Index,
			Owner:    entry.Owner,
			Receiver: entry.Receiver,
			Shares:   formatAmount(entry.Shares),
			Memo:     entry.Memo,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"head":    head,
		"length":  length,
		"entries": views,
	})
}

func (s *Server) handlePreviewDeposit(w http.ResponseWriter, r *http.Request) {
	assets, err := parseAmount("assets", r.URL.Query().Get("assets"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var shares *big.Int
	err = s.host.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		var err error
		shares, err = engine.SharesForDeposit(assets)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"assets": assets.String(), "shares": shares.String()})
}

func (s *Server) handlePreviewWithdraw(w http.ResponseWriter, r *http.Request) {
	assets, err := parseAmount("assets", r.URL.Query().Get("assets"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var shares *big.Int
	err = s.host.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		var err error
		shares, err = engine.SharesForWithdraw(assets)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"assets": assets.String(), "shares": shares.String()})
}

type shareTransferRequest struct {
	Receiver        string `json:"receiver_id"`
	Amount          string `json:"amount"`
	Memo            string `json:"memo,omitempty"`
	AttachedDeposit string `json:"attached_deposit,omitempty"`
}

func (s *Server) handleShareTransfer(w http.ResponseWriter, r *http.Request) {
	var req shareTransferRequest
	if err := decodeRequest(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	call, err := callFrom(r, req.AttachedDeposit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.host.Execute(r.Context(), "ft_transfer", call, func(engine *vault.Engine) error {
		return engine.TransferShares(req.Receiver, amount, req.Memo)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"receiver_id": req.Receiver, "amount": amount.String()})
}

type assetRegisterRequest struct {
	Account string `json:"account_id,omitempty"`
}

func (s *Server) handleAssetRegister(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req assetRegisterRequest
	if err := decodeOptional(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	account := strings.TrimSpace(req.Account)
	if account == "" {
		account = caller
	}
	if err := s.host.RegisterAccount(r.Context(), account); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account_id": account})
}

type assetTransferRequest struct {
	Receiver string `json:"receiver_id"`
	Amount   string `json:"amount"`
	Memo     string `json:"memo,omitempty"`
	Msg      string `json:"msg,omitempty"`
}

func (s *Server) handleAssetTransfer(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req assetTransferRequest
	if err := decodeRequest(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.host.Transfer(r.Context(), caller, req.Receiver, amount, req.Memo); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"receiver_id": req.Receiver, "amount": amount.String()})
}

func (s *Server) handleAssetTransferCall(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req assetTransferRequest
	if err := decodeRequest(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	receiver := strings.TrimSpace(req.Receiver)
	if receiver == "" {
		receiver = s.host.VaultAccount()
	}
	result, err := s.host.TransferCall(r.Context(), caller, receiver, amount, req.Memo, req.Msg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	payload := map[string]string{
		"receiver_id": receiver,
		"used":        formatAmount(result.Used),
		"refunded":    formatAmount(result.Refunded),
	}
	if result.ReceiverErr != nil {
		payload["rejected"] = result.ReceiverErr.Error()
	}
	writeJSON(w, http.StatusOK, payload)
}

type newIntentRequest struct {
	IntentData           string `json:"intent_data"`
	SolverDepositAddress string `json:"solver_deposit_address"`
	UserDepositHash      string `json:"user_deposit_hash"`
	Amount               string `json:"amount,omitempty"`
}

func (s *Server) handleNewIntent(w http.ResponseWriter, r *http.Request) {
	var req newIntentRequest
	if err := decodeRequest(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	call, err := callFrom(r, "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseOptionalAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var opID uint64
	err = s.host.Execute(r.Context(), "new_intent", call, func(engine *vault.Engine) error {
		var err error
		opID, err = engine.NewIntent(vault.NewIntentRequest{
			IntentData:           req.IntentData,
			SolverDepositAddress: req.SolverDepositAddress,
			UserDepositHash:      req.UserDepositHash,
			Amount:               amount,
		})
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]uint64{"operation_id": opID})
}

type redeemRequest struct {
	Shares   string `json:"shares,omitempty"`
	Assets   string `json:"assets,omitempty"`
	Receiver string `json:"receiver_id,omitempty"`
	Memo     string `json:"memo,omitempty"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeRequest(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.redeem(w, r, "redeem", func(engine *vault.Engine) (*vault.RedeemResult, error) {
		return engine.Redeem(shares, req.Receiver, req.Memo)
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeRequest(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	assets, err := parseAmount("assets", req.Assets)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.redeem(w, r, "withdraw", func(engine *vault.Engine) (*vault.RedeemResult, error) {
		return engine.Withdraw(assets, req.Receiver, req.Memo)
	})
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request, method string, fn func(*vault.Engine) (*vault.RedeemResult, error)) {
	call, err := callFrom(r, "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var result *vault.RedeemResult
	err = s.host.Execute(r.Context(), method, call, func(engine *vault.Engine) error {
		var err error
		result, err = fn(engine)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, redeemViewFrom(result))
}

type processRequest struct {
	MaxSteps int `json:"max_steps,omitempty"`
}

func (s *Server) handleProcessRedemptions(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeOptional(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	call, err := callFrom(r, "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var processed int
	err = s.host.Execute(r.Context(), "process_redemption_queue", call, func(engine *vault.Engine) error {
		var err error
		processed, err = engine.ProcessRedemptionQueue(req.MaxSteps)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	var agents []*vault.Agent
	err := s.host.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		var err error
		agents, err = engine.Agents()
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(agents))
	for _, agent := range agents {
		out = append(out, map[string]interface{}{
			"account_id":    agent.Account,
			"codehash":      hex.EncodeToString(agent.CodeHash),
			"registered_at": agent.RegisteredAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": out})
}
