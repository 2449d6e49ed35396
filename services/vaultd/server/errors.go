package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"intentvault/native/asset"
	nativecommon "intentvault/native/common"
	"intentvault/native/vault"
)

var (
	errUnauthenticated = errors.New("authenticated caller required")
	errBadRequest      = errors.New("bad request")
	errNotFound        = errors.New("not found")
)

var statusTable = []struct {
	err    error
	status int
}{
	{errUnauthenticated, http.StatusUnauthorized},
	{errBadRequest, http.StatusBadRequest},
	{errNotFound, http.StatusNotFound},

	{vault.ErrUnauthorized, http.StatusForbidden},
	{vault.ErrCodehashNotApproved, http.StatusForbidden},
	{vault.ErrAttachedDeposit, http.StatusBadRequest},
	{vault.ErrInvalidAmount, http.StatusBadRequest},
	{vault.ErrInvalidAccount, http.StatusBadRequest},
	{vault.ErrInvalidMessage, http.StatusBadRequest},
	{vault.ErrInvalidDepositHash, http.StatusBadRequest},
	{vault.ErrInvalidAddress, http.StatusBadRequest},
	{vault.ErrInvalidParams, http.StatusBadRequest},
	{vault.ErrSlippage, http.StatusBadRequest},
	{vault.ErrZeroShares, http.StatusBadRequest},
	{vault.ErrRepaymentTooLow, http.StatusBadRequest},
	{vault.ErrIntentNotFound, http.StatusNotFound},
	{vault.ErrDuplicateDepositHash, http.StatusConflict},
	{vault.ErrIntentNotBorrowed, http.StatusConflict},
	{vault.ErrRedemptionsPending, http.StatusConflict},
	{vault.ErrBridgeNotConfigured, http.StatusConflict},
	{vault.ErrInsufficientLiquidity, http.StatusServiceUnavailable},
	{vault.ErrInsufficientShares, http.StatusUnprocessableEntity},
	{vault.ErrNothingToWithdraw, http.StatusUnprocessableEntity},
	{vault.ErrOverflow, http.StatusUnprocessableEntity},
	{vault.ErrUnderflow, http.StatusUnprocessableEntity},
	{vault.ErrPaused, http.StatusLocked},
	{nativecommon.ErrModulePaused, http.StatusLocked},
	{nativecommon.ErrQuotaRequestsExceeded, http.StatusTooManyRequests},
	{nativecommon.ErrQuotaAmountExceeded, http.StatusTooManyRequests},

	{asset.ErrInvalidAmount, http.StatusBadRequest},
	{asset.ErrInvalidAccount, http.StatusBadRequest},
	{asset.ErrSelfTransfer, http.StatusBadRequest},
	{asset.ErrNotRegistered, http.StatusNotFound},
	{asset.ErrInsufficientBalance, http.StatusUnprocessableEntity},
}

// statusFor maps an engine or ledger error onto an HTTP status.
func statusFor(err error) int {
	for _, entry := range statusTable {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := ""
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	if status == http.StatusInternalServerError || message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("vaultd request failed",
			"path", r.URL.Path,
			"request_id", requestID(r),
			"error", err)
	}
	writeJSONError(w, status, err)
}
