package server

import (
	"encoding/hex"
	"net/http"

	"intentvault/native/vault"
)

type adminRequest struct {
	AttachedDeposit string `json:"attached_deposit,omitempty"`
	Account         string `json:"account_id,omitempty"`
	Codehash        string `json:"codehash,omitempty"`
	Code            []byte `json:"code,omitempty"`
	Paused          *bool  `json:"paused,omitempty"`
	Owner           string `json:"owner_id,omitempty"`
	Shares          string `json:"shares,omitempty"`
	Address         string `json:"address,omitempty"`
}

// admin decodes an owner call and runs fn inside it. fn returns the response
// payload.
func (s *Server) admin(w http.ResponseWriter, r *http.Request, method string, fn func(*vault.Engine, adminRequest) (interface{}, error)) {
	var req adminRequest
	if err := decodeRequest(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	call, err := callFrom(r, req.AttachedDeposit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var payload interface{}
	err = s.host.Execute(r.Context(), method, call, func(engine *vault.Engine) error {
		var err error
		payload, err = fn(engine, req)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("vault admin call",
		"method", method,
		"caller", call.Predecessor,
		"request_id", requestID(r))
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleApproveCodehash(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "approve_codehash", func(engine *vault.Engine, req adminRequest) (interface{}, error) {
		if err := engine.ApproveCodehash(req.Codehash); err != nil {
			return nil, err
		}
		return map[string]string{"codehash": req.Codehash}, nil
	})
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "register_agent", func(engine *vault.Engine, req adminRequest) (interface{}, error) {
		agent, err := engine.RegisterAgent(req.Account, req.Codehash)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"account_id":    agent.Account,
			"codehash":      hex.EncodeToString(agent.CodeHash),
			"registered_at": agent.RegisteredAt,
		}, nil
	})
}

func (s *Server) handleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "remove_agent", func(engine *vault.Engine, req adminRequest) (interface{}, error) {
		if err := engine.RemoveAgent(req.Account); err != nil {
			return nil, err
		}
		return map[string]string{"account_id": req.Account}, nil
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "upgrade", func(engine *vault.Engine, req adminRequest) (interface{}, error) {
		hash, err := engine.UpgradeCode(req.Code)
		if err != nil {
			return nil, err
		}
		return map[string]string{"codehash": hex.EncodeToString(hash)}, nil
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "set_paused", func(engine *vault.Engine, req adminRequest) (interface{}, error) {
		paused := true
		if req.Paused != nil {
			paused = *req.Paused
		}
		if err := engine.SetPaused(paused); err != nil {
			return nil, err
		}
		return map[string]bool{"paused": paused}, nil
	})
}

func (s *Server) handleSetOwner(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "set_owner", func(engine *vault.Engine, req adminRequest) (interface{}, error) {
		if err := engine.SetOwner(req.Owner); err != nil {
			return nil, err
		}
		return map[string]string{"owner_id": req.Owner}, nil
	})
}

func (s *Server) handleBridgeEVM(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "redeem_to_evm", func(engine *vault.Engine, req adminRequest) (interface{}, error) {
		shares, err := parseAmount("shares", req.Shares)
		if err != nil {
			return nil, err
		}
		result, err := engine.RedeemToEVM(shares, req.Address)
		if err != nil {
			return nil, err
		}
		return redeemViewFrom(result), nil
	})
}

func (s *Server) handleBridgeSolana(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "redeem_to_solana", func(engine *vault.Engine, req adminRequest) (interface{}, error) {
		shares, err := parseAmount("shares", req.Shares)
		if err != nil {
			return nil, err
		}
		result, err := engine.RedeemToSolana(shares, req.Address)
		if err != nil {
			return nil, err
		}
		return redeemViewFrom(result), nil
	})
}
