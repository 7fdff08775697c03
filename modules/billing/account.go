package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/promptdesk/pkg/credits"
	"github.com/dmitrymomot/promptdesk/pkg/generate"
	"github.com/dmitrymomot/promptdesk/pkg/logger"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
	"github.com/dmitrymomot/promptdesk/pkg/tiers"
)

type meResponse struct {
	ID           uuid.UUID               `json:"id"`
	Email        string                  `json:"email,omitempty"`
	Name         string                  `json:"name,omitempty"`
	Subscription subscription.Resolution `json:"subscription"`
}

func (m *Module) me(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	writeData(w, http.StatusOK, meResponse{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		Subscription: m.Resolver.Resolve(r.Context(), user),
	})
}

func (m *Module) deleteMe(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if err := m.Accounts.DeleteUser(r.Context(), user.ID); err != nil {
		m.log.ErrorContext(r.Context(), "failed to delete user", logger.UserID(user.ID), logger.Error(err))
		writeError(w, err)
		return
	}
	m.log.InfoContext(r.Context(), "user deleted", logger.UserID(user.ID))
	w.WriteHeader(http.StatusNoContent)
}

type creditsResponse struct {
	Tier tiers.Tier `json:"tier"`
	credits.Balance
}

func (m *Module) credits(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	tier := m.Resolver.Resolve(r.Context(), user).Tier

	balance, err := m.Balances.Remaining(r.Context(), user.ID, tier)
	if err != nil {
		m.log.ErrorContext(r.Context(), "failed to read balance", logger.UserID(user.ID), logger.Error(err))
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, creditsResponse{Tier: tier, Balance: balance})
}

type generateRequest struct {
	Tool  generate.ToolID `json:"tool" validate:"required"`
	Input string          `json:"input" validate:"required"`
	Tone  string          `json:"tone,omitempty"`
}

func (m *Module) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := m.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user := userFrom(r.Context())
	tier := m.Resolver.Resolve(r.Context(), user).Tier

	resp, err := m.Generator.Generate(r.Context(), generate.Request{
		UserID: user.ID,
		Tier:   tier,
		Tool:   req.Tool,
		Input:  req.Input,
		Tone:   req.Tone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

func (m *Module) listTools(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, generate.Tools())
}

// decode reads a JSON body into v and validates it.
func (m *Module) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrInvalidJSON, err)
	}
	if err := m.validate.Struct(v); err != nil {
		return errors.Join(ErrValidation, err)
	}
	return nil
}
