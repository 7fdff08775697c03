package billing

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/promptdesk/pkg/generate"
	"github.com/dmitrymomot/promptdesk/pkg/identity"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// errorMapping is checked in order; the first match wins.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{identity.ErrMissingToken, http.StatusUnauthorized, "unauthorized"},
	{identity.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
	{ErrInvalidJSON, http.StatusBadRequest, "invalid_json"},
	{ErrValidation, http.StatusUnprocessableEntity, "validation_error"},
	{generate.ErrInvalidRequest, http.StatusUnprocessableEntity, "validation_error"},
	{generate.ErrUnknownTool, http.StatusUnprocessableEntity, "unknown_tool"},
	{ErrUnknownPrice, http.StatusUnprocessableEntity, "unknown_price"},
	{generate.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits"},
	{ErrNoBillingAccount, http.StatusConflict, "no_billing_account"},
	{subscription.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{subscription.ErrWebhookVerificationFailed, http.StatusUnauthorized, "invalid_signature"},
	{subscription.ErrInvalidPayload, http.StatusBadRequest, "invalid_payload"},
	{generate.ErrCompletionFailed, http.StatusBadGateway, "generation_failed"},
	{generate.ErrEmptyCompletion, http.StatusBadGateway, "generation_failed"},
	{ErrProvider, http.StatusBadGateway, "provider_error"},
}

// writeError maps err to a status and a public message. Unknown errors become 500
// without leaking their text.
func writeError(w http.ResponseWriter, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			detail := &ErrorDetail{Code: m.code, Message: m.err.Error()}
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				detail.Fields = fieldErrors(verrs)
			}
			writeJSON(w, m.status, Envelope{Error: detail})
			return
		}
	}
	writeJSON(w, http.StatusInternalServerError, Envelope{Error: &ErrorDetail{
		Code:    "internal_error",
		Message: ErrInternal.Error(),
	}})
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
