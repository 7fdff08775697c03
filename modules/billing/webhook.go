package billing

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/promptdesk/pkg/logger"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
)

type webhookResponse struct {
	Outcome        subscription.Outcome   `json:"outcome"`
	Kind           subscription.EventKind `json:"kind,omitempty"`
	SubscriptionID string                 `json:"subscription_id,omitempty"`
	UserID         *uuid.UUID             `json:"user_id,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
}

// paddleWebhook answers 2xx for every processed event, rejected ones included,
// so the provider only redelivers on signature, payload or storage failures.
func (m *Module) paddleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, m.maxWebhookBody))
	if err != nil {
		writeError(w, errors.Join(subscription.ErrInvalidPayload, err))
		return
	}

	res, err := m.Webhooks.HandleWebhook(r.Context(), payload, r.Header.Get(subscription.PaddleSignatureHeader))
	if err != nil {
		m.log.WarnContext(r.Context(), "webhook not processed", logger.Error(err))
		writeError(w, err)
		return
	}

	body := webhookResponse{
		Outcome:        res.Outcome,
		Kind:           res.Kind,
		SubscriptionID: res.SubscriptionID,
	}
	if res.UserID != uuid.Nil {
		body.UserID = &res.UserID
	}
	if res.Reason != nil {
		body.Reason = res.Reason.Error()
	}
	writeData(w, http.StatusOK, body)
}
