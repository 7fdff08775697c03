package billing

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/promptdesk/pkg/logger"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
)

type checkoutRequest struct {
	PriceID    string `json:"price_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"omitempty,url"`
}

func (m *Module) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := m.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, ok := m.Catalog.TierForPriceID(req.PriceID); !ok {
		writeError(w, ErrUnknownPrice)
		return
	}

	user := userFrom(r.Context())
	link, err := m.Links.CreateCheckoutLink(r.Context(), subscription.CheckoutRequest{
		PriceID:    req.PriceID,
		UserID:     user.ID,
		CustomerID: user.BillingCustomerID,
		Email:      user.Email,
		SuccessURL: req.SuccessURL,
	})
	if err != nil {
		m.log.ErrorContext(r.Context(), "checkout link failed",
			logger.UserID(user.ID), logger.PriceID(req.PriceID), logger.Error(err))
		writeError(w, errors.Join(ErrProvider, err))
		return
	}
	writeData(w, http.StatusOK, link)
}

func (m *Module) portal(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if user.BillingCustomerID == "" {
		writeError(w, ErrNoBillingAccount)
		return
	}

	link, err := m.Links.GetCustomerPortalLink(r.Context(), user.BillingCustomerID, user.SubscriptionID)
	if err != nil {
		m.log.ErrorContext(r.Context(), "portal link failed",
			logger.UserID(user.ID), logger.CustomerID(user.BillingCustomerID), logger.Error(err))
		writeError(w, errors.Join(ErrProvider, err))
		return
	}
	writeData(w, http.StatusOK, link)
}
