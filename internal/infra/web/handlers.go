package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/usecase"
	"bookmarks-billing/internal/infra/metrics"
)

type subscriptionView struct {
	ID              string     `json:"id"`
	UserEmail       string     `json:"userEmail"`
	PlanType        string     `json:"planType"`
	BillingCycle    string     `json:"billingCycle"`
	Status          string     `json:"status"`
	Active          bool       `json:"active"`
	StartTime       time.Time  `json:"startTime"`
	ExpireTime      time.Time  `json:"expireTime"`
	AutoRenew       bool       `json:"autoRenew"`
	NextBillingDate *time.Time `json:"nextBillingDate,omitempty"`
	PaymentMethod   string     `json:"paymentMethod"`
	Provider        string     `json:"provider"`
	LastOrderID     string     `json:"lastOrderId"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type transactionView struct {
	ID             string    `json:"id"`
	SubscriptionID *string   `json:"subscriptionId,omitempty"`
	Provider       string    `json:"provider"`
	ExternalTxnID  string    `json:"externalTxnId"`
	GrossAmount    int64     `json:"grossAmount"`
	Fee            int64     `json:"fee"`
	NetAmount      int64     `json:"netAmount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	PaymentTime    time.Time `json:"paymentTime"`
	PlanType       string    `json:"planType,omitempty"`
	BillingCycle   string    `json:"billingCycle,omitempty"`
}

func toSubscriptionView(s *model.Subscription) subscriptionView {
	return subscriptionView{
		ID:              s.ID,
		UserEmail:       s.UserEmail,
		PlanType:        string(s.PlanType),
		BillingCycle:    string(s.BillingCycle),
		Status:          string(s.Status),
		Active:          s.IsActiveAt(time.Now()),
		StartTime:       s.StartTime,
		ExpireTime:      s.ExpireTime,
		AutoRenew:       s.AutoRenew,
		NextBillingDate: s.NextBillingDate,
		PaymentMethod:   s.PaymentMethod,
		Provider:        string(s.Provider),
		LastOrderID:     s.LastOrderID,
		UpdatedAt:       s.UpdatedAt,
	}
}

// toTransactionView leaves the encrypted raw payload out of the response.
func toTransactionView(t *model.TransactionRecord) transactionView {
	v := transactionView{
		ID:             t.ID,
		SubscriptionID: t.SubscriptionID,
		Provider:       string(t.Provider),
		ExternalTxnID:  t.ExternalTxnID,
		GrossAmount:    t.GrossAmount,
		Fee:            t.Fee,
		NetAmount:      t.NetAmount,
		Currency:       t.Currency,
		Status:         string(t.Status),
		PaymentTime:    t.PaymentTime,
	}
	if s, ok := t.Metadata["plan_type"].(string); ok {
		v.PlanType = s
	}
	if s, ok := t.Metadata["billing_cycle"].(string); ok {
		v.BillingCycle = s
	}
	return v
}

func emailParam(r *http.Request) string {
	raw := chi.URLParam(r, "email")
	if e, err := url.PathUnescape(raw); err == nil {
		return e
	}
	return raw
}

func subscriptionGetHandler(subs usecase.SubscriptionQueries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := subs.GetByEmail(r.Context(), emailParam(r))
		if err != nil {
			writeQueryError(w, "subscription", err)
			return
		}
		metrics.IncAdminRequest("subscription", "ok")
		writeJSON(w, http.StatusOK, toSubscriptionView(sub))
	}
}

func transactionsListHandler(subs usecase.SubscriptionQueries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				metrics.IncAdminRequest("transactions", "bad_request")
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		list, err := subs.History(r.Context(), emailParam(r), limit)
		if err != nil {
			writeQueryError(w, "transactions", err)
			return
		}
		out := make([]transactionView, 0, len(list))
		for _, t := range list {
			out = append(out, toTransactionView(t))
		}
		metrics.IncAdminRequest("transactions", "ok")
		writeJSON(w, http.StatusOK, struct {
			Transactions []transactionView `json:"transactions"`
		}{out})
	}
}

func writeQueryError(w http.ResponseWriter, route string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		metrics.IncAdminRequest(route, "bad_request")
		http.Error(w, "Invalid email", http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncAdminRequest(route, "not_found")
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		metrics.IncAdminRequest(route, "error")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
