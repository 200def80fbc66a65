package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/adapter"
	"bookmarks-billing/internal/infra/logging"
	"bookmarks-billing/internal/infra/metrics"
	"bookmarks-billing/internal/usecase"
)

const maxNotificationBody = 64 << 10

// Limiter throttles checkout creation per buyer.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// CheckoutLimit is how many wallet orders one email may open per window.
type CheckoutLimit struct {
	Count  int
	Window time.Duration
}

// Server exposes the inbound payment endpoints.
type Server struct {
	notifications usecase.NotificationUseCase
	checkout      usecase.CheckoutUseCase
	limiter       Limiter
	limit         CheckoutLimit
	log           *zerolog.Logger
}

func NewServer(notifications usecase.NotificationUseCase, checkout usecase.CheckoutUseCase, limiter Limiter, limit CheckoutLimit, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "api").Logger()
	if limit.Count <= 0 {
		limit = CheckoutLimit{Count: 10, Window: time.Hour}
	}
	return &Server{notifications: notifications, checkout: checkout, limiter: limiter, limit: limit, log: &l}
}

// Routes registers the payment endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1/payment", func(r chi.Router) {
		r.Use(MaxBody(maxNotificationBody))
		stripe := s.handleNotification(model.ProviderStripe)
		r.Get("/stripe/return", stripe)
		r.Post("/stripe/return", stripe)
		paypal := s.handleNotification(model.ProviderPayPal)
		r.Get("/paypal/capture", paypal)
		r.Post("/paypal/capture", paypal)
		r.Post("/alipay/notify", s.handleNotification(model.ProviderAlipay))
	})
	r.With(MaxBody(maxNotificationBody)).Post("/api/v1/checkout/paypal", s.handleWalletCheckout)
}

func (s *Server) handleNotification(provider model.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithProvider(r.Context(), string(provider))

		req, err := readInbound(r)
		if err != nil {
			l := logging.With(ctx, s.log)
			l.Warn().Err(err).Msg("unreadable notification body")
			res := &usecase.NotificationResult{Provider: provider, Outcome: usecase.OutcomeMalformed, Err: err}
			s.respond(w, res)
			metrics.ObserveNotification(string(provider), string(res.Outcome), time.Since(start))
			return
		}

		res := s.notifications.Handle(ctx, provider, req)
		s.respond(w, res)
		observeResult(res)
		metrics.ObserveNotification(string(provider), string(res.Outcome), time.Since(start))
	}
}

func (s *Server) respond(w http.ResponseWriter, res *usecase.NotificationResult) {
	ct, body := s.notifications.Acknowledge(res.Provider, res)
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(statusFor(res.Outcome))
	_, _ = w.Write(body)
}

// statusFor maps an outcome to the HTTP status providers use to decide on redelivery.
func statusFor(o usecase.Outcome) int {
	switch o {
	case usecase.OutcomeMalformed:
		return http.StatusBadRequest
	case usecase.OutcomeRejected:
		return http.StatusUnauthorized
	case usecase.OutcomeRetry:
		return http.StatusServiceUnavailable
	case usecase.OutcomeFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func observeResult(res *usecase.NotificationResult) {
	ev := res.Event
	if ev == nil {
		return
	}
	switch res.Outcome {
	case usecase.OutcomeApplied:
		metrics.IncPayment(string(ev.Provider), string(model.EventStatusSucceeded))
		metrics.AddPaymentRevenue(ev.Currency, ev.AmountMinorUnits)
		metrics.IncLedgerWrite(string(model.TransactionStatusCompleted))
		metrics.IncSubscriptionTransition(string(res.Transition), string(ev.Plan.PlanType))
	case usecase.OutcomeDeclined:
		metrics.IncPayment(string(ev.Provider), string(model.EventStatusFailed))
		metrics.IncLedgerWrite(string(model.TransactionStatusFailed))
	case usecase.OutcomeFailed:
		if res.Transaction != nil {
			metrics.IncLedgerWrite(string(model.TransactionStatusFailed))
		}
	}
}

// readInbound collects the raw body and merges form fields over query
// parameters. PostForm keeps the body fields alone for signature checks.
func readInbound(r *http.Request) (*adapter.InboundRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	for k, v := range r.URL.Query() {
		form[k] = v
	}
	post := url.Values{}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" && len(body) > 0 {
		vals, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, err
		}
		for k, v := range vals {
			form[k] = v
			post[k] = v
		}
	}
	return &adapter.InboundRequest{
		Method:      r.Method,
		ContentType: ct,
		Header:      r.Header.Clone(),
		Form:        form,
		PostForm:    post,
		Body:        body,
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

type checkoutRequest struct {
	UserEmail    string `json:"userEmail"`
	PlanType     string `json:"planType"`
	BillingCycle string `json:"billingCycle"`
}

type checkoutResponse struct {
	OrderID     string    `json:"orderId"`
	ApprovalURL string    `json:"approvalUrl"`
	AmountMinor int64     `json:"amountMinor"`
	Currency    string    `json:"currency"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (s *Server) handleWalletCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logging.With(ctx, s.log)

	var in checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	plan, err := model.NewPlanContext(in.UserEmail, in.PlanType, in.BillingCycle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "userEmail, planType and billingCycle are required")
		return
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "checkout:"+plan.UserEmail, s.limit.Count, s.limit.Window)
		if err != nil {
			l.Warn().Err(err).Msg("rate limiter unavailable, allowing checkout")
		} else if !ok {
			l.Info().Str("user", logging.Redact(plan.UserEmail, false)).Msg("checkout rate limited")
			writeError(w, http.StatusTooManyRequests, "too many checkout attempts")
			return
		}
	}

	res, err := s.checkout.StartWalletCheckout(ctx, plan)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, "plan is not for sale")
		case errors.Is(err, domain.ErrProviderTimeout):
			writeError(w, http.StatusGatewayTimeout, "payment provider timed out")
		default:
			l.Error().Err(err).Msg("wallet checkout failed")
			writeError(w, http.StatusBadGateway, "could not create order")
		}
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:     res.OrderID,
		ApprovalURL: res.ApprovalURL,
		AmountMinor: res.AmountMinor,
		Currency:    res.Currency,
		ExpiresAt:   res.ExpiresAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
