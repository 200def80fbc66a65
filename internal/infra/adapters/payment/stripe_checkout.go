package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/adapter"
	"bookmarks-billing/internal/infra/metrics"
)

var (
	_ adapter.CheckoutSessionClient = (*StripeClient)(nil)
	_ adapter.ProviderAdapter       = (*StripeAdapter)(nil)
)

// StripeClient reads hosted checkout sessions through stripe-go.
type StripeClient struct {
	api *client.API
}

// NewStripeClient builds a client whose calls are bounded by timeout and never
// retried; redelivery is left to the notification pipeline. baseURL may point
// at a Stripe-compatible test server.
func NewStripeClient(secretKey, baseURL string, timeout time.Duration) (*StripeClient, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if baseURL != "" {
		if _, err := url.Parse(baseURL); err != nil {
			return nil, fmt.Errorf("invalid stripe base url: %w", err)
		}
		cfg.URL = stripe.String(strings.TrimRight(baseURL, "/"))
	}
	api := &client.API{}
	api.Init(secretKey, stripe.NewBackendsWithConfig(cfg))
	return &StripeClient{api: api}, nil
}

// GetSession returns domain.ErrNotFound for unknown ids and domain.ErrProviderTimeout
// when ctx expires before Stripe answers.
func (c *StripeClient) GetSession(ctx context.Context, sessionID string) (*adapter.CheckoutSession, error) {
	start := time.Now()
	res := "error"
	defer func() { metrics.ObserveProviderCall(string(model.ProviderStripe), "get_session", res, time.Since(start)) }()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var serr *stripe.Error
		switch {
		case errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound:
			res = "ok"
			return nil, domain.ErrNotFound
		case isTimeout(ctx, err):
			res = "timeout"
			return nil, fmt.Errorf("%w: stripe session lookup", domain.ErrProviderTimeout)
		}
		return nil, fmt.Errorf("stripe session lookup: %w", err)
	}
	res = "ok"

	out := &adapter.CheckoutSession{
		ID:            s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      strings.ToUpper(string(s.Currency)),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntent = s.PaymentIntent.ID
	}
	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.LastResponse != nil {
		out.Raw = s.LastResponse.RawJSON
	}
	return out, nil
}

// StripeAdapter handles the checkout return leg. The inbound request only
// carries a session id; every other field is read back from Stripe.
type StripeAdapter struct {
	sessions adapter.CheckoutSessionClient
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewStripeAdapter(sessions adapter.CheckoutSessionClient, timeout time.Duration, logger *zerolog.Logger) *StripeAdapter {
	l := logger.With().Str("component", "stripe_adapter").Logger()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StripeAdapter{sessions: sessions, timeout: timeout, log: &l}
}

func (a *StripeAdapter) Provider() model.Provider { return model.ProviderStripe }

func (a *StripeAdapter) Parse(ctx context.Context, req *adapter.InboundRequest) (*model.PaymentEvent, error) {
	id := strings.TrimSpace(req.Form.Get("session_id"))
	if id == "" {
		return nil, fmt.Errorf("%w: session_id missing", domain.ErrMalformedPayload)
	}

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	s, err := a.sessions.GetSession(cctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown checkout session", domain.ErrMalformedPayload)
		}
		return nil, err
	}

	ev := &model.PaymentEvent{
		Provider:         model.ProviderStripe,
		ExternalTxnID:    s.PaymentIntent,
		ExternalOrderID:  s.ID,
		AmountMinorUnits: s.AmountTotal,
		Currency:         s.Currency,
		BuyerIdentifier:  s.CustomerEmail,
		PaymentMethod:    "stripe_checkout",
		RawPayload:       s.Raw,
		ProviderSourced:  true,
	}
	if ev.ExternalTxnID == "" {
		ev.ExternalTxnID = s.ID
	}
	if pc, ok := planFromMetadata(s.Metadata); ok {
		ev.Plan = pc
	}

	switch {
	case s.PaymentStatus == "paid":
		ev.Status = model.EventStatusSucceeded
	case s.Status == "expired":
		ev.Status = model.EventStatusFailed
	case (s.Status == "open" || s.Status == "complete") && s.PaymentStatus == "unpaid":
		ev.Status = model.EventStatusPending
	default:
		return ev, fmt.Errorf("%w: stripe status=%s payment_status=%s", domain.ErrUnknownStatus, s.Status, s.PaymentStatus)
	}
	return ev, nil
}

func (a *StripeAdapter) Acknowledge(ok bool, _ string) (string, []byte) {
	if ok {
		return "text/plain; charset=utf-8", []byte("success")
	}
	return "text/plain; charset=utf-8", []byte("failure")
}

// isTimeout reports whether a transport error came from the deadline on ctx
// or from the client timeout.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
