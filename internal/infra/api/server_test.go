//go:build !integration

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/adapter"
	"bookmarks-billing/internal/usecase"
)

type mockNotifications struct {
	HandleFunc func(ctx context.Context, p model.Provider, req *adapter.InboundRequest) *usecase.NotificationResult
	last       *adapter.InboundRequest
}

func (m *mockNotifications) Handle(ctx context.Context, p model.Provider, req *adapter.InboundRequest) *usecase.NotificationResult {
	m.last = req
	return m.HandleFunc(ctx, p, req)
}

func (m *mockNotifications) Acknowledge(p model.Provider, res *usecase.NotificationResult) (string, []byte) {
	if res.Outcome.Acknowledge() {
		return "text/plain", []byte("success")
	}
	return "text/plain", []byte("fail")
}

type mockCheckout struct {
	StartFunc func(ctx context.Context, plan model.PlanContext) (*usecase.CheckoutResult, error)
}

func (m *mockCheckout) StartWalletCheckout(ctx context.Context, plan model.PlanContext) (*usecase.CheckoutResult, error) {
	return m.StartFunc(ctx, plan)
}

type mockLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (m *mockLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	m.keys = append(m.keys, key)
	return m.allow, m.err
}

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func outcome(o usecase.Outcome) func(context.Context, model.Provider, *adapter.InboundRequest) *usecase.NotificationResult {
	return func(_ context.Context, p model.Provider, _ *adapter.InboundRequest) *usecase.NotificationResult {
		return &usecase.NotificationResult{Provider: p, Outcome: o}
	}
}

func newTestRouter(n *mockNotifications, c *mockCheckout, l *mockLimiter) *chi.Mux {
	var lim Limiter
	if l != nil {
		lim = l
	}
	srv := NewServer(n, c, lim, CheckoutLimit{Count: 3, Window: time.Minute}, newLogger())
	return NewRouter(newLogger(), 5*time.Second, nil, srv.Routes)
}

func TestNotificationEndpoints_StatusCodes(t *testing.T) {
	tests := []struct {
		outcome usecase.Outcome
		code    int
		body    string
	}{
		{usecase.OutcomeApplied, http.StatusOK, "success"},
		{usecase.OutcomeDuplicate, http.StatusOK, "success"},
		{usecase.OutcomeNoOp, http.StatusOK, "success"},
		{usecase.OutcomeIgnored, http.StatusOK, "success"},
		{usecase.OutcomeMalformed, http.StatusBadRequest, "fail"},
		{usecase.OutcomeRejected, http.StatusUnauthorized, "fail"},
		{usecase.OutcomeRetry, http.StatusServiceUnavailable, "fail"},
		{usecase.OutcomeFailed, http.StatusInternalServerError, "fail"},
	}
	for _, tc := range tests {
		t.Run(string(tc.outcome), func(t *testing.T) {
			n := &mockNotifications{HandleFunc: outcome(tc.outcome)}
			r := newTestRouter(n, nil, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/alipay/notify", strings.NewReader("trade_no=1"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.code || rec.Body.String() != tc.body {
				t.Fatalf("got %d %q", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestNotificationEndpoints_InboundRequest(t *testing.T) {
	var gotProvider model.Provider
	n := &mockNotifications{HandleFunc: func(_ context.Context, p model.Provider, req *adapter.InboundRequest) *usecase.NotificationResult {
		gotProvider = p
		return &usecase.NotificationResult{Provider: p, Outcome: usecase.OutcomeApplied}
	}}
	r := newTestRouter(n, nil, nil)

	t.Run("form body overrides query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/alipay/notify?trade_no=q&x=1", strings.NewReader("trade_no=b&passback_params=%257B%257D"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
		r.ServeHTTP(httptest.NewRecorder(), req)
		if gotProvider != model.ProviderAlipay {
			t.Fatalf("provider %s", gotProvider)
		}
		f := n.last.Form
		if f.Get("trade_no") != "b" || f.Get("x") != "1" || f.Get("passback_params") != "%7B%7D" {
			t.Fatalf("unexpected form: %v", f)
		}
		if string(n.last.Body) != "trade_no=b&passback_params=%257B%257D" {
			t.Fatalf("raw body not kept: %s", n.last.Body)
		}
	})

	t.Run("post form excludes query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/alipay/notify?utm_source=mail&trade_no=q", strings.NewReader("trade_no=b&sign=abc"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.ServeHTTP(httptest.NewRecorder(), req)
		pf := n.last.PostForm
		if pf.Get("trade_no") != "b" || pf.Get("sign") != "abc" || pf.Has("utm_source") {
			t.Fatalf("unexpected post form: %v", pf)
		}
		if n.last.Form.Get("utm_source") != "mail" {
			t.Fatalf("query missing from merged form: %v", n.last.Form)
		}
	})

	t.Run("stripe return via query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payment/stripe/return?session_id=cs_1", nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
		if gotProvider != model.ProviderStripe || n.last.Form.Get("session_id") != "cs_1" {
			t.Fatalf("got %s %v", gotProvider, n.last.Form)
		}
	})

	t.Run("paypal capture json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/paypal/capture", strings.NewReader(`{"orderId":"O-1"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(httptest.NewRecorder(), req)
		if gotProvider != model.ProviderPayPal || n.last.ContentType != "application/json" || string(n.last.Body) != `{"orderId":"O-1"}` {
			t.Fatalf("got %s %+v", gotProvider, n.last)
		}
	})

	t.Run("oversized body is malformed", func(t *testing.T) {
		n.last = nil
		big := strings.Repeat("a", maxNotificationBody+1)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/alipay/notify", strings.NewReader(big))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest || n.last != nil {
			t.Fatalf("got %d, handled=%v", rec.Code, n.last != nil)
		}
	})
}

func TestWalletCheckout(t *testing.T) {
	expires := time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC)
	okCheckout := &mockCheckout{StartFunc: func(_ context.Context, plan model.PlanContext) (*usecase.CheckoutResult, error) {
		if plan.UserEmail != "a@example.com" || plan.PlanType != model.PlanPro {
			return nil, errors.New("unexpected plan")
		}
		return &usecase.CheckoutResult{OrderID: "O-1", ApprovalURL: "https://pay.test/O-1", AmountMinor: 1900, Currency: "USD", ExpiresAt: expires}, nil
	}}

	post := func(r http.Handler, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/paypal", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	t.Run("created", func(t *testing.T) {
		lim := &mockLimiter{allow: true}
		rec := post(newTestRouter(nil, okCheckout, lim), `{"userEmail":"A@example.com","planType":"pro","billingCycle":"monthly"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("got %d %s", rec.Code, rec.Body.String())
		}
		var out checkoutResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.OrderID != "O-1" || out.ApprovalURL != "https://pay.test/O-1" || !out.ExpiresAt.Equal(expires) {
			t.Fatalf("got %+v", out)
		}
		if len(lim.keys) != 1 || lim.keys[0] != "checkout:a@example.com" {
			t.Fatalf("limiter keys %v", lim.keys)
		}
	})

	t.Run("invalid plan", func(t *testing.T) {
		rec := post(newTestRouter(nil, okCheckout, nil), `{"userEmail":"a@example.com","planType":"gold","billingCycle":"monthly"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("got %d", rec.Code)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		rec := post(newTestRouter(nil, okCheckout, &mockLimiter{allow: false}), `{"userEmail":"a@example.com","planType":"pro","billingCycle":"monthly"}`)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("got %d", rec.Code)
		}
	})

	t.Run("limiter down fails open", func(t *testing.T) {
		rec := post(newTestRouter(nil, okCheckout, &mockLimiter{err: errors.New("redis down")}), `{"userEmail":"a@example.com","planType":"pro","billingCycle":"monthly"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("got %d", rec.Code)
		}
	})

	t.Run("provider errors", func(t *testing.T) {
		for err, code := range map[error]int{
			domain.ErrInvalidArgument: http.StatusBadRequest,
			domain.ErrProviderTimeout: http.StatusGatewayTimeout,
			errors.New("boom"):        http.StatusBadGateway,
		} {
			c := &mockCheckout{StartFunc: func(context.Context, model.PlanContext) (*usecase.CheckoutResult, error) { return nil, err }}
			rec := post(newTestRouter(nil, c, nil), `{"userEmail":"a@example.com","planType":"pro","billingCycle":"monthly"}`)
			if rec.Code != code {
				t.Fatalf("%v: got %d want %d", err, rec.Code, code)
			}
		}
	})
}

func TestHealthAndTraceID(t *testing.T) {
	checks := map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("down") },
	}
	r := NewRouter(newLogger(), time.Second, checks)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") != "req-1" {
		t.Fatalf("trace id not echoed: %q", rec.Header().Get("X-Request-Id"))
	}
	var status map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &status)
	if status["postgres"] != "ok" || status["redis"] != "down" {
		t.Fatalf("got %v", status)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", rec.Code)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(newLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", rec.Code)
	}
}
