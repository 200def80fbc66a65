//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
)

const testSecret = "test-admin-jwt-secret-please-change"

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

type mockQueries struct {
	GetByEmailFunc func(ctx context.Context, email string) (*model.Subscription, error)
	HistoryFunc    func(ctx context.Context, email string, limit int) ([]*model.TransactionRecord, error)
}

func (m *mockQueries) GetByEmail(ctx context.Context, email string) (*model.Subscription, error) {
	return m.GetByEmailFunc(ctx, email)
}

func (m *mockQueries) History(ctx context.Context, email string, limit int) ([]*model.TransactionRecord, error) {
	return m.HistoryFunc(ctx, email, limit)
}

func newRouter(q *mockQueries) *chi.Mux {
	r := chi.NewRouter()
	NewServer(q, NewAuthManager(testSecret, time.Minute), newTestLogger()).Routes(r)
	return r
}

func bearer(t *testing.T) string {
	t.Helper()
	tok, err := NewAuthManager(testSecret, time.Minute).Mint("ops")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return "Bearer " + tok
}

func TestAuthMiddleware(t *testing.T) {
	q := &mockQueries{GetByEmailFunc: func(context.Context, string) (*model.Subscription, error) {
		return &model.Subscription{ID: "s1"}, nil
	}}
	r := newRouter(q)

	expired := NewAuthManager(testSecret, time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	oldTok, _ := expired.Mint("ops")

	otherKey, _ := NewAuthManager("another-secret", time.Minute).Mint("ops")

	noRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"no credentials", "", http.StatusUnauthorized},
		{"no scheme", "whatever-token", http.StatusUnauthorized},
		{"wrong scheme", "Basic aaa.bbb.ccc", http.StatusUnauthorized},
		{"garbage token", "Bearer aaa.bbb.ccc", http.StatusUnauthorized},
		{"expired token", "Bearer " + oldTok, http.StatusUnauthorized},
		{"foreign secret", "Bearer " + otherKey, http.StatusUnauthorized},
		{"missing role", "Bearer " + noRole, http.StatusUnauthorized},
		{"valid token", bearer(t), http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/a@example.com", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}
		})
	}
}

func TestAuthMiddleware_NotConfigured(t *testing.T) {
	r := chi.NewRouter()
	NewServer(&mockQueries{}, nil, newTestLogger()).Routes(r)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/a@example.com", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestMint_RequiresSecret(t *testing.T) {
	if _, err := NewAuthManager("", time.Minute).Mint("ops"); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestSubscriptionGetHandler(t *testing.T) {
	expire := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	var gotEmail string
	q := &mockQueries{GetByEmailFunc: func(_ context.Context, email string) (*model.Subscription, error) {
		gotEmail = email
		switch email {
		case "a+tag@example.com":
			return &model.Subscription{
				ID: "s1", UserEmail: email, PlanType: model.PlanPro, BillingCycle: model.BillingMonthly,
				Status: model.SubscriptionStatusActive, ExpireTime: expire, Provider: model.ProviderAlipay,
			}, nil
		case "":
			return nil, domain.ErrInvalidArgument
		case "boom@example.com":
			return nil, errors.New("db down")
		}
		return nil, domain.ErrNotFound
	}}
	r := newRouter(q)
	auth := bearer(t)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", auth)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := get("/api/v1/subscriptions/a%2Btag@example.com")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotEmail != "a+tag@example.com" {
		t.Fatalf("email param not decoded: %q", gotEmail)
	}
	var v subscriptionView
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.ID != "s1" || !v.Active || v.Provider != "alipay" || !v.ExpireTime.Equal(expire) {
		t.Fatalf("unexpected view: %+v", v)
	}

	if rr := get("/api/v1/subscriptions/nobody@example.com"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := get("/api/v1/subscriptions/boom@example.com"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestTransactionsListHandler(t *testing.T) {
	sid := "s1"
	var gotLimit int
	q := &mockQueries{HistoryFunc: func(_ context.Context, email string, limit int) ([]*model.TransactionRecord, error) {
		gotLimit = limit
		return []*model.TransactionRecord{
			{ID: "02", SubscriptionID: &sid, Provider: model.ProviderStripe, ExternalTxnID: "pi_2", GrossAmount: 5000, Fee: 175, NetAmount: 4825,
				Currency: "USD", Status: model.TransactionStatusCompleted,
				Metadata: map[string]interface{}{"plan_type": "pro", "billing_cycle": "monthly", "raw_payload_enc": "v1:secret"}},
			{ID: "01", Provider: model.ProviderStripe, ExternalTxnID: "cs_1", Status: model.TransactionStatusFailed},
		}, nil
	}}
	r := newRouter(q)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/a@example.com/transactions?limit=20", nil)
	req.Header.Set("Authorization", bearer(t))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotLimit != 20 {
		t.Fatalf("limit not forwarded: %d", gotLimit)
	}
	var out struct {
		Transactions []map[string]interface{} `json:"transactions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Transactions) != 2 || out.Transactions[0]["externalTxnId"] != "pi_2" || out.Transactions[0]["planType"] != "pro" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
	if _, ok := out.Transactions[0]["raw_payload_enc"]; ok {
		t.Fatal("raw payload must not be exposed")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/a@example.com/transactions?limit=abc", nil)
	req.Header.Set("Authorization", bearer(t))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
