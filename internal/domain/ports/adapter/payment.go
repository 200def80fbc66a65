package adapter

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"bookmarks-billing/internal/domain/model"
)

// InboundRequest is the provider-agnostic view of one inbound notification.
type InboundRequest struct {
	Method      string
	ContentType string
	Header      http.Header
	Form        url.Values // parsed form body merged with query
	PostForm    url.Values // form body fields only
	Body        []byte     // raw body, kept for audit
	ReceivedAt  time.Time
}

// ProviderAdapter turns one provider's native notification into a PaymentEvent.
// Parse fails with domain.ErrMalformedPayload when required fields are missing,
// domain.ErrUnknownStatus when the provider reports a status outside the known
// set, and domain.ErrProviderTimeout when a server-to-server call did not finish in time.
type ProviderAdapter interface {
	Provider() model.Provider
	Parse(ctx context.Context, req *InboundRequest) (*model.PaymentEvent, error)
	// Acknowledge renders the literal body the provider's retry logic expects.
	Acknowledge(ok bool, status string) (contentType string, body []byte)
}

// Verifier decides whether a parsed event genuinely came from its provider.
type Verifier interface {
	Verify(ctx context.Context, ev *model.PaymentEvent, req *InboundRequest) bool
}

// Completer is implemented by adapters that hold per-order state which must
// be released once the event reached a terminal outcome.
type Completer interface {
	Complete(ctx context.Context, ev *model.PaymentEvent) error
}

// --- Wallet (authorize / capture) ---

type WalletOrderRequest struct {
	ReferenceID string
	AmountMinor int64
	Currency    string
	Description string
	ReturnURL   string
	CancelURL   string
}

type WalletOrder struct {
	OrderID     string
	Status      string
	ApprovalURL string
}

type WalletCapture struct {
	OrderID    string
	CaptureID  string
	Status     string // provider capture status, e.g. COMPLETED / PENDING / DECLINED
	Amount     string // decimal string in major units
	Currency   string
	PayerEmail string
	Raw        []byte
}

// WalletClient is the outbound port for the two-phase wallet provider.
type WalletClient interface {
	CreateOrder(ctx context.Context, req WalletOrderRequest) (*WalletOrder, error)
	CaptureOrder(ctx context.Context, orderID string) (*WalletCapture, error)
}

// --- Hosted checkout (redirect + status lookup) ---

type CheckoutSession struct {
	ID            string
	Status        string // open / complete / expired
	PaymentStatus string // paid / unpaid / no_payment_required
	PaymentIntent string
	AmountTotal   int64
	Currency      string
	CustomerEmail string
	Metadata      map[string]string
	Raw           []byte
}

// CheckoutSessionClient looks a hosted checkout session up server-to-server.
type CheckoutSessionClient interface {
	GetSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// --- Downstream events ---

type SubscriptionEvent struct {
	Type           string    `json:"type"` // subscription.activated | subscription.renewed
	SubscriptionID string    `json:"subscriptionId"`
	UserEmail      string    `json:"userEmail"`
	PlanType       string    `json:"planType"`
	BillingCycle   string    `json:"billingCycle"`
	ExpireTime     time.Time `json:"expireTime"`
	Provider       string    `json:"provider"`
	ExternalTxnID  string    `json:"externalTxnId"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// EventPublisher fans subscription changes out to other services.
type EventPublisher interface {
	PublishSubscriptionEvent(ctx context.Context, ev SubscriptionEvent) error
	Close() error
}
