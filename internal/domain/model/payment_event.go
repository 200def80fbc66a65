package model

import (
	"strings"

	"bookmarks-billing/internal/domain"
)

// Provider identifies an external payment network.
type Provider string

const (
	ProviderStripe Provider = "stripe" // hosted checkout, redirect + status lookup
	ProviderPayPal Provider = "paypal" // authorize / capture wallet
	ProviderAlipay Provider = "alipay" // signed form notify with passback params
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderStripe, ProviderPayPal, ProviderAlipay:
		return p, nil
	}
	return "", domain.ErrUnknownProvider
}

type EventStatus string

const (
	EventStatusSucceeded EventStatus = "succeeded"
	EventStatusPending   EventStatus = "pending"
	EventStatusFailed    EventStatus = "failed"
)

type PlanType string

const (
	PlanPro  PlanType = "pro"
	PlanTeam PlanType = "team"
)

func ParsePlanType(s string) (PlanType, error) {
	switch p := PlanType(strings.ToLower(strings.TrimSpace(s))); p {
	case PlanPro, PlanTeam:
		return p, nil
	}
	return "", domain.ErrInvalidArgument
}

// PlanContext is what the buyer picked at checkout time.
type PlanContext struct {
	UserEmail    string       `json:"userEmail"`
	PlanType     PlanType     `json:"planType"`
	BillingCycle BillingCycle `json:"billingCycle"`
}

// NewPlanContext validates and normalizes the three required fields.
func NewPlanContext(email, planType, cycle string) (PlanContext, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return PlanContext{}, domain.ErrInvalidArgument
	}
	pt, err := ParsePlanType(planType)
	if err != nil {
		return PlanContext{}, err
	}
	bc, err := ParseBillingCycle(cycle)
	if err != nil {
		return PlanContext{}, err
	}
	return PlanContext{UserEmail: email, PlanType: pt, BillingCycle: bc}, nil
}

// PaymentEvent is the normalized form of one inbound notification.
// It is built once per call and never mutated afterwards.
type PaymentEvent struct {
	Provider         Provider
	ExternalTxnID    string
	ExternalOrderID  string // optional, correlates multi-step flows
	Status           EventStatus
	AmountMinorUnits int64
	Currency         string // ISO 4217
	BuyerIdentifier  string
	Plan             PlanContext
	PaymentMethod    string
	RawPayload       []byte

	// ProviderSourced is set when every field above came from a direct
	// server-to-server response of the provider rather than from the inbound request.
	ProviderSourced bool

	// ReviewReason marks an event an operator has to look at.
	ReviewReason string
}

// IdempotencyKey returns the (provider, externalTxnId) pair as a single string.
func (e *PaymentEvent) IdempotencyKey() string {
	return string(e.Provider) + ":" + e.ExternalTxnID
}

// Validate checks the fields every downstream stage relies on.
func (e *PaymentEvent) Validate() error {
	if e == nil || e.Provider == "" || strings.TrimSpace(e.ExternalTxnID) == "" {
		return domain.ErrMalformedPayload
	}
	switch e.Status {
	case EventStatusSucceeded, EventStatusPending, EventStatusFailed:
	default:
		return domain.ErrUnknownStatus
	}
	if e.AmountMinorUnits < 0 {
		return domain.ErrMalformedPayload
	}
	if e.Status == EventStatusSucceeded {
		if _, err := NewPlanContext(e.Plan.UserEmail, string(e.Plan.PlanType), string(e.Plan.BillingCycle)); err != nil {
			return domain.ErrMalformedPayload
		}
	}
	return nil
}
