package model

import "time"

// PendingOrder carries the plan context of a wallet checkout from order
// creation to capture. It is keyed by the provider's order id and expires on its own.
type PendingOrder struct {
	PlanType        PlanType     `json:"planType"`
	BillingCycle    BillingCycle `json:"billingCycle"`
	UserEmail       string       `json:"userEmail"`
	ExternalOrderID string       `json:"externalOrderId"`
	AmountMinor     int64        `json:"amountMinor"`
	Currency        string       `json:"currency"`
	CreatedAt       time.Time    `json:"createdAt"`
}

func (p *PendingOrder) PlanContext() PlanContext {
	return PlanContext{UserEmail: p.UserEmail, PlanType: p.PlanType, BillingCycle: p.BillingCycle}
}
