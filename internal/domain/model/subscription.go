package model

import (
	"time"

	"bookmarks-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPending   SubscriptionStatus = "pending"
)

// Subscription is the single entitlement row of a user, keyed by email.
type Subscription struct {
	ID              string // UUID
	UserEmail       string // natural key, unique
	PlanType        PlanType
	BillingCycle    BillingCycle
	Status          SubscriptionStatus
	StartTime       time.Time
	ExpireTime      time.Time
	AutoRenew       bool
	NextBillingDate *time.Time
	PaymentMethod   string
	Provider        Provider
	LastOrderID     string // provider-side correlation id of the last applied payment
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSubscription creates the first row for an email from a successful event.
func NewSubscription(id string, ev *PaymentEvent, now time.Time) (*Subscription, error) {
	if id == "" || ev == nil || ev.Status != EventStatusSucceeded {
		return nil, domain.ErrInvalidArgument
	}
	s := &Subscription{ID: id, UserEmail: ev.Plan.UserEmail, CreatedAt: now}
	s.renew(ev, now)
	return s, nil
}

// Renew applies a successful payment to an existing row. The new expiry is
// always now + one cycle: remaining time from an earlier period is not carried over.
func (s *Subscription) Renew(ev *PaymentEvent, now time.Time) error {
	if ev == nil || ev.Status != EventStatusSucceeded {
		return domain.ErrInvalidArgument
	}
	s.renew(ev, now)
	return nil
}

func (s *Subscription) renew(ev *PaymentEvent, now time.Time) {
	expire := ev.Plan.BillingCycle.Advance(now)
	s.PlanType = ev.Plan.PlanType
	s.BillingCycle = ev.Plan.BillingCycle
	s.Status = SubscriptionStatusActive
	s.StartTime = now
	s.ExpireTime = expire
	s.NextBillingDate = nil
	if s.AutoRenew {
		s.NextBillingDate = &expire
	}
	s.PaymentMethod = ev.PaymentMethod
	s.Provider = ev.Provider
	s.LastOrderID = ev.ExternalOrderID
	if s.LastOrderID == "" {
		s.LastOrderID = ev.ExternalTxnID
	}
	s.UpdatedAt = now
}

// IsActiveAt reports whether the entitlement covers t.
func (s *Subscription) IsActiveAt(t time.Time) bool {
	return s != nil && s.Status == SubscriptionStatusActive && t.Before(s.ExpireTime)
}
