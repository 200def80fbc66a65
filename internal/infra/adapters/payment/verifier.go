package payment

import (
	"context"

	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/adapter"
)

var _ adapter.Verifier = ProviderSourcedVerifier{}

// ProviderSourcedVerifier accepts only events whose fields were fetched from the
// provider server-to-server. Nothing in the inbound request itself is trusted.
type ProviderSourcedVerifier struct {
	Provider model.Provider
}

func (v ProviderSourcedVerifier) Verify(_ context.Context, ev *model.PaymentEvent, _ *adapter.InboundRequest) bool {
	return ev != nil && ev.Provider == v.Provider && ev.ProviderSourced
}
