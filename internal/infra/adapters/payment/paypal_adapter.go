package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/adapter"
	"bookmarks-billing/internal/domain/ports/repository"
)

var (
	_ adapter.ProviderAdapter = (*PayPalAdapter)(nil)
	_ adapter.Completer       = (*PayPalAdapter)(nil)
)

// DefaultReplayWindow is how long a finished order stays resolvable so that
// repeated capture calls are answered as duplicates.
const DefaultReplayWindow = 15 * time.Minute

// PayPalAdapter handles the capture leg of the wallet flow. Plan context comes
// only from the pending order stored at checkout; the client-supplied context
// is compared for diagnostics and otherwise ignored.
type PayPalAdapter struct {
	wallet  adapter.WalletClient
	pending repository.PendingOrderRepository
	timeout time.Duration
	replay  time.Duration
	log     *zerolog.Logger
}

func NewPayPalAdapter(wallet adapter.WalletClient, pending repository.PendingOrderRepository, timeout time.Duration, logger *zerolog.Logger) *PayPalAdapter {
	l := logger.With().Str("component", "paypal_adapter").Logger()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PayPalAdapter{wallet: wallet, pending: pending, timeout: timeout, replay: DefaultReplayWindow, log: &l}
}

func (a *PayPalAdapter) Provider() model.Provider { return model.ProviderPayPal }

type captureRequest struct {
	OrderID string          `json:"orderId"`
	Context json.RawMessage `json:"context,omitempty"`
}

func (a *PayPalAdapter) Parse(ctx context.Context, req *adapter.InboundRequest) (*model.PaymentEvent, error) {
	var in captureRequest
	if len(req.Body) > 0 && strings.Contains(req.ContentType, "json") {
		if err := json.Unmarshal(req.Body, &in); err != nil {
			return nil, fmt.Errorf("%w: capture body", domain.ErrMalformedPayload)
		}
	}
	if in.OrderID == "" {
		// return URL carries the order id as ?token=
		in.OrderID = req.Form.Get("orderId")
		if in.OrderID == "" {
			in.OrderID = req.Form.Get("token")
		}
	}
	in.OrderID = strings.TrimSpace(in.OrderID)
	if in.OrderID == "" {
		return nil, fmt.Errorf("%w: orderId missing", domain.ErrMalformedPayload)
	}

	po, err := a.pending.Get(ctx, in.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no pending checkout for order", domain.ErrMalformedPayload)
		}
		return nil, err
	}
	a.compareClientContext(in, po)

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	capt, err := a.wallet.CaptureOrder(cctx, in.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown order", domain.ErrMalformedPayload)
		}
		return nil, err
	}

	ev := &model.PaymentEvent{
		Provider:         model.ProviderPayPal,
		ExternalTxnID:    capt.CaptureID,
		ExternalOrderID:  in.OrderID,
		AmountMinorUnits: po.AmountMinor,
		Currency:         po.Currency,
		BuyerIdentifier:  capt.PayerEmail,
		Plan:             po.PlanContext(),
		PaymentMethod:    "paypal_wallet",
		RawPayload:       capt.Raw,
		ProviderSourced:  true,
	}
	if capt.Amount != "" {
		amt, err := ToMinorUnits(capt.Amount, capt.Currency)
		if err != nil {
			return nil, err
		}
		mismatch := amt != po.AmountMinor || !strings.EqualFold(capt.Currency, po.Currency)
		ev.AmountMinorUnits, ev.Currency = amt, strings.ToUpper(capt.Currency)
		if mismatch && strings.EqualFold(capt.Status, "COMPLETED") {
			// money moved but not for the price quoted: keep it on the ledger as
			// failed and grant nothing
			a.log.Error().
				Str("order_id", in.OrderID).
				Str("capture_id", capt.CaptureID).
				Str("captured", capt.Amount+" "+capt.Currency).
				Int64("expected_minor", po.AmountMinor).
				Str("expected_currency", po.Currency).
				Bool("manual_review", true).
				Msg("captured amount differs from checkout")
			ev.Status = model.EventStatusFailed
			ev.ReviewReason = "captured_amount_mismatch"
			return ev, nil
		}
		if mismatch {
			return nil, fmt.Errorf("%w: captured %s %s, expected %d %s", domain.ErrMalformedPayload,
				capt.Amount, capt.Currency, po.AmountMinor, po.Currency)
		}
	}

	switch strings.ToUpper(capt.Status) {
	case "COMPLETED":
		ev.Status = model.EventStatusSucceeded
	case "PENDING", "PAYER_ACTION_REQUIRED", "APPROVED", "CREATED", "SAVED":
		ev.Status = model.EventStatusPending
	case "DECLINED", "FAILED", "VOIDED":
		ev.Status = model.EventStatusFailed
	default:
		if ev.ExternalTxnID == "" {
			ev.ExternalTxnID = in.OrderID
		}
		return ev, fmt.Errorf("%w: paypal status %s", domain.ErrUnknownStatus, capt.Status)
	}
	if ev.ExternalTxnID == "" {
		// no capture object yet: the order id is the only stable reference
		ev.ExternalTxnID = in.OrderID
	}
	return ev, nil
}

func (a *PayPalAdapter) compareClientContext(in captureRequest, po *model.PendingOrder) {
	if len(in.Context) == 0 {
		return
	}
	var m map[string]interface{}
	if err := json.Unmarshal(in.Context, &m); err != nil {
		a.log.Warn().Str("order_id", in.OrderID).Msg("client context is not json, ignoring")
		return
	}
	if id := cast.ToString(m["orderId"]); id != "" && id != in.OrderID {
		a.log.Warn().Str("order_id", in.OrderID).Str("client_order_id", id).Msg("client context order id mismatch")
	}
	if pt := cast.ToString(m["planType"]); pt != "" && !strings.EqualFold(pt, string(po.PlanType)) {
		a.log.Warn().Str("order_id", in.OrderID).Msg("client context plan differs from checkout, using checkout")
	}
}

// Complete shortens the pending order lifetime to the replay window.
func (a *PayPalAdapter) Complete(ctx context.Context, ev *model.PaymentEvent) error {
	po, err := a.pending.Get(ctx, ev.ExternalOrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	return a.pending.Put(ctx, po, a.replay)
}

func (a *PayPalAdapter) Acknowledge(ok bool, status string) (string, []byte) {
	body, _ := json.Marshal(struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}{Success: ok, Status: status})
	return "application/json", body
}
