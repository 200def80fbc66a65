package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/ports/adapter"
)

var _ adapter.WalletClient = (*NoopWallet)(nil)

// NoopWallet is an in-memory wallet for local runs without PayPal credentials.
// Every order is approved immediately and captures complete.
type NoopWallet struct {
	mu     sync.Mutex
	seq    int64
	orders map[string]adapter.WalletOrderRequest
	done   map[string]string // order id -> capture id
}

func NewNoopWallet() *NoopWallet {
	return &NoopWallet{
		orders: make(map[string]adapter.WalletOrderRequest),
		done:   make(map[string]string),
	}
}

func (w *NoopWallet) CreateOrder(_ context.Context, req adapter.WalletOrderRequest) (*adapter.WalletOrder, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	id := fmt.Sprintf("NOOP-ORDER-%d", w.seq)
	w.orders[id] = req
	return &adapter.WalletOrder{
		OrderID:     id,
		Status:      "CREATED",
		ApprovalURL: req.ReturnURL + "?token=" + id,
	}, nil
}

func (w *NoopWallet) CaptureOrder(_ context.Context, orderID string) (*adapter.WalletCapture, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	req, ok := w.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	capID, ok := w.done[orderID]
	if !ok {
		w.seq++
		capID = fmt.Sprintf("NOOP-CAPTURE-%d", w.seq)
		w.done[orderID] = capID
	}
	out := &adapter.WalletCapture{
		OrderID:   orderID,
		CaptureID: capID,
		Status:    "COMPLETED",
		Amount:    FromMinorUnits(req.AmountMinor, req.Currency),
		Currency:  req.Currency,
	}
	out.Raw, _ = json.Marshal(out)
	return out, nil
}
