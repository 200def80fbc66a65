package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/plutov/paypal/v4"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/adapter"
	"bookmarks-billing/internal/infra/metrics"
)

var _ adapter.WalletClient = (*PayPalWallet)(nil)

// PayPalAPIBase picks the sandbox or live REST endpoint.
func PayPalAPIBase(sandbox bool) string {
	if sandbox {
		return paypal.APIBaseSandBox
	}
	return paypal.APIBaseLive
}

// PayPalWallet implements adapter.WalletClient over the Orders v2 API.
type PayPalWallet struct {
	client *paypal.Client
}

func NewPayPalWallet(clientID, secret, apiBase string) (*PayPalWallet, error) {
	if clientID == "" || secret == "" {
		return nil, errors.New("paypal credentials empty")
	}
	c, err := paypal.NewClient(clientID, secret, apiBase)
	if err != nil {
		return nil, err
	}
	return &PayPalWallet{client: c}, nil
}

func (w *PayPalWallet) CreateOrder(ctx context.Context, req adapter.WalletOrderRequest) (*adapter.WalletOrder, error) {
	start := time.Now()
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: req.ReferenceID,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: strings.ToUpper(req.Currency),
			Value:    FromMinorUnits(req.AmountMinor, req.Currency),
		},
		Description: req.Description,
	}}
	appCtx := &paypal.ApplicationContext{ReturnURL: req.ReturnURL, CancelURL: req.CancelURL}

	order, err := w.client.CreateOrder(ctx, "CAPTURE", units, nil, appCtx)
	if err != nil {
		metrics.ObserveProviderCall(string(model.ProviderPayPal), "create_order", callResult(ctx, err), time.Since(start))
		return nil, w.mapErr(ctx, err)
	}
	metrics.ObserveProviderCall(string(model.ProviderPayPal), "create_order", "ok", time.Since(start))

	out := &adapter.WalletOrder{OrderID: order.ID, Status: order.Status}
	for _, l := range order.Links {
		if l.Rel == "approve" {
			out.ApprovalURL = l.Href
			break
		}
	}
	if out.ApprovalURL == "" {
		return nil, errors.New("paypal order has no approval link")
	}
	return out, nil
}

// CaptureOrder captures an approved order. An order that was captured before
// is read back instead, so redeliveries see the original capture.
func (w *PayPalWallet) CaptureOrder(ctx context.Context, orderID string) (*adapter.WalletCapture, error) {
	start := time.Now()
	resp, err := w.client.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		switch issue := errorIssue(err); issue {
		case "ORDER_ALREADY_CAPTURED":
			metrics.ObserveProviderCall(string(model.ProviderPayPal), "capture_order", "ok", time.Since(start))
			return w.readCapture(ctx, orderID)
		case "ORDER_NOT_APPROVED", "PAYER_ACTION_REQUIRED":
			metrics.ObserveProviderCall(string(model.ProviderPayPal), "capture_order", "ok", time.Since(start))
			return &adapter.WalletCapture{OrderID: orderID, Status: "PAYER_ACTION_REQUIRED"}, nil
		}
		metrics.ObserveProviderCall(string(model.ProviderPayPal), "capture_order", callResult(ctx, err), time.Since(start))
		return nil, w.mapErr(ctx, err)
	}
	metrics.ObserveProviderCall(string(model.ProviderPayPal), "capture_order", "ok", time.Since(start))

	out := &adapter.WalletCapture{OrderID: resp.ID, Status: resp.Status}
	if out.OrderID == "" {
		out.OrderID = orderID
	}
	if resp.Payer != nil {
		out.PayerEmail = resp.Payer.EmailAddress
	}
	for _, pu := range resp.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for _, c := range pu.Payments.Captures {
			out.CaptureID, out.Status = c.ID, c.Status
			if c.Amount != nil {
				out.Amount, out.Currency = c.Amount.Value, c.Amount.Currency
			}
			break
		}
		if out.CaptureID != "" {
			break
		}
	}
	out.Raw, _ = json.Marshal(resp)
	return out, nil
}

type orderView struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  *struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Payments *struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount *struct {
					Currency string `json:"currency_code"`
					Value    string `json:"value"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (w *PayPalWallet) readCapture(ctx context.Context, orderID string) (*adapter.WalletCapture, error) {
	start := time.Now()
	req, err := w.client.NewRequest(ctx, http.MethodGet, w.client.APIBase+"/v2/checkout/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	var o orderView
	if err := w.client.SendWithAuth(req, &o); err != nil {
		metrics.ObserveProviderCall(string(model.ProviderPayPal), "get_order", callResult(ctx, err), time.Since(start))
		return nil, w.mapErr(ctx, err)
	}
	metrics.ObserveProviderCall(string(model.ProviderPayPal), "get_order", "ok", time.Since(start))

	out := &adapter.WalletCapture{OrderID: o.ID, Status: o.Status}
	if o.Payer != nil {
		out.PayerEmail = o.Payer.EmailAddress
	}
	for _, pu := range o.PurchaseUnits {
		if pu.Payments == nil || len(pu.Payments.Captures) == 0 {
			continue
		}
		c := pu.Payments.Captures[0]
		out.CaptureID, out.Status = c.ID, c.Status
		if c.Amount != nil {
			out.Amount, out.Currency = c.Amount.Value, c.Amount.Currency
		}
		break
	}
	out.Raw, _ = json.Marshal(o)
	return out, nil
}

func (w *PayPalWallet) mapErr(ctx context.Context, err error) error {
	if isTimeout(ctx, err) {
		return fmt.Errorf("%w: paypal", domain.ErrProviderTimeout)
	}
	var perr *paypal.ErrorResponse
	if errors.As(err, &perr) && perr.Response != nil && perr.Response.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return fmt.Errorf("paypal: %w", err)
}

func errorIssue(err error) string {
	var perr *paypal.ErrorResponse
	if !errors.As(err, &perr) {
		return ""
	}
	for _, d := range perr.Details {
		if d.Issue != "" {
			return d.Issue
		}
	}
	return ""
}

func callResult(ctx context.Context, err error) string {
	if isTimeout(ctx, err) {
		return "timeout"
	}
	return "error"
}
