package payment

import (
	"context"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/smartwalle/alipay/v3"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/adapter"
)

var (
	_ adapter.ProviderAdapter = (*AlipayAdapter)(nil)
	_ adapter.Verifier        = (*AlipayVerifier)(nil)
)

// AlipayAdapter parses the asynchronous trade notification. Only the
// form-encoded body is read.
type AlipayAdapter struct {
	currency string
	log      *zerolog.Logger
}

func NewAlipayAdapter(defaultCurrency string, logger *zerolog.Logger) *AlipayAdapter {
	l := logger.With().Str("component", "alipay_adapter").Logger()
	if defaultCurrency == "" {
		defaultCurrency = "CNY"
	}
	return &AlipayAdapter{currency: strings.ToUpper(defaultCurrency), log: &l}
}

func (a *AlipayAdapter) Provider() model.Provider { return model.ProviderAlipay }

func (a *AlipayAdapter) Parse(_ context.Context, req *adapter.InboundRequest) (*model.PaymentEvent, error) {
	f := req.PostForm
	tradeNo := strings.TrimSpace(f.Get("trade_no"))
	outTradeNo := strings.TrimSpace(f.Get("out_trade_no"))
	status := strings.TrimSpace(f.Get("trade_status"))
	if tradeNo == "" || outTradeNo == "" || status == "" {
		return nil, fmt.Errorf("%w: trade_no, out_trade_no and trade_status are required", domain.ErrMalformedPayload)
	}

	currency := a.currency
	if c := f.Get("currency"); c != "" {
		currency = strings.ToUpper(c)
	}
	ev := &model.PaymentEvent{
		Provider:        model.ProviderAlipay,
		ExternalTxnID:   tradeNo,
		ExternalOrderID: outTradeNo,
		Currency:        currency,
		BuyerIdentifier: firstNonEmpty(f.Get("buyer_logon_id"), f.Get("buyer_id")),
		PaymentMethod:   "alipay",
		RawPayload:      req.Body,
	}
	if len(ev.RawPayload) == 0 {
		ev.RawPayload = []byte(f.Encode())
	}
	if amt := f.Get("total_amount"); amt != "" {
		minor, err := ToMinorUnits(amt, currency)
		if err != nil {
			return nil, err
		}
		ev.AmountMinorUnits = minor
	}

	switch status {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		ev.Status = model.EventStatusSucceeded
	case "WAIT_BUYER_PAY":
		ev.Status = model.EventStatusPending
	case "TRADE_CLOSED":
		ev.Status = model.EventStatusFailed
	default:
		return ev, fmt.Errorf("%w: alipay trade_status %s", domain.ErrUnknownStatus, status)
	}

	pc, err := ParsePlanContext(f.Get("passback_params"))
	switch {
	case err == nil:
		ev.Plan = pc
	case ev.Status == model.EventStatusSucceeded:
		return nil, err
	default:
		a.log.Debug().Str("trade_no", tradeNo).Msg("no usable passback on non-success notification")
	}
	return ev, nil
}

func (a *AlipayAdapter) Acknowledge(ok bool, _ string) (string, []byte) {
	if ok {
		return "text/plain; charset=utf-8", []byte("success")
	}
	return "text/plain; charset=utf-8", []byte("fail")
}

// AlipayVerifier checks the RSA2 signature of a notification against the
// platform public key using the Alipay SDK.
type AlipayVerifier struct {
	client *alipay.Client
	appID  string
}

// NewAlipayVerifier takes the application private key and the platform public
// key, each either PEM or the bare base64 DER that the Alipay console hands
// out. appID must match every notification.
func NewAlipayVerifier(appID, privateKey, publicKey string) (*AlipayVerifier, error) {
	if appID == "" {
		return nil, errors.New("alipay app id empty")
	}
	priv, err := bareKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("alipay private key: %w", err)
	}
	pub, err := bareKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("alipay public key: %w", err)
	}
	c, err := alipay.New(appID, priv, true)
	if err != nil {
		return nil, fmt.Errorf("alipay client: %w", err)
	}
	if err := c.LoadAliPayPublicKey(pub); err != nil {
		return nil, fmt.Errorf("alipay public key: %w", err)
	}
	return &AlipayVerifier{client: c, appID: appID}, nil
}

// Verify only looks at body fields; query parameters are never part of the
// signed content.
func (v *AlipayVerifier) Verify(_ context.Context, ev *model.PaymentEvent, req *adapter.InboundRequest) bool {
	if ev == nil || ev.Provider != model.ProviderAlipay || req == nil {
		return false
	}
	f := req.PostForm
	if f.Get("sign") == "" {
		return false
	}
	if st := f.Get("sign_type"); st != "" && st != "RSA2" {
		return false
	}
	if f.Get("app_id") != v.appID {
		return false
	}
	if f.Get("trade_no") != ev.ExternalTxnID {
		return false
	}
	signed := make(url.Values, len(f))
	for k, vs := range f {
		signed[k] = append([]string(nil), vs...)
	}
	return v.client.VerifySign(signed) == nil
}

// bareKey strips PEM armour so the SDK sees the base64 DER form it expects.
func bareKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty")
	}
	if block, _ := pem.Decode([]byte(s)); block != nil {
		return base64.StdEncoding.EncodeToString(block.Bytes), nil
	}
	if _, err := base64.StdEncoding.DecodeString(s); err != nil {
		return "", err
	}
	return s, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
