package payment

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/spf13/cast"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
)

const maxDecodePasses = 2

var percentEscape = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)

// CanonicalPassback undoes the percent-encoding some gateways apply once or twice
// to passthrough parameters. It stops as soon as no escape sequence is left and
// fails with domain.ErrMalformedPayload when a pass meets a broken escape.
func CanonicalPassback(raw string) (string, error) {
	s := raw
	for i := 0; i < maxDecodePasses && percentEscape.MatchString(s); i++ {
		dec, err := url.PathUnescape(s)
		if err != nil {
			return "", fmt.Errorf("%w: passback decode pass %d: %v", domain.ErrMalformedPayload, i+1, err)
		}
		s = dec
	}
	return s, nil
}

// ParsePlanContext decodes passback JSON into a validated plan context.
// Values are coerced loosely since merchants serialize them inconsistently.
func ParsePlanContext(raw string) (model.PlanContext, error) {
	s, err := CanonicalPassback(raw)
	if err != nil {
		return model.PlanContext{}, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return model.PlanContext{}, fmt.Errorf("%w: empty passback", domain.ErrMalformedPayload)
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return model.PlanContext{}, fmt.Errorf("%w: passback is not json", domain.ErrMalformedPayload)
	}
	pc, err := model.NewPlanContext(
		cast.ToString(m["userEmail"]),
		cast.ToString(m["planType"]),
		cast.ToString(m["billingCycle"]),
	)
	if err != nil {
		return model.PlanContext{}, fmt.Errorf("%w: passback plan context", domain.ErrMalformedPayload)
	}
	return pc, nil
}

// planFromMetadata reads plan context from string metadata using snake_case keys.
func planFromMetadata(md map[string]string) (model.PlanContext, bool) {
	pc, err := model.NewPlanContext(md["user_email"], md["plan_type"], md["billing_cycle"])
	return pc, err == nil
}
