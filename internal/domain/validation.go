package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidOrder  = errors.New("invalid signing order")
	ErrInvalidVendor = errors.New("invalid vendor profile")
)

// Order ids become object key prefixes and workflow id suffixes, so they are limited to one
// path segment of URL-safe characters.
var orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("order_id", func(fl validator.FieldLevel) bool {
		return orderIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidateOrder rejects orders that must not be routed. Missing fields are never defaulted.
func ValidateOrder(o SigningOrder) error {
	failed := make([]string, 0)

	if strings.TrimSpace(o.State) == "" {
		o.State = ""
	}
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
		}
		failed = append(failed, fieldErrors(verrs)...)
	}
	if o.SigningType.RequiresTravel() && o.Location == nil {
		failed = append(failed, "location.required_for_travel")
	}
	if o.Location != nil && !o.Location.Valid() {
		failed = append(failed, "location.range")
	}
	if !o.Window.IsZero() && !o.Window.End.After(o.Window.Start) {
		failed = append(failed, "window.end_after_start")
	}
	if o.ServiceTier != TierUnknown && !o.ServiceTier.Valid() {
		failed = append(failed, "servicetier.valid")
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, strings.Join(failed, ", "))
	}
	return nil
}

// ValidateVendor checks a roster entry before it is stored.
func ValidateVendor(v Vendor) error {
	failed := make([]string, 0)

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidVendor, err)
		}
		failed = append(failed, fieldErrors(verrs)...)
	}
	if v.Tier != TierUnknown && !v.Tier.Valid() {
		failed = append(failed, "tier.valid")
	}
	if v.Location != nil && !v.Location.Valid() {
		failed = append(failed, "location.range")
	}
	for i, w := range v.Availability {
		if !w.End.After(w.Start) {
			failed = append(failed, fmt.Sprintf("availability[%d].end_after_start", i))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidVendor, strings.Join(failed, ", "))
	}
	return nil
}

// NormalizeVendor upper-cases and dedupes licensed state codes.
func NormalizeVendor(v Vendor) Vendor {
	seen := make(map[string]bool, len(v.LicensedStates))
	states := make([]string, 0, len(v.LicensedStates))
	for _, s := range v.LicensedStates {
		code := strings.ToUpper(strings.TrimSpace(s))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		states = append(states, code)
	}
	v.LicensedStates = states
	v.Name = strings.TrimSpace(v.Name)
	return v
}

func fieldErrors(verrs validator.ValidationErrors) []string {
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s.%s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return out
}
