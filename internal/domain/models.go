package domain

import (
	"math"
	"strings"
	"time"
)

type SigningType string

const (
	SigningTypeRON    SigningType = "ron"
	SigningTypeMobile SigningType = "mobile"
	SigningTypeHybrid SigningType = "hybrid"
)

// RequiresRON reports whether any part of the signing happens over live video.
func (t SigningType) RequiresRON() bool {
	return t == SigningTypeRON || t == SigningTypeHybrid
}

// RequiresTravel reports whether the vendor must be physically present.
func (t SigningType) RequiresTravel() bool {
	return t == SigningTypeMobile || t == SigningTypeHybrid
}

// UnmarshalText accepts any case; unknown values are left for validation to reject.
func (t *SigningType) UnmarshalText(b []byte) error {
	*t = SigningType(normalizeEnum(b))
	return nil
}

type LoanType string

const (
	LoanTypePurchase        LoanType = "purchase"
	LoanTypeRefinance       LoanType = "refinance"
	LoanTypeHELOC           LoanType = "heloc"
	LoanTypeReverseMortgage LoanType = "reverse_mortgage"
	LoanTypeSeller          LoanType = "seller"
	LoanTypeOther           LoanType = "other"
)

func (l *LoanType) UnmarshalText(b []byte) error {
	*l = LoanType(normalizeEnum(b))
	return nil
}

type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

func (c *Channel) UnmarshalText(b []byte) error {
	*c = Channel(normalizeEnum(b))
	return nil
}

func normalizeEnum(b []byte) string {
	return strings.ToLower(strings.TrimSpace(string(b)))
}

type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether p is a finite coordinate with lat in [-90, 90] and lng in [-180, 180].
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w TimeWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Covers reports whether w fully contains other.
func (w TimeWindow) Covers(other TimeWindow) bool {
	return !w.Start.After(other.Start) && !w.End.Before(other.End)
}

// Overlaps reports whether the two windows share any instant.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

type SigningOrder struct {
	ID          string      `json:"id" validate:"omitempty,order_id"`
	State       string      `json:"state" validate:"required"`
	SigningType SigningType `json:"signing_type" validate:"required,oneof=ron mobile hybrid"`
	LoanType    LoanType    `json:"loan_type,omitempty" validate:"omitempty,oneof=purchase refinance heloc reverse_mortgage seller other"`
	Window      TimeWindow  `json:"window"`
	ServiceTier Tier        `json:"service_tier,omitempty"`
	Location    *GeoPoint   `json:"location,omitempty"`
	Status      OrderStatus `json:"status,omitempty"`
	CreatedAt   time.Time   `json:"created_at,omitempty"`
}

type Vendor struct {
	ID               string       `json:"id" validate:"required"`
	Name             string       `json:"name" validate:"required"`
	Phone            string       `json:"phone,omitempty" validate:"omitempty,e164"`
	Channel          Channel      `json:"channel,omitempty" validate:"omitempty,oneof=sms whatsapp"`
	LicensedStates   []string     `json:"licensed_states" validate:"required,min=1,dive,required"`
	RonAuthorized    bool         `json:"ron_authorized"`
	Tier             Tier         `json:"tier"`
	Specializations  []LoanType   `json:"specializations,omitempty" validate:"dive,oneof=purchase refinance heloc reverse_mortgage seller other"`
	PerformanceScore float64      `json:"performance_score" validate:"gte=0,lte=100"`
	Availability     []TimeWindow `json:"availability,omitempty"`
	Location         *GeoPoint    `json:"location,omitempty"`
	Active           bool         `json:"active"`
}

// LicensedIn compares state codes case-insensitively.
func (v Vendor) LicensedIn(state string) bool {
	for _, s := range v.LicensedStates {
		if strings.EqualFold(strings.TrimSpace(s), state) {
			return true
		}
	}
	return false
}

func (v Vendor) Specializes(loanType LoanType) bool {
	if loanType == "" {
		return false
	}
	for _, s := range v.Specializations {
		if s == loanType {
			return true
		}
	}
	return false
}

// AvailableFor reports whether one of the vendor's availability windows covers the order window.
// An order without a required window places no constraint.
func (v Vendor) AvailableFor(window TimeWindow) bool {
	if window.IsZero() {
		return true
	}
	for _, w := range v.Availability {
		if w.Covers(window) {
			return true
		}
	}
	return false
}

type Offer struct {
	ID        string        `json:"id"`
	OrderID   string        `json:"order_id"`
	VendorID  string        `json:"vendor_id"`
	Rank      int           `json:"rank"`
	Score     float64       `json:"score"`
	Status    OfferStatus   `json:"status"`
	ExpiresAt time.Time     `json:"expires_at"`
	Response  OfferResponse `json:"response,omitempty"`
}

type Escalation struct {
	OrderID   string      `json:"order_id"`
	State     string      `json:"state"`
	Status    OrderStatus `json:"status"`
	Reasons   []Reason    `json:"reasons"`
	UpdatedAt time.Time   `json:"updated_at"`
}
