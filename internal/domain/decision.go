package domain

import "time"

type DecisionStatus string

const (
	DecisionMatched   DecisionStatus = "matched"
	DecisionUnmatched DecisionStatus = "unmatched"
)

// ReasonCode is a machine-readable cause for dropping candidates or for an unmatched decision.
type ReasonCode string

const (
	ReasonNoCandidates     ReasonCode = "no_candidates"
	ReasonStateInactive    ReasonCode = "state_inactive"
	ReasonRONNotPermitted  ReasonCode = "ron_not_permitted"
	ReasonNotLicensed      ReasonCode = "not_licensed"
	ReasonRONNotAuthorized ReasonCode = "ron_not_authorized"
	ReasonMissingLocation  ReasonCode = "missing_location"
	ReasonOutsideRadius    ReasonCode = "outside_service_radius"
	ReasonUnavailable      ReasonCode = "unavailable"
	ReasonOffersExhausted  ReasonCode = "offers_exhausted"
)

type Reason struct {
	Code    ReasonCode `json:"code"`
	Message string     `json:"message"`
	// Vendors counts candidates dropped for this reason; zero for order-level reasons.
	Vendors int `json:"vendors,omitempty"`
}

type ScoreBreakdown struct {
	Tier           float64 `json:"tier"`
	Proximity      float64 `json:"proximity"`
	Specialization float64 `json:"specialization"`
	Performance    float64 `json:"performance"`
}

type VendorMatch struct {
	VendorID      string         `json:"vendor_id"`
	Tier          Tier           `json:"tier"`
	Total         float64        `json:"total"`
	Breakdown     ScoreBreakdown `json:"breakdown"`
	DistanceMiles *float64       `json:"distance_miles,omitempty"`
}

type Decision struct {
	ID        string         `json:"id"`
	OrderID   string         `json:"order_id"`
	Status    DecisionStatus `json:"status"`
	Selected  *VendorMatch   `json:"selected,omitempty"`
	Ranked    []VendorMatch  `json:"ranked,omitempty"`
	Reasons   []Reason       `json:"reasons,omitempty"`
	Evaluated int            `json:"evaluated"`
	DecidedAt time.Time      `json:"decided_at"`
}

func (d Decision) Matched() bool {
	return d.Status == DecisionMatched && d.Selected != nil
}

// HasReason reports whether the decision carries the given reason code.
func (d Decision) HasReason(code ReasonCode) bool {
	for _, r := range d.Reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}
