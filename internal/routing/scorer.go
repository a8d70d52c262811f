// Package routing decides which notary vendor should be offered a signing order.
package routing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"notary-signing-router/internal/domain"
)

var ErrInvalidWeights = errors.New("routing: invalid score weights")

// Weights are applied to sub-scores normalized to 0..1 and must sum to 1.
type Weights struct {
	Tier           float64 `json:"tier"`
	Proximity      float64 `json:"proximity"`
	Specialization float64 `json:"specialization"`
	Performance    float64 `json:"performance"`
}

var DefaultWeights = Weights{
	Tier:           0.20,
	Proximity:      0.30,
	Specialization: 0.20,
	Performance:    0.30,
}

const (
	DefaultServiceRadiusMiles = 25.0

	// Generalists keep a partial specialization score.
	specializationBaseline = 0.4
	// Location is irrelevant for fully remote signings, so every vendor gets the same value.
	remoteProximityScore = 1.0
	maxPerformanceScore  = 100.0

	weightSumTolerance = 1e-9
	// Totals are rounded so float noise cannot split a genuine tie.
	totalPrecision = 1e6
)

func (w Weights) Validate() error {
	parts := []float64{w.Tier, w.Proximity, w.Specialization, w.Performance}
	sum := 0.0
	for _, p := range parts {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: weights must be finite and non-negative", ErrInvalidWeights)
		}
		sum += p
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1", ErrInvalidWeights, sum)
	}
	return nil
}

// Scorer computes comparable vendor scores. It holds no mutable state.
type Scorer struct {
	weights     Weights
	radiusMiles float64
}

func NewScorer(weights Weights, radiusMiles float64) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if radiusMiles <= 0 || math.IsNaN(radiusMiles) || math.IsInf(radiusMiles, 0) {
		return nil, fmt.Errorf("routing: service radius must be positive, got %v", radiusMiles)
	}
	return &Scorer{weights: weights, radiusMiles: radiusMiles}, nil
}

func (s *Scorer) Weights() Weights {
	return s.weights
}

func (s *Scorer) RadiusMiles() float64 {
	return s.radiusMiles
}

// Score rates vendor v for order o. Hard constraints are not checked here.
func (s *Scorer) Score(v domain.Vendor, o domain.SigningOrder) domain.VendorMatch {
	match := domain.VendorMatch{VendorID: v.ID, Tier: v.Tier}

	b := domain.ScoreBreakdown{
		Tier:           tierScore(v.Tier),
		Specialization: specializationScore(v, o.LoanType),
		Performance:    performanceScore(v.PerformanceScore),
	}
	if o.SigningType.RequiresTravel() {
		if d, ok := vendorDistance(v, o); ok {
			match.DistanceMiles = &d
			b.Proximity = proximityScore(d, s.radiusMiles)
		}
	} else {
		b.Proximity = remoteProximityScore
	}
	match.Breakdown = b

	total := s.weights.Tier*b.Tier +
		s.weights.Proximity*b.Proximity +
		s.weights.Specialization*b.Specialization +
		s.weights.Performance*b.Performance
	match.Total = math.Round(total*totalPrecision) / totalPrecision
	return match
}

func tierScore(t domain.Tier) float64 {
	if !t.Valid() {
		return 0
	}
	return float64(t) / float64(domain.MaxTier)
}

func proximityScore(distance, radius float64) float64 {
	if !(distance < radius) {
		return 0
	}
	if distance <= 0 {
		return 1
	}
	return 1 - distance/radius
}

func specializationScore(v domain.Vendor, loanType domain.LoanType) float64 {
	if v.Specializes(loanType) {
		return 1
	}
	return specializationBaseline
}

func performanceScore(raw float64) float64 {
	if math.IsNaN(raw) || raw <= 0 {
		return 0
	}
	if raw >= maxPerformanceScore {
		return 1
	}
	return raw / maxPerformanceScore
}

// vendorDistance reports false when either side has no usable coordinate.
func vendorDistance(v domain.Vendor, o domain.SigningOrder) (float64, bool) {
	if v.Location == nil || o.Location == nil || !v.Location.Valid() || !o.Location.Valid() {
		return 0, false
	}
	d := DistanceMiles(*v.Location, *o.Location)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, false
	}
	return d, true
}

// Rank orders matches by total descending, then tier descending, then vendor id ascending.
func Rank(matches []domain.VendorMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if a.Tier != b.Tier {
			return a.Tier > b.Tier
		}
		return a.VendorID < b.VendorID
	})
}
