package routing

import (
	"fmt"

	"go.uber.org/zap"

	"notary-signing-router/internal/domain"
	"notary-signing-router/internal/eligibility"
)

// Engine turns an order and an already-fetched candidate roster into a Decision.
// It performs no I/O and keeps no state between calls, so one Engine can serve
// concurrent routing calls for different orders.
type Engine struct {
	matrix *eligibility.Matrix
	scorer *Scorer
	log    *zap.Logger
}

type engineConfig struct {
	weights     Weights
	radiusMiles float64
	log         *zap.Logger
}

type Option func(*engineConfig)

func WithWeights(w Weights) Option {
	return func(c *engineConfig) { c.weights = w }
}

func WithServiceRadius(miles float64) Option {
	return func(c *engineConfig) { c.radiusMiles = miles }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *engineConfig) { c.log = l }
}

func NewEngine(matrix *eligibility.Matrix, opts ...Option) (*Engine, error) {
	cfg := engineConfig{
		weights:     DefaultWeights,
		radiusMiles: DefaultServiceRadiusMiles,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if matrix == nil {
		matrix = eligibility.NewMatrix(nil)
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop()
	}
	scorer, err := NewScorer(cfg.weights, cfg.radiusMiles)
	if err != nil {
		return nil, err
	}
	return &Engine{matrix: matrix, scorer: scorer, log: cfg.log}, nil
}

func (e *Engine) Matrix() *eligibility.Matrix {
	return e.matrix
}

func (e *Engine) Scorer() *Scorer {
	return e.scorer
}

// per-vendor disqualifications, reported in this order
var vendorReasonOrder = []domain.ReasonCode{
	domain.ReasonNotLicensed,
	domain.ReasonRONNotAuthorized,
	domain.ReasonMissingLocation,
	domain.ReasonOutsideRadius,
	domain.ReasonUnavailable,
}

// Route returns an error only for orders that fail validation (wrapping domain.ErrInvalidOrder).
// Every other outcome, including no eligible vendor, is a Decision.
func (e *Engine) Route(order domain.SigningOrder, candidates []domain.Vendor) (domain.Decision, error) {
	if err := domain.ValidateOrder(order); err != nil {
		return domain.Decision{}, err
	}

	state := eligibility.NormalizeState(order.State)
	decision := domain.Decision{OrderID: order.ID}

	cfg, known := e.matrix.StateConfig(state)
	switch {
	case !known:
		e.log.Warn("state missing from eligibility matrix",
			zap.String("order_id", order.ID),
			zap.String("state", state))
		return unmatched(decision, domain.Reason{
			Code:    domain.ReasonStateInactive,
			Message: fmt.Sprintf("state %s is not configured for service", state),
		}), nil
	case !cfg.Active:
		return unmatched(decision, domain.Reason{
			Code:    domain.ReasonStateInactive,
			Message: fmt.Sprintf("state %s is not currently served", state),
		}), nil
	case order.SigningType.RequiresRON() && !e.matrix.IsRonAllowed(state):
		return unmatched(decision, domain.Reason{
			Code:    domain.ReasonRONNotPermitted,
			Message: fmt.Sprintf("RON is not permitted in %s", state),
		}), nil
	}

	unique := dedupeVendors(candidates)
	decision.Evaluated = len(unique)
	if len(unique) == 0 {
		return unmatched(decision, domain.Reason{
			Code:    domain.ReasonNoCandidates,
			Message: "no candidates supplied",
		}), nil
	}

	dropped := make(map[domain.ReasonCode]int)
	matches := make([]domain.VendorMatch, 0, len(unique))
	for _, v := range unique {
		if code, ok := e.disqualify(v, order, state); ok {
			dropped[code]++
			continue
		}
		matches = append(matches, e.scorer.Score(v, order))
	}

	if len(matches) == 0 {
		reasons := make([]domain.Reason, 0, len(dropped))
		for _, code := range vendorReasonOrder {
			if n := dropped[code]; n > 0 {
				reasons = append(reasons, domain.Reason{
					Code:    code,
					Message: vendorReasonMessage(code, n, state, e.scorer.RadiusMiles()),
					Vendors: n,
				})
			}
		}
		e.log.Debug("no eligible vendor",
			zap.String("order_id", order.ID),
			zap.String("state", state),
			zap.Int("evaluated", decision.Evaluated))
		decision.Status = domain.DecisionUnmatched
		decision.Reasons = reasons
		return decision, nil
	}

	Rank(matches)
	selected := matches[0]
	decision.Status = domain.DecisionMatched
	decision.Selected = &selected
	decision.Ranked = matches

	e.log.Debug("vendor matched",
		zap.String("order_id", order.ID),
		zap.String("vendor_id", selected.VendorID),
		zap.Float64("score", selected.Total),
		zap.Int("eligible", len(matches)),
		zap.Int("evaluated", decision.Evaluated))
	return decision, nil
}

// disqualify returns the first hard constraint v fails for order, if any.
func (e *Engine) disqualify(v domain.Vendor, order domain.SigningOrder, state string) (domain.ReasonCode, bool) {
	if !v.LicensedIn(state) {
		return domain.ReasonNotLicensed, true
	}
	if order.SigningType.RequiresRON() && !v.RonAuthorized {
		return domain.ReasonRONNotAuthorized, true
	}
	if order.SigningType.RequiresTravel() {
		d, ok := vendorDistance(v, order)
		if !ok {
			return domain.ReasonMissingLocation, true
		}
		if !(d <= e.scorer.RadiusMiles()) {
			return domain.ReasonOutsideRadius, true
		}
	}
	if !v.AvailableFor(order.Window) {
		return domain.ReasonUnavailable, true
	}
	return "", false
}

func unmatched(d domain.Decision, reason domain.Reason) domain.Decision {
	d.Status = domain.DecisionUnmatched
	d.Reasons = []domain.Reason{reason}
	return d
}

// dedupeVendors keeps the first occurrence of each vendor id.
func dedupeVendors(candidates []domain.Vendor) []domain.Vendor {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]domain.Vendor, 0, len(candidates))
	for _, v := range candidates {
		if _, dup := seen[v.ID]; dup {
			continue
		}
		seen[v.ID] = struct{}{}
		out = append(out, v)
	}
	return out
}

func vendorReasonMessage(code domain.ReasonCode, n int, state string, radius float64) string {
	switch code {
	case domain.ReasonNotLicensed:
		return fmt.Sprintf("%d vendor(s) not licensed in %s", n, state)
	case domain.ReasonRONNotAuthorized:
		return fmt.Sprintf("no RON-authorized vendor in %s (%d without authorization)", state, n)
	case domain.ReasonMissingLocation:
		return fmt.Sprintf("%d vendor(s) have no usable location on file", n)
	case domain.ReasonOutsideRadius:
		return fmt.Sprintf("no vendor within %.0f-mile service radius (%d too far)", radius, n)
	case domain.ReasonUnavailable:
		return fmt.Sprintf("%d vendor(s) unavailable for the required window", n)
	default:
		return fmt.Sprintf("%d vendor(s) disqualified: %s", n, code)
	}
}
