package temporal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"notary-signing-router/internal/domain"
	"notary-signing-router/internal/notify"
	"notary-signing-router/internal/storage"
)

const (
	errTypeInvalidOrder       = "InvalidOrder"
	errTypeOrderNotFound      = "OrderNotFound"
	errTypeUndeliverableOffer = "UndeliverableOffer"
)

// CommitOutcome is how an accepted offer ended once the assignment write ran.
type CommitOutcome string

const (
	CommitAssigned    CommitOutcome = "assigned"
	CommitVendorBusy  CommitOutcome = "vendor_busy"
	CommitOrderClosed CommitOutcome = "order_taken"
)

type ActivityStore interface {
	GetOrder(ctx context.Context, orderID string) (domain.SigningOrder, error)
	GetOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, *string, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
	ListCandidateVendors(ctx context.Context, state string) ([]domain.Vendor, error)
	GetVendor(ctx context.Context, vendorID string) (domain.Vendor, error)
	SaveDecision(ctx context.Context, d domain.Decision, objectKey string) error
	CreateOffer(ctx context.Context, offer domain.Offer) error
	ResolveOffer(ctx context.Context, orderID, vendorID string, status domain.OfferStatus) error
	AssignVendor(ctx context.Context, orderID, vendorID string, window domain.TimeWindow) error
	MarkEscalated(ctx context.Context, orderID string, status domain.OrderStatus, reasons []domain.Reason) error
	InsertAudit(ctx context.Context, orderID string, state domain.AuditState, detail any) error
}

type BlobStore interface {
	PutDecision(ctx context.Context, orderID, decisionID string, payload []byte) (string, error)
}

type Router interface {
	Route(order domain.SigningOrder, candidates []domain.Vendor) (domain.Decision, error)
}

type Activities struct {
	Store        ActivityStore
	Blob         BlobStore
	Router       Router
	Notifier     notify.Notifier
	EscalationTo string
	Log          *zap.Logger
}

type LoadOrderInput struct {
	OrderID string
}

type LoadOrderOutput struct {
	Order domain.SigningOrder
}

type FetchCandidatesInput struct {
	OrderID string
	State   string
}

type FetchCandidatesOutput struct {
	Vendors []domain.Vendor
}

type RouteOrderInput struct {
	DecisionID string
	DecidedAt  time.Time
	Order      domain.SigningOrder
	Candidates []domain.Vendor
}

type RouteOrderOutput struct {
	Decision  domain.Decision
	ObjectKey string
}

type EscalateOrderInput struct {
	OrderID string
	State   string
	Status  domain.OrderStatus
	Reasons []domain.Reason
}

type OfferAssignmentInput struct {
	OfferID   string
	Order     domain.SigningOrder
	Match     domain.VendorMatch
	Rank      int
	ExpiresAt time.Time
	Timeout   time.Duration
}

type ResolveOfferInput struct {
	OrderID  string
	VendorID string
	Status   domain.OfferStatus
	// Reason lands in the audit detail when set, e.g. "undeliverable".
	Reason string
}

type CommitAssignmentInput struct {
	OrderID  string
	VendorID string
	Window   domain.TimeWindow
}

type CommitAssignmentOutput struct {
	Outcome CommitOutcome
	// AssignedVendor is the vendor holding the order when Outcome is order_taken.
	AssignedVendor string
}

type NotifyAssignmentInput struct {
	Order    domain.SigningOrder
	VendorID string
}

func (a *Activities) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

func (a *Activities) LoadOrderActivity(ctx context.Context, input LoadOrderInput) (LoadOrderOutput, error) {
	order, err := a.Store.GetOrder(ctx, input.OrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return LoadOrderOutput{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("order %s not found", input.OrderID), errTypeOrderNotFound, err)
	}
	if err != nil {
		return LoadOrderOutput{}, err
	}
	return LoadOrderOutput{Order: order}, nil
}

func (a *Activities) FetchCandidatesActivity(ctx context.Context, input FetchCandidatesInput) (FetchCandidatesOutput, error) {
	vendors, err := a.Store.ListCandidateVendors(ctx, input.State)
	if err != nil {
		return FetchCandidatesOutput{}, fmt.Errorf("list candidates for %s: %w", input.State, err)
	}
	a.logger().Debug("candidate roster loaded",
		zap.String("order_id", input.OrderID),
		zap.String("state", input.State),
		zap.Int("vendors", len(vendors)))
	return FetchCandidatesOutput{Vendors: vendors}, nil
}

func (a *Activities) RouteOrderActivity(ctx context.Context, input RouteOrderInput) (RouteOrderOutput, error) {
	if err := a.Store.UpdateOrderStatus(ctx, input.Order.ID, domain.StatusRouting); err != nil {
		return RouteOrderOutput{}, err
	}

	decision, err := a.Router.Route(input.Order, input.Candidates)
	if errors.Is(err, domain.ErrInvalidOrder) {
		if updErr := a.Store.UpdateOrderStatus(ctx, input.Order.ID, domain.StatusInvalid); updErr != nil {
			return RouteOrderOutput{}, updErr
		}
		if auditErr := a.Store.InsertAudit(ctx, input.Order.ID, domain.AuditInvalid, map[string]any{"error": err.Error()}); auditErr != nil {
			return RouteOrderOutput{}, auditErr
		}
		return RouteOrderOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidOrder, err)
	}
	if err != nil {
		return RouteOrderOutput{}, err
	}

	decision.ID = input.DecisionID
	decision.DecidedAt = input.DecidedAt.UTC()

	payload, err := json.Marshal(decision)
	if err != nil {
		return RouteOrderOutput{}, err
	}
	objectKey, err := a.Blob.PutDecision(ctx, decision.OrderID, decision.ID, payload)
	if err != nil {
		return RouteOrderOutput{}, fmt.Errorf("archive decision: %w", err)
	}
	if err := a.Store.SaveDecision(ctx, decision, objectKey); err != nil {
		return RouteOrderOutput{}, err
	}

	detail := map[string]any{
		"decision_id": decision.ID,
		"status":      decision.Status,
		"evaluated":   decision.Evaluated,
		"ranked":      len(decision.Ranked),
	}
	if decision.Selected != nil {
		detail["selected"] = decision.Selected.VendorID
	}
	if err := a.Store.InsertAudit(ctx, decision.OrderID, domain.AuditRouted, detail); err != nil {
		return RouteOrderOutput{}, err
	}

	a.logger().Info("order routed",
		zap.String("order_id", decision.OrderID),
		zap.String("status", string(decision.Status)),
		zap.Int("evaluated", decision.Evaluated),
		zap.Int("ranked", len(decision.Ranked)))
	return RouteOrderOutput{Decision: decision, ObjectKey: objectKey}, nil
}

func (a *Activities) EscalateOrderActivity(ctx context.Context, input EscalateOrderInput) error {
	if err := a.Store.MarkEscalated(ctx, input.OrderID, input.Status, input.Reasons); err != nil {
		return err
	}
	if err := a.Store.InsertAudit(ctx, input.OrderID, domain.AuditEscalated, map[string]any{
		"status":  input.Status,
		"reasons": input.Reasons,
	}); err != nil {
		return err
	}

	a.logger().Warn("order escalated",
		zap.String("order_id", input.OrderID),
		zap.String("status", string(input.Status)),
		zap.Int("reasons", len(input.Reasons)))

	if a.EscalationTo == "" {
		return nil
	}
	err := a.Notifier.Send(ctx, notify.Message{
		To:      a.EscalationTo,
		Channel: domain.ChannelSMS,
		Body:    notify.BuildEscalationMessage(input.OrderID, input.State, input.Reasons),
	})
	if err != nil {
		a.logger().Error("escalation notification failed", zap.String("order_id", input.OrderID), zap.Error(err))
	}
	return nil
}

func (a *Activities) OfferAssignmentActivity(ctx context.Context, input OfferAssignmentInput) error {
	vendor, err := a.Store.GetVendor(ctx, input.Match.VendorID)
	if err != nil {
		return fmt.Errorf("load vendor %s: %w", input.Match.VendorID, err)
	}

	offer := domain.Offer{
		ID:        input.OfferID,
		OrderID:   input.Order.ID,
		VendorID:  vendor.ID,
		Rank:      input.Rank,
		Score:     input.Match.Total,
		Status:    domain.OfferPending,
		ExpiresAt: input.ExpiresAt.UTC(),
	}
	if err := a.Store.CreateOffer(ctx, offer); err != nil {
		return err
	}
	if err := a.Store.InsertAudit(ctx, offer.OrderID, domain.AuditOffered, map[string]any{
		"vendor_id":  offer.VendorID,
		"rank":       offer.Rank,
		"score":      offer.Score,
		"expires_at": offer.ExpiresAt,
	}); err != nil {
		return err
	}

	err = a.Notifier.Send(ctx, notify.Message{
		To:      vendor.Phone,
		Channel: vendor.Channel,
		Body:    notify.BuildOfferMessage(input.Order, input.Timeout),
	})
	if errors.Is(err, notify.ErrUndeliverable) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("offer to vendor %s undeliverable", vendor.ID), errTypeUndeliverableOffer, err)
	}
	return err
}

func (a *Activities) ResolveOfferActivity(ctx context.Context, input ResolveOfferInput) error {
	if err := a.Store.ResolveOffer(ctx, input.OrderID, input.VendorID, input.Status); err != nil {
		return err
	}
	var state domain.AuditState
	switch input.Status {
	case domain.OfferDeclined:
		state = domain.AuditDeclined
	case domain.OfferExpired:
		state = domain.AuditExpired
	default:
		return nil
	}
	detail := map[string]any{"vendor_id": input.VendorID}
	if input.Reason != "" {
		detail["reason"] = input.Reason
	}
	return a.Store.InsertAudit(ctx, input.OrderID, state, detail)
}

func (a *Activities) CommitAssignmentActivity(ctx context.Context, input CommitAssignmentInput) (CommitAssignmentOutput, error) {
	err := a.Store.AssignVendor(ctx, input.OrderID, input.VendorID, input.Window)
	switch {
	case err == nil:
		if err := a.Store.InsertAudit(ctx, input.OrderID, domain.AuditAssigned, map[string]any{"vendor_id": input.VendorID}); err != nil {
			return CommitAssignmentOutput{}, err
		}
		return CommitAssignmentOutput{Outcome: CommitAssigned}, nil
	case errors.Is(err, storage.ErrVendorDoubleBooked):
		if err := a.Store.ResolveOffer(ctx, input.OrderID, input.VendorID, domain.OfferLost); err != nil {
			return CommitAssignmentOutput{}, err
		}
		a.logger().Info("accepted offer lost to an overlapping booking",
			zap.String("order_id", input.OrderID),
			zap.String("vendor_id", input.VendorID))
		return CommitAssignmentOutput{Outcome: CommitVendorBusy}, nil
	case errors.Is(err, storage.ErrOrderAlreadyAssigned):
		if err := a.Store.ResolveOffer(ctx, input.OrderID, input.VendorID, domain.OfferLost); err != nil {
			return CommitAssignmentOutput{}, err
		}
		_, assigned, statusErr := a.Store.GetOrderStatus(ctx, input.OrderID)
		if statusErr != nil {
			return CommitAssignmentOutput{}, statusErr
		}
		out := CommitAssignmentOutput{Outcome: CommitOrderClosed}
		if assigned != nil {
			out.AssignedVendor = *assigned
		}
		return out, nil
	default:
		return CommitAssignmentOutput{}, err
	}
}

func (a *Activities) NotifyAssignmentActivity(ctx context.Context, input NotifyAssignmentInput) error {
	vendor, err := a.Store.GetVendor(ctx, input.VendorID)
	if err != nil {
		return err
	}
	return a.Notifier.Send(ctx, notify.Message{
		To:      vendor.Phone,
		Channel: vendor.Channel,
		Body:    notify.BuildAssignedMessage(input.Order),
	})
}
