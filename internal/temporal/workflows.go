package temporal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/workflow"

	"notary-signing-router/internal/domain"
)

const SigningAssignmentWorkflowName = "SigningAssignmentWorkflow"

const (
	DefaultMaxOffers    = 3
	DefaultOfferTimeout = 30 * time.Minute
)

type WorkflowInput struct {
	OrderID      string
	MaxOffers    int
	OfferTimeout time.Duration
}

type WorkflowResult struct {
	OrderID  string
	Status   domain.OrderStatus
	VendorID string
}

// WorkflowID is the deterministic workflow id for an order, so duplicate intake events collapse
// onto one execution.
func WorkflowID(prefix, orderID string) string {
	return fmt.Sprintf("%s-%s", prefix, orderID)
}

// StartOptions admits one assignment run per order. A failed run may be retried under the same
// id; a completed one may not, so a replayed intake event cannot re-offer a closed order.
func StartOptions(prefix, taskQueue, orderID string) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:                    WorkflowID(prefix, orderID),
		TaskQueue:             taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
	}
}

func SigningAssignmentWorkflow(ctx workflow.Context, input WorkflowInput) (WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	maxOffers := input.MaxOffers
	if maxOffers <= 0 {
		maxOffers = DefaultMaxOffers
	}
	offerTimeout := input.OfferTimeout
	if offerTimeout <= 0 {
		offerTimeout = DefaultOfferTimeout
	}

	state := AssignmentState{OrderID: input.OrderID, Status: domain.StatusReceived}
	if err := workflow.SetQueryHandler(ctx, AssignmentStateQueryName, func() (AssignmentState, error) {
		return state, nil
	}); err != nil {
		return WorkflowResult{}, err
	}

	var loaded LoadOrderOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyLoadOrder), (*Activities).LoadOrderActivity, LoadOrderInput{
		OrderID: input.OrderID,
	}).Get(ctx, &loaded); err != nil {
		return WorkflowResult{}, err
	}
	order := loaded.Order
	if order.Status != domain.StatusReceived {
		logger.Info("order is past intake, nothing to route", "OrderID", order.ID, "Status", order.Status)
		state.Status = order.Status
		return WorkflowResult{OrderID: order.ID, Status: order.Status}, nil
	}

	var roster FetchCandidatesOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyFetchCandidates), (*Activities).FetchCandidatesActivity, FetchCandidatesInput{
		OrderID: order.ID,
		State:   order.State,
	}).Get(ctx, &roster); err != nil {
		return WorkflowResult{}, err
	}

	state.Status = domain.StatusRouting
	var routed RouteOrderOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyRouteOrder), (*Activities).RouteOrderActivity, RouteOrderInput{
		DecisionID: newID(ctx),
		DecidedAt:  workflow.Now(ctx),
		Order:      order,
		Candidates: roster.Vendors,
	}).Get(ctx, &routed); err != nil {
		return WorkflowResult{}, err
	}

	if !routed.Decision.Matched() {
		return escalate(ctx, &state, order, domain.StatusUnassignable, routed.Decision.Reasons)
	}

	ranked := routed.Decision.Ranked
	if len(ranked) > maxOffers {
		ranked = ranked[:maxOffers]
	}

	responses := workflow.GetSignalChannel(ctx, OfferResponseSignalName)
	for i, match := range ranked {
		offerID := newID(ctx)
		expiresAt := workflow.Now(ctx).Add(offerTimeout)
		if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyOfferAssignment), (*Activities).OfferAssignmentActivity, OfferAssignmentInput{
			OfferID:   offerID,
			Order:     order,
			Match:     match,
			Rank:      i + 1,
			ExpiresAt: expiresAt,
			Timeout:   offerTimeout,
		}).Get(ctx, nil); err != nil {
			logger.Warn("offer could not be delivered, moving to next vendor", "OrderID", order.ID, "VendorID", match.VendorID, "Error", err)
			// The offer row may already exist; close it so the vendor cannot accept a dead offer.
			if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyResolveOffer), (*Activities).ResolveOfferActivity, ResolveOfferInput{
				OrderID:  order.ID,
				VendorID: match.VendorID,
				Status:   domain.OfferExpired,
				Reason:   "undeliverable",
			}).Get(ctx, nil); err != nil {
				logger.Warn("could not close undelivered offer", "OrderID", order.ID, "VendorID", match.VendorID, "Error", err)
			}
			continue
		}
		state.Status = domain.StatusOffered
		state.OfferedVendor = match.VendorID
		state.OffersSent++

		response, answered := awaitResponse(ctx, responses, match.VendorID, offerTimeout)
		state.OfferedVendor = ""

		if !answered || response == domain.OfferResponseDecline {
			status := domain.OfferExpired
			if answered {
				status = domain.OfferDeclined
			}
			if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyResolveOffer), (*Activities).ResolveOfferActivity, ResolveOfferInput{
				OrderID:  order.ID,
				VendorID: match.VendorID,
				Status:   status,
			}).Get(ctx, nil); err != nil {
				return WorkflowResult{}, err
			}
			continue
		}

		var committed CommitAssignmentOutput
		if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyCommitAssignment), (*Activities).CommitAssignmentActivity, CommitAssignmentInput{
			OrderID:  order.ID,
			VendorID: match.VendorID,
			Window:   order.Window,
		}).Get(ctx, &committed); err != nil {
			return WorkflowResult{}, err
		}

		switch committed.Outcome {
		case CommitAssigned:
			state.Status = domain.StatusAssigned
			state.AssignedVendor = match.VendorID
			_ = workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyNotifyAssignment), (*Activities).NotifyAssignmentActivity, NotifyAssignmentInput{
				Order:    order,
				VendorID: match.VendorID,
			}).Get(ctx, nil)
			return WorkflowResult{OrderID: order.ID, Status: domain.StatusAssigned, VendorID: match.VendorID}, nil
		case CommitOrderClosed:
			state.Status = domain.StatusAssigned
			state.AssignedVendor = committed.AssignedVendor
			return WorkflowResult{OrderID: order.ID, Status: domain.StatusAssigned, VendorID: committed.AssignedVendor}, nil
		default:
			logger.Info("vendor accepted but is no longer free", "OrderID", order.ID, "VendorID", match.VendorID)
		}
	}

	return escalate(ctx, &state, order, domain.StatusEscalated, []domain.Reason{{
		Code:    domain.ReasonOffersExhausted,
		Message: fmt.Sprintf("no vendor accepted after %d offer(s)", state.OffersSent),
	}})
}

// awaitResponse blocks until vendorID answers or the timeout fires. Responses from any other
// vendor are stale and dropped.
func awaitResponse(ctx workflow.Context, ch workflow.ReceiveChannel, vendorID string, timeout time.Duration) (domain.OfferResponse, bool) {
	logger := workflow.GetLogger(ctx)

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	defer cancelTimer()
	timer := workflow.NewTimer(timerCtx, timeout)

	var (
		response domain.OfferResponse
		answered bool
		expired  bool
	)
	for !answered && !expired {
		selector := workflow.NewSelector(ctx)
		selector.AddReceive(ch, func(c workflow.ReceiveChannel, _ bool) {
			var sig OfferResponseSignal
			c.Receive(ctx, &sig)
			if sig.VendorID != vendorID {
				logger.Info("ignoring response for inactive offer", "VendorID", sig.VendorID)
				return
			}
			switch sig.Response {
			case domain.OfferResponseAccept, domain.OfferResponseDecline:
				response = sig.Response
				answered = true
			default:
				logger.Warn("ignoring unknown offer response", "VendorID", sig.VendorID, "Response", sig.Response)
			}
		})
		selector.AddFuture(timer, func(workflow.Future) {
			expired = true
		})
		selector.Select(ctx)
	}
	return response, answered
}

func escalate(ctx workflow.Context, state *AssignmentState, order domain.SigningOrder, status domain.OrderStatus, reasons []domain.Reason) (WorkflowResult, error) {
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyEscalateOrder), (*Activities).EscalateOrderActivity, EscalateOrderInput{
		OrderID: order.ID,
		State:   order.State,
		Status:  status,
		Reasons: reasons,
	}).Get(ctx, nil); err != nil {
		return WorkflowResult{}, err
	}
	state.Status = status
	return WorkflowResult{OrderID: order.ID, Status: status}, nil
}

func newID(ctx workflow.Context) string {
	var id string
	encoded := workflow.SideEffect(ctx, func(workflow.Context) any {
		return uuid.NewString()
	})
	_ = encoded.Get(&id)
	return id
}
