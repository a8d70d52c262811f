package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	ActivityPolicyLoadOrder        = "load_order"
	ActivityPolicyFetchCandidates  = "fetch_candidates"
	ActivityPolicyRouteOrder       = "route_order"
	ActivityPolicyEscalateOrder    = "escalate_order"
	ActivityPolicyOfferAssignment  = "offer_assignment"
	ActivityPolicyResolveOffer     = "resolve_offer"
	ActivityPolicyCommitAssignment = "commit_assignment"
	ActivityPolicyNotifyAssignment = "notify_assignment"
)

type activityPolicy struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         temporal.RetryPolicy
}

var storeRetry = temporal.RetryPolicy{
	InitialInterval:    1 * time.Second,
	BackoffCoefficient: 2,
	MaximumInterval:    10 * time.Second,
	MaximumAttempts:    3,
}

var activityPolicies = map[string]activityPolicy{
	ActivityPolicyLoadOrder: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         storeRetry,
	},
	ActivityPolicyFetchCandidates: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         storeRetry,
	},
	ActivityPolicyRouteOrder: {
		StartToCloseTimeout: time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:        1 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        10 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{errTypeInvalidOrder},
		},
	},
	ActivityPolicyEscalateOrder: {
		StartToCloseTimeout: time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	},
	// Offer notifications go to a person's phone, so a failed send is retried only a couple of times.
	ActivityPolicyOfferAssignment: {
		StartToCloseTimeout: time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        10 * time.Second,
			MaximumAttempts:        2,
			NonRetryableErrorTypes: []string{errTypeUndeliverableOffer},
		},
	},
	ActivityPolicyResolveOffer: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         storeRetry,
	},
	ActivityPolicyCommitAssignment: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         storeRetry,
	},
	ActivityPolicyNotifyAssignment: {
		StartToCloseTimeout: time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	},
}

func ActivityOptionsFor(policyName string) (workflow.ActivityOptions, error) {
	policy, ok := activityPolicies[policyName]
	if !ok {
		return workflow.ActivityOptions{}, fmt.Errorf("unknown activity policy: %s", policyName)
	}

	retry := policy.RetryPolicy
	return workflow.ActivityOptions{
		StartToCloseTimeout: policy.StartToCloseTimeout,
		RetryPolicy:         &retry,
	}, nil
}

func mustActivityContext(ctx workflow.Context, policyName string) workflow.Context {
	ao, err := ActivityOptionsFor(policyName)
	if err != nil {
		panic(err)
	}
	return workflow.WithActivityOptions(ctx, ao)
}
