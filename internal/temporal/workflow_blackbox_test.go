package temporal

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"notary-signing-router/internal/domain"
)

type activityTrace struct {
	mu sync.Mutex

	startedOrder   []string
	completedOrder []string

	routeIn  *RouteOrderInput
	routeOut *RouteOrderOutput
	offerIn  []OfferAssignmentInput
	commitIn *CommitAssignmentInput
}

func (t *activityTrace) recordStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedOrder = append(t.startedOrder, name)
}

func (t *activityTrace) recordCompleted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedOrder = append(t.completedOrder, name)
}

var _ = Describe("SigningAssignmentWorkflow blackbox", func() {
	var (
		env      *testsuite.TestWorkflowEnvironment
		store    *fakeStore
		notifier *fakeNotifier
		trace    *activityTrace
	)

	BeforeEach(func() {
		var suite testsuite.WorkflowTestSuite
		env = suite.NewTestWorkflowEnvironment()

		store = seededStore("ord-blackbox-1")
		var acts *Activities
		acts, _, notifier = newTestActivities(GinkgoT(), store)
		trace = &activityTrace{}

		env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
			trace.recordStarted(info.ActivityType.Name)

			switch info.ActivityType.Name {
			case "RouteOrderActivity":
				var in RouteOrderInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.routeIn = &in
				trace.mu.Unlock()
			case "OfferAssignmentActivity":
				var in OfferAssignmentInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.offerIn = append(trace.offerIn, in)
				trace.mu.Unlock()
			case "CommitAssignmentActivity":
				var in CommitAssignmentInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.commitIn = &in
				trace.mu.Unlock()
			}
		})

		env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, _ error) {
			trace.recordCompleted(info.ActivityType.Name)

			if info.ActivityType.Name == "RouteOrderActivity" {
				var out RouteOrderOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.routeOut = &out
				trace.mu.Unlock()
			}
		})

		env.RegisterWorkflow(SigningAssignmentWorkflow)
		env.RegisterActivity(acts.LoadOrderActivity)
		env.RegisterActivity(acts.FetchCandidatesActivity)
		env.RegisterActivity(acts.RouteOrderActivity)
		env.RegisterActivity(acts.EscalateOrderActivity)
		env.RegisterActivity(acts.OfferAssignmentActivity)
		env.RegisterActivity(acts.ResolveOfferActivity)
		env.RegisterActivity(acts.CommitAssignmentActivity)
		env.RegisterActivity(acts.NotifyAssignmentActivity)
	})

	It("routes, offers to the top-ranked vendor and assigns on acceptance", func() {
		By("accepting the first offer a few minutes after it is sent")
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(OfferResponseSignalName, OfferResponseSignal{
				VendorID: "v-0001",
				Response: domain.OfferResponseAccept,
			})
		}, 5*time.Minute)

		By("running the workflow")
		env.ExecuteWorkflow(SigningAssignmentWorkflow, WorkflowInput{
			OrderID:      "ord-blackbox-1",
			MaxOffers:    3,
			OfferTimeout: 30 * time.Minute,
		})

		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var result WorkflowResult
		Expect(env.GetWorkflowResult(&result)).To(Succeed())
		Expect(result).To(Equal(WorkflowResult{OrderID: "ord-blackbox-1", Status: domain.StatusAssigned, VendorID: "v-0001"}))

		By("validating activity order")
		expected := []string{
			"LoadOrderActivity",
			"FetchCandidatesActivity",
			"RouteOrderActivity",
			"OfferAssignmentActivity",
			"CommitAssignmentActivity",
			"NotifyAssignmentActivity",
		}
		Expect(trace.startedOrder).To(Equal(expected))
		Expect(trace.completedOrder).To(Equal(expected))

		By("validating the routing decision handed to the offer loop")
		Expect(trace.routeIn).ToNot(BeNil())
		Expect(trace.routeIn.DecisionID).ToNot(BeEmpty())
		Expect(trace.routeIn.Candidates).To(HaveLen(3))

		Expect(trace.routeOut).ToNot(BeNil())
		decision := trace.routeOut.Decision
		Expect(decision.Status).To(Equal(domain.DecisionMatched))
		Expect(decision.Evaluated).To(Equal(3))
		Expect(decision.Ranked).To(HaveLen(3))
		Expect(decision.Selected.VendorID).To(Equal("v-0001"))
		Expect([]string{decision.Ranked[0].VendorID, decision.Ranked[1].VendorID, decision.Ranked[2].VendorID}).
			To(Equal([]string{"v-0001", "v-0002", "v-0003"}))
		for i := 1; i < len(decision.Ranked); i++ {
			Expect(decision.Ranked[i-1].Total).To(BeNumerically(">=", decision.Ranked[i].Total))
		}
		Expect(trace.routeOut.ObjectKey).To(Equal("ord-blackbox-1/decisions/" + decision.ID + ".json"))

		Expect(trace.offerIn).To(HaveLen(1))
		Expect(trace.offerIn[0].Rank).To(Equal(1))
		Expect(trace.offerIn[0].Match.VendorID).To(Equal("v-0001"))
		Expect(trace.offerIn[0].ExpiresAt).To(BeTemporally(">=", trace.routeIn.DecidedAt.Add(30*time.Minute)))

		Expect(trace.commitIn).ToNot(BeNil())
		Expect(trace.commitIn.Window).To(Equal(store.orders["ord-blackbox-1"].Window))

		By("validating persisted side effects")
		store.mu.Lock()
		assigned := store.assigned["ord-blackbox-1"]
		status := store.orders["ord-blackbox-1"].Status
		auditStates := append([]domain.AuditState(nil), store.audit["ord-blackbox-1"]...)
		store.mu.Unlock()

		Expect(assigned).To(Equal("v-0001"))
		Expect(status).To(Equal(domain.StatusAssigned))
		Expect(auditStates).To(Equal([]domain.AuditState{
			domain.AuditRouted,
			domain.AuditOffered,
			domain.AuditAssigned,
		}))
		Expect(notifier.recipients()).To(HaveLen(2))
	})

	It("walks the ranked list on timeouts and escalates when offers run out", func() {
		env.ExecuteWorkflow(SigningAssignmentWorkflow, WorkflowInput{
			OrderID:      "ord-blackbox-1",
			MaxOffers:    5,
			OfferTimeout: 15 * time.Minute,
		})

		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var result WorkflowResult
		Expect(env.GetWorkflowResult(&result)).To(Succeed())
		Expect(result.Status).To(Equal(domain.StatusEscalated))

		By("offering only as many vendors as were ranked")
		Expect(trace.offerIn).To(HaveLen(3))
		for i, in := range trace.offerIn {
			Expect(in.Rank).To(Equal(i + 1))
		}
		Expect(trace.commitIn).To(BeNil())
		Expect(trace.startedOrder[len(trace.startedOrder)-1]).To(Equal("EscalateOrderActivity"))

		store.mu.Lock()
		reasons := store.escalated["ord-blackbox-1"]
		store.mu.Unlock()
		Expect(reasons).To(HaveLen(1))
		Expect(reasons[0].Code).To(Equal(domain.ReasonOffersExhausted))
		Expect(reasons[0].Message).To(ContainSubstring("3 offer(s)"))
	})
})
