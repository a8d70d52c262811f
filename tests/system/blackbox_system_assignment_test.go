//go:build system

package system_test

import (
	"context"
	"database/sql"
	"net/http"
	"os"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/client"

	"notary-signing-router/internal/domain"
)

var _ = Describe("System blackbox assignment", Ordered, func() {
	var repoRoot string
	var cfg systemTestConfig

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run the blackbox system test")
		}
		cfg = loadSystemTestConfig()

		var err error
		repoRoot, err = findRepoRoot()
		Expect(err).ToNot(HaveOccurred())

		By("verifying docker compose services are already running")
		Expect(requireComposeServicesRunning(repoRoot, cfg.RequiredComposeServices)).To(Succeed())

		By("failing fast if infrastructure is unreachable")
		Expect(waitForPostgres(cfg.PostgresDSN, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.MinioReadyURL, http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.APIBaseURL+"/healthz", http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.APIBaseURL+"/readyz", http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForWorkerPoller(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.TemporalTaskQueue, cfg.WorkerPollerTimeout)).To(Succeed())
		Expect(applyMigration(repoRoot, cfg.PostgresDSN)).To(Succeed())
	})

	It("routes a RON order and assigns the vendor that accepts the offer", func() {
		vendorID := "sys-" + uuid.NewString()[:8]

		By("registering a RON-authorized vendor licensed in PA")
		vendor := domain.Vendor{
			ID:               vendorID,
			Name:             "System Test Notary",
			Channel:          domain.ChannelSMS,
			LicensedStates:   []string{"pa"},
			RonAuthorized:    true,
			Tier:             domain.TierPlatinum,
			PerformanceScore: 100,
			Active:           true,
		}
		var saved domain.Vendor
		Expect(sendJSON(http.MethodPut, cfg.APIBaseURL+"/v1/vendors/"+vendorID, vendor, &saved)).To(Succeed())
		Expect(saved.LicensedStates).To(Equal([]string{"PA"}))

		By("submitting a signing order like an intake client")
		order := domain.SigningOrder{
			State:       "PA",
			SigningType: domain.SigningTypeRON,
			LoanType:    domain.LoanTypeRefinance,
		}
		var created createOrderResponse
		Expect(sendJSON(http.MethodPost, cfg.APIBaseURL+"/v1/orders", order, &created)).To(Succeed())
		Expect(created.OrderID).ToNot(BeEmpty())
		Expect(created.WorkflowID).ToNot(BeEmpty())
		Expect(created.Status).To(Equal(domain.StatusReceived))

		By("waiting for the routing decision")
		var decision domain.Decision
		Eventually(func() error {
			return sendJSON(http.MethodGet, cfg.APIBaseURL+"/v1/orders/"+created.OrderID+"/decision", nil, &decision)
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Succeed())
		Expect(decision.Status).To(Equal(domain.DecisionMatched))
		Expect(decision.Ranked).ToNot(BeEmpty())
		Expect(decision.Ranked).To(ContainElement(HaveField("VendorID", vendorID)))
		firstOfferee := decision.Ranked[0].VendorID

		By("waiting for the first offer to go out")
		Eventually(func() domain.OrderStatus {
			var status statusResponse
			Expect(sendJSON(http.MethodGet, cfg.APIBaseURL+"/v1/orders/"+created.OrderID+"/status", nil, &status)).To(Succeed())
			return status.Status
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Equal(domain.StatusOffered))

		By("accepting the offer on behalf of the offered vendor")
		Expect(sendJSON(http.MethodPost, cfg.APIBaseURL+"/v1/orders/"+created.OrderID+"/offers/response", map[string]string{
			"vendor_id": firstOfferee,
			"response":  string(domain.OfferResponseAccept),
		}, nil)).To(Succeed())

		By("polling until the order is assigned")
		var final statusResponse
		Eventually(func() domain.OrderStatus {
			Expect(sendJSON(http.MethodGet, cfg.APIBaseURL+"/v1/orders/"+created.OrderID+"/status", nil, &final)).To(Succeed())
			Expect(final.Status).ToNot(Equal(domain.StatusEscalated))
			Expect(final.Status).ToNot(Equal(domain.StatusInvalid))
			return final.Status
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Equal(domain.StatusAssigned))
		Expect(final.AssignedVendorID).ToNot(BeNil())
		Expect(*final.AssignedVendorID).To(Equal(firstOfferee))

		By("checking the activity sequence in workflow history")
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		Expect(err).ToNot(HaveOccurred())
		defer temporalClient.Close()

		Eventually(func() ([]string, error) {
			return scheduledActivities(context.Background(), temporalClient, created.WorkflowID)
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Equal(cfg.ExpectedActivityOrder))

		By("verifying the audit trail in Postgres")
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		auditStates, err := fetchStringRows(db, `SELECT state FROM audit_log WHERE order_id = $1 ORDER BY id`, created.OrderID)
		Expect(err).ToNot(HaveOccurred())
		Expect(auditStates).To(ContainElements(
			string(domain.AuditRouted),
			string(domain.AuditOffered),
			string(domain.AuditAssigned),
		))

		offerStatuses, err := fetchStringRows(db, `SELECT status FROM assignment_offers WHERE order_id = $1`, created.OrderID)
		Expect(err).ToNot(HaveOccurred())
		Expect(offerStatuses).To(ConsistOf(string(domain.OfferAccepted)))
	})
})
