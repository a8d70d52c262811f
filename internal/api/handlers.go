package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.uber.org/zap"

	"notary-signing-router/internal/config"
	"notary-signing-router/internal/domain"
	"notary-signing-router/internal/storage"
	appTemporal "notary-signing-router/internal/temporal"
)

type OrderStore interface {
	Ping(ctx context.Context) error
	CreateOrder(ctx context.Context, o domain.SigningOrder) (bool, error)
	GetOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, *string, error)
	GetLatestDecision(ctx context.Context, orderID string) (domain.Decision, error)
	ListEscalations(ctx context.Context) ([]domain.Escalation, error)
	UpsertVendor(ctx context.Context, v domain.Vendor) error
	GetVendor(ctx context.Context, vendorID string) (domain.Vendor, error)
}

type snapshotStore interface {
	PutOrderSnapshot(ctx context.Context, orderID string, payload []byte) (string, error)
}

// WorkflowSignaler is the slice of the Temporal client the API needs.
type WorkflowSignaler interface {
	SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error
}

type Router interface {
	Route(order domain.SigningOrder, candidates []domain.Vendor) (domain.Decision, error)
}

type Handler struct {
	cfg      config.Config
	store    OrderStore
	blob     snapshotStore
	signaler WorkflowSignaler
	router   Router
	log      *zap.Logger
	validate *validator.Validate
}

type statusResponse struct {
	OrderID          string             `json:"order_id"`
	Status           domain.OrderStatus `json:"status"`
	AssignedVendorID *string            `json:"assigned_vendor_id,omitempty"`
}

type offerResponseRequest struct {
	VendorID string `json:"vendor_id" validate:"required"`
	Response string `json:"response" validate:"required,oneof=accept decline"`
}

type previewRequest struct {
	Order      domain.SigningOrder `json:"order"`
	Candidates []domain.Vendor     `json:"candidates"`
}

func NewHandler(cfg config.Config, store OrderStore, blob snapshotStore, signaler WorkflowSignaler, router Router, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		cfg:      cfg,
		store:    store,
		blob:     blob,
		signaler: signaler,
		router:   router,
		log:      log,
		validate: validator.New(),
	}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	var order domain.SigningOrder
	if err := h.decode(w, r, &order); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if err := domain.ValidateOrder(order); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	if strings.TrimSpace(order.ID) == "" {
		order.ID = uuid.NewString()
	}
	order.State = strings.ToUpper(strings.TrimSpace(order.State))
	order.Status = domain.StatusReceived
	order.CreatedAt = time.Now().UTC()

	created, err := h.store.CreateOrder(ctx, order)
	if err != nil {
		h.log.Error("create order failed", zap.String("order_id", order.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create order"})
		return
	}
	// A resubmitted id must not rewrite the snapshot, or its event would start routing again.
	if !created {
		status, _, err := h.store.GetOrderStatus(ctx, order.ID)
		if err != nil {
			h.log.Error("load existing order failed", zap.String("order_id", order.ID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to load order"})
			return
		}
		h.log.Info("order already received", zap.String("order_id", order.ID), zap.String("status", string(status)))
		writeJSON(w, http.StatusOK, map[string]any{
			"order_id":    order.ID,
			"workflow_id": h.workflowID(order.ID),
			"status":      status,
		})
		return
	}

	payload, err := json.Marshal(order)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to encode order"})
		return
	}
	// The snapshot's object-created event is what starts the assignment workflow.
	objectKey, err := h.blob.PutOrderSnapshot(ctx, order.ID, payload)
	if err != nil {
		h.log.Error("write order snapshot failed", zap.String("order_id", order.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to store order snapshot"})
		return
	}

	h.log.Info("order received",
		zap.String("order_id", order.ID),
		zap.String("state", order.State),
		zap.String("signing_type", string(order.SigningType)),
		zap.String("object_key", objectKey))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"order_id":    order.ID,
		"workflow_id": h.workflowID(order.ID),
		"status":      domain.StatusReceived,
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request, orderID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, vendorID, err := h.store.GetOrderStatus(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "order not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch status"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{OrderID: orderID, Status: status, AssignedVendorID: vendorID})
}

func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request, orderID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	decision, err := h.store.GetLatestDecision(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "no routing decision for order"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch decision"})
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) SubmitOfferResponse(w http.ResponseWriter, r *http.Request, orderID string) {
	var req offerResponseRequest
	if err := h.decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "vendor_id and response (accept|decline) are required"})
		return
	}

	signal := appTemporal.OfferResponseSignal{
		VendorID: req.VendorID,
		Response: domain.OfferResponse(req.Response),
	}
	// Signals only reach a running workflow; the workflow itself is started from the snapshot event.
	err := h.signaler.SignalWorkflow(r.Context(), h.workflowID(orderID), "", appTemporal.OfferResponseSignalName, signal)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "no assignment in progress for order"})
			return
		}
		h.log.Error("signal workflow failed", zap.String("order_id", orderID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to signal workflow"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"order_id": orderID, "status": "offer_response_sent"})
}

func (h *Handler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.store.ListEscalations(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch escalations"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) PreviewRouting(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := h.decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	decision, err := h.router.Route(req.Order, req.Candidates)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrder) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "routing failed"})
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) PutVendor(w http.ResponseWriter, r *http.Request, vendorID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var v domain.Vendor
	if err := h.decode(w, r, &v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if v.ID == "" {
		v.ID = vendorID
	}
	if v.ID != vendorID {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "vendor id does not match path"})
		return
	}
	v = domain.NormalizeVendor(v)
	if err := domain.ValidateVendor(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	if err := h.store.UpsertVendor(ctx, v); err != nil {
		h.log.Error("upsert vendor failed", zap.String("vendor_id", v.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to save vendor"})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) GetVendor(w http.ResponseWriter, r *http.Request, vendorID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	v, err := h.store.GetVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, storage.ErrVendorNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "vendor not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch vendor"})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) workflowID(orderID string) string {
	return appTemporal.WorkflowID(h.cfg.WorkflowIDPrefix, orderID)
}

// decode reads a size-limited JSON body and rejects unknown fields.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	limit := h.cfg.MaxOrderBytes
	if limit <= 0 {
		limit = 64 * 1024
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body exceeds size limit")
		}
		return errors.New("invalid json: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
