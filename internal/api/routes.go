package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/orders", h.CreateOrder)
		r.Get("/escalations", h.ListEscalations)
		r.Post("/routing/preview", h.PreviewRouting)
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
				h.GetStatus(w, r, chi.URLParam(r, "orderId"))
			})
			r.Get("/decision", func(w http.ResponseWriter, r *http.Request) {
				h.GetDecision(w, r, chi.URLParam(r, "orderId"))
			})
			r.Post("/offers/response", func(w http.ResponseWriter, r *http.Request) {
				h.SubmitOfferResponse(w, r, chi.URLParam(r, "orderId"))
			})
		})
		r.Route("/vendors/{vendorId}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.GetVendor(w, r, chi.URLParam(r, "vendorId"))
			})
			r.Put("/", func(w http.ResponseWriter, r *http.Request) {
				h.PutVendor(w, r, chi.URLParam(r, "vendorId"))
			})
		})
	})

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
