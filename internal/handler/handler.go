// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/apperr"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/service"
)

// Handler holds the registration, payment and webhook endpoints.
type Handler struct {
	regs          *service.RegistrationService
	payments      *service.PaymentService
	webhookSecret string
}

// NewHandler constructs a Handler. An empty webhookSecret accepts unsigned
// webhooks.
func NewHandler(regs *service.RegistrationService, payments *service.PaymentService, webhookSecret string) *Handler {
	return &Handler{regs: regs, payments: payments, webhookSecret: webhookSecret}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", HealthCheck)

	r.Route("/weekender", func(r chi.Router) {
		r.Post("/start-registration", h.StartRegistration)
		r.Post("/submit-registration", h.SubmitRegistration)
		r.Post("/pay-existing", h.PayExisting)
		r.Post("/payment-in-progress", h.PaymentInProgress)
		r.Post("/payment-complete", h.PaymentComplete)
		r.Post("/payment-cancelled", h.PaymentCancelled)
		r.Post("/payment-failed", h.PaymentFailed)
		r.Get("/tier-status", h.TierStatus)
		r.Post("/check-role-balance", h.CheckRoleBalance)
		r.Get("/pass-status", h.PassStatus)
		r.Post("/join-waitlist", h.JoinWaitlist)
		r.Get("/session-status", h.SessionStatus)
	})

	r.Route("/bootcamp", func(r chi.Router) {
		r.Post("/submit-registration", h.SubmitBootcamp)
		r.Post("/validate-weekender", h.ValidateWeekender)
	})

	r.Post("/webhooks/yoco", h.YocoWebhook)
}

// NewRouter builds the router with the standard middleware stack.
func NewRouter(h *Handler, allowedOrigins string) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger)
	r.Use(CORS(allowedOrigins))
	h.Routes(r)
	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as the standard envelope. Internal details never
// reach the client; they are logged instead.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.As(err)
	status := apperr.StatusCode(e)
	if status >= http.StatusInternalServerError {
		log.Error().Err(e).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Str("code", e.Code).
			Msg("request failed")
	}
	writeJSON(w, status, model.ErrorResponse{Success: false, Error: e.Code, Message: e.Message})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
