package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
)

// StartRegistration handles POST /weekender/start-registration
func (h *Handler) StartRegistration(w http.ResponseWriter, r *http.Request) {
	var req model.SessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.regs.StartRegistration(r.Context(), req.SessionID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// SubmitRegistration handles POST /weekender/submit-registration
// Stores the attempt and answers with the hosted checkout URL.
func (h *Handler) SubmitRegistration(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.regs.SubmitWeekender(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PayExisting handles POST /weekender/pay-existing
func (h *Handler) PayExisting(w http.ResponseWriter, r *http.Request) {
	var req model.PayExistingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.regs.PayExisting(r.Context(), req.OrderID, req.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PaymentInProgress handles POST /weekender/payment-in-progress
func (h *Handler) PaymentInProgress(w http.ResponseWriter, r *http.Request) {
	var sig model.PaymentSignal
	if err := decodeJSON(r, &sig); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.payments.PaymentInProgress(r.Context(), sig); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// PaymentComplete handles POST /weekender/payment-complete
// Answers 410 when the payment arrived after the registration window.
func (h *Handler) PaymentComplete(w http.ResponseWriter, r *http.Request) {
	var sig model.PaymentSignal
	if err := decodeJSON(r, &sig); err != nil {
		writeError(w, r, err)
		return
	}
	done, err := h.payments.PaymentComplete(r.Context(), sig)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"orderId":         done.OrderID,
		"alreadyComplete": done.AlreadyComplete,
		"registrations":   done.Registrations,
	})
}

// PaymentCancelled handles POST /weekender/payment-cancelled
// Always succeeds; the client has nothing to do with a failure here.
func (h *Handler) PaymentCancelled(w http.ResponseWriter, r *http.Request) {
	var sig model.PaymentSignal
	_ = decodeJSON(r, &sig)
	n := h.payments.PaymentCancelled(r.Context(), sig.SessionID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
}

// PaymentFailed handles POST /weekender/payment-failed
func (h *Handler) PaymentFailed(w http.ResponseWriter, r *http.Request) {
	var sig model.PaymentSignal
	if err := decodeJSON(r, &sig); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.payments.PaymentFailed(r.Context(), sig); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// TierStatus handles GET /weekender/tier-status
func (h *Handler) TierStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.regs.TierStatus(r.Context()))
}

// CheckRoleBalance handles POST /weekender/check-role-balance
func (h *Handler) CheckRoleBalance(w http.ResponseWriter, r *http.Request) {
	var req model.RoleBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.regs.CheckRoleBalance(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PassStatus handles GET /weekender/pass-status?passType=&day=
func (h *Handler) PassStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	avail, err := h.regs.PassStatus(r.Context(), q.Get("passType"), q.Get("day"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// JoinWaitlist handles POST /weekender/join-waitlist
func (h *Handler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req model.WaitlistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := h.regs.JoinWaitlist(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "entry": entry})
}

// SessionStatus handles GET /weekender/session-status?sessionId=
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.regs.SessionStatus(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
