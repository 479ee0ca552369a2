package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
)

// SubmitBootcamp handles POST /bootcamp/submit-registration
func (h *Handler) SubmitBootcamp(w http.ResponseWriter, r *http.Request) {
	var req model.BootcampRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.regs.SubmitBootcamp(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ValidateWeekender handles POST /bootcamp/validate-weekender
func (h *Handler) ValidateWeekender(w http.ResponseWriter, r *http.Request) {
	var req model.ValidateWeekenderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := h.regs.ValidateWeekender(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}
