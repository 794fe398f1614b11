package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/ceoorcto/internal/domain/model"
)

// StatsHandler serves POST /api/stats.
type StatsHandler struct {
	srv *Server
}

// statsRequest is a finished batch reported by a client.
type statsRequest struct {
	BatchID string          `json:"batchId" validate:"omitempty,max=128"`
	People  []model.Profile `json:"people" validate:"required,max=64,dive"`
}

type statsResponse struct {
	Success   bool `json:"success"`
	Updated   int  `json:"updated"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// HandlePostStats persists the session deltas of a batch.
func (h *StatsHandler) HandlePostStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_stats"
	if r.Method != http.MethodPost {
		h.srv.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req statsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.srv.fail(w, r, "submit_stats", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.srv.validate.StructCtx(r.Context(), req); err != nil {
		h.srv.fail(w, r, "submit_stats", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.srv.deps.SubmitStats(r.Context(), model.StatsSubmission{BatchID: req.BatchID, People: req.People})
	if err != nil {
		h.srv.fail(w, r, "submit_stats", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Success: true, Updated: res.Updated, Duplicate: res.Duplicate})
}
