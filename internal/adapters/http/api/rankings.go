package api

import (
	"net/http"
	"strconv"
)

// RankingsHandler serves GET /api/rankings.
type RankingsHandler struct {
	srv *Server
}

// HandleGetRankings lists technical profiles by success ratio.
func (h *RankingsHandler) HandleGetRankings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rankings"
	if r.Method != http.MethodGet {
		h.srv.methodNotAllowed(w, http.MethodGet)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.srv.fail(w, r, "rankings", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	rankings, err := h.srv.deps.Rankings(r.Context(), limit)
	if err != nil {
		h.srv.fail(w, r, "rankings", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rankings)
}
