package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/internal/domain/regions"
)

// ComparisonHandler serves GET /api/comparison.
type ComparisonHandler struct {
	srv *Server
}

// HandleGetComparison returns the intro pair or a fresh batch of matchups.
func (h *ComparisonHandler) HandleGetComparison(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.srv.methodNotAllowed(w, http.MethodGet)
		return
	}
	resp, err := h.srv.deps.Comparison(r.Context(), comparisonRequest(r))
	if err != nil {
		h.srv.fail(w, r, "comparison", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// comparisonRequest reads the query and the edge country headers.
// Malformed flags read as false, matching a plain "=== 'true'" check.
func comparisonRequest(r *http.Request) model.ComparisonRequest {
	q := r.URL.Query()
	firstVisit, _ := strconv.ParseBool(q.Get("firstVisit"))
	return model.ComparisonRequest{
		FirstVisit: firstVisit,
		Location:   strings.TrimSpace(q.Get("location")),
		Variant:    model.ParseVariant(q.Get("variant")),
		Country:    country(r),
	}
}

func country(r *http.Request) string {
	for _, h := range []string{regions.HeaderVercelCountry, regions.HeaderCloudflareCountry} {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return strings.ToUpper(v)
		}
	}
	return ""
}
