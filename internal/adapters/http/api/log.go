package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/ceoorcto/internal/domain/model"
)

// LogHandler serves POST /api/log, the client's missing-asset reports.
type LogHandler struct {
	srv *Server
}

type logResponse struct {
	Received bool `json:"received"`
}

// HandlePostLog accepts {reason?, timestamp?, person?, ...extras}.
func (h *LogHandler) HandlePostLog(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_log"
	if r.Method != http.MethodPost {
		h.srv.methodNotAllowed(w, http.MethodPost)
		return
	}
	if !h.srv.limiter.Allow() {
		h.srv.fail(w, r, "log", NewKind(op, ErrRateLimited))
		return
	}

	report, err := decodeReport(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.srv.writeError(w, http.StatusBadRequest, "bad_request", "Invalid log payload", WrapKind(op, ErrBadRequest, err))
		return
	}
	h.srv.deps.ReportMissingAsset(r.Context(), report)
	writeJSON(w, http.StatusOK, logResponse{Received: true})
}

// decodeReport splits the known keys from the free-form extras. A null
// body is an empty report.
func decodeReport(body io.Reader) (model.AssetReport, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return model.AssetReport{}, err
	}

	var report model.AssetReport
	for k, v := range raw {
		switch k {
		case "reason":
			if err := json.Unmarshal(v, &report.Reason); err != nil {
				return model.AssetReport{}, fmt.Errorf("reason: %w", err)
			}
		case "timestamp":
			if err := json.Unmarshal(v, &report.Timestamp); err != nil {
				return model.AssetReport{}, fmt.Errorf("timestamp: %w", err)
			}
		case "person":
			if err := json.Unmarshal(v, &report.Person); err != nil {
				return model.AssetReport{}, fmt.Errorf("person: %w", err)
			}
		default:
			var extra any
			if err := json.Unmarshal(v, &extra); err != nil {
				return model.AssetReport{}, fmt.Errorf("%s: %w", k, err)
			}
			if report.Extras == nil {
				report.Extras = make(map[string]any)
			}
			report.Extras[k] = extra
		}
	}
	return report, nil
}
