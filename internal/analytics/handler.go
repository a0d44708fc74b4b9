package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const maxTopN = 100

// Handler exposes the aggregate over HTTP.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Register mounts GET /api/v1/analytics on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
}

// Stats serves the current aggregate. The optional top parameter, 1 to 100,
// sizes the term rankings.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := DefaultTopN
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxTopN {
			h.write(w, http.StatusBadRequest, map[string]string{"error": "top must be between 1 and 100"})
			return
		}
		top = n
	}
	h.write(w, http.StatusOK, h.aggregator.Stats(top))
}

func (h *Handler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
