// Package aimanager exposes the rate-gated prompt streaming endpoint. A
// request passes authentication, then per-user admission, then streams
// provider output back over SSE; failures after the stream starts are
// delivered in-band.
package aimanager

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rangganata/ai-manager/internal/activity"
	appctx "github.com/rangganata/ai-manager/internal/context"
	"github.com/rangganata/ai-manager/internal/metrics"
	mw "github.com/rangganata/ai-manager/internal/middleware"
	"github.com/rangganata/ai-manager/internal/ratelimit"
	"github.com/rangganata/ai-manager/internal/relay"
	"github.com/rangganata/ai-manager/internal/repository"
)

// PromptRequest is the generation request payload
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// Handler handles HTTP requests for the AI manager endpoints
type Handler struct {
	relay       *relay.Relay
	generation  *ratelimit.Store
	activityLog *activity.Service
	logger      *slog.Logger
}

// NewHandler creates a new AI manager Handler instance
func NewHandler(streamRelay *relay.Relay, generation *ratelimit.Store, activityLog *activity.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		relay:       streamRelay,
		generation:  generation,
		activityLog: activityLog,
		logger:      logger,
	}
}

// Prompt handles POST /ai-manager/prompt.
//
// Pipeline: authenticated by middleware, admitted by the per-user
// generation counter, then streamed. Once streaming starts the response is
// already 200, so upstream failures surface as in-band error events.
func (h *Handler) Prompt(w http.ResponseWriter, r *http.Request) {
	rawUserID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Prompt == "" {
		h.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	result := h.generation.Check(rawUserID)
	mw.SetRateLimitHeaders(w, result)
	if !result.Allowed {
		metrics.RateLimitDenials.WithLabelValues("generation").Inc()
		mw.WriteRateLimited(w, result, fmt.Sprintf(
			"Generation limit reached. Try again in %d seconds.", result.RetryAfter))
		return
	}

	h.recordVisit(r, rawUserID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()
	start := time.Now()

	for frame := range h.relay.Stream(r.Context(), req.Prompt) {
		switch frame.Kind {
		case relay.FrameChunk:
			payload, err := json.Marshal(map[string]string{"text": frame.Text})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			metrics.ChunksRelayed.Inc()
		case relay.FrameError:
			payload, _ := json.Marshal(map[string]string{"error": frame.Message})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			metrics.UpstreamErrors.Inc()
		case relay.FrameDone:
			// Terminal marker written below, after the channel closes.
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()

	metrics.StreamDuration.Observe(time.Since(start).Seconds())
}

// recordVisit logs the prompt request in the activity feed, best-effort.
func (h *Handler) recordVisit(r *http.Request, rawUserID string) {
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return
	}
	h.activityLog.Record(r.Context(), userID, activity.TypePageVisit, repository.Details{
		"path": r.URL.Path,
	}, activity.MetaFromRequest(r))
}

// writeError writes a plain JSON error body, used before streaming begins
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
