package aimanager

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rangganata/ai-manager/internal/activity"
	appctx "github.com/rangganata/ai-manager/internal/context"
	"github.com/rangganata/ai-manager/internal/ratelimit"
	"github.com/rangganata/ai-manager/internal/relay"
	"github.com/rangganata/ai-manager/internal/repository"
)

// streamFunc adapts a function to the relay.Streamer interface
type streamFunc func(ctx context.Context, prompt string, deliver func(delta string) error) error

func (f streamFunc) StreamCompletion(ctx context.Context, prompt string, deliver func(delta string) error) error {
	return f(ctx, prompt, deliver)
}

// noopActivityLogs satisfies the activity repositories without storage
type noopActivityLogs struct{}

func (noopActivityLogs) Create(ctx context.Context, entry *repository.ActivityLog) error {
	return nil
}

func (noopActivityLogs) List(ctx context.Context, userID uuid.UUID, params repository.ListActivityParams) ([]repository.ActivityLog, int, error) {
	return nil, 0, nil
}

func (noopActivityLogs) Count(ctx context.Context, userID uuid.UUID) (int, error) { return 0, nil }

func (noopActivityLogs) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return 0, nil
}

func (noopActivityLogs) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

type noopLoginHistory struct{}

func (noopLoginHistory) Create(ctx context.Context, entry *repository.LoginHistory) error {
	return nil
}

func (noopLoginHistory) SetLogoutTime(ctx context.Context, id uuid.UUID, logoutTime time.Time) error {
	return nil
}

func (noopLoginHistory) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]repository.LoginHistory, error) {
	return nil, nil
}

func newPromptHandler(t *testing.T, upstream relay.Streamer, generationLimit int) *Handler {
	t.Helper()
	store := ratelimit.NewStore(generationLimit, time.Hour)
	t.Cleanup(store.Stop)
	activitySvc := activity.NewService(noopActivityLogs{}, noopLoginHistory{}, nil)
	return NewHandler(relay.New(upstream, 0, nil), store, activitySvc, nil)
}

func promptRequest(t *testing.T, userID, prompt string) *http.Request {
	t.Helper()
	body, err := json.Marshal(PromptRequest{Prompt: prompt})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/ai-manager/prompt", strings.NewReader(string(body)))
	if userID != "" {
		r = r.WithContext(appctx.WithUser(r.Context(), userID, "user@example.com"))
	}
	return r
}

func sseEvents(t *testing.T, body string) []string {
	t.Helper()
	var events []string
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("malformed SSE block: %q", block)
		}
		events = append(events, strings.TrimPrefix(block, "data: "))
	}
	return events
}

func TestPromptStreamsChunksAndDone(t *testing.T) {
	upstream := streamFunc(func(ctx context.Context, prompt string, deliver func(string) error) error {
		for _, d := range []string{"Hello", " world"} {
			if err := deliver(d); err != nil {
				return err
			}
		}
		return nil
	})
	handler := newPromptHandler(t, upstream, 50)

	rec := httptest.NewRecorder()
	handler.Prompt(rec, promptRequest(t, uuid.New().String(), "say hello"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "50" {
		t.Errorf("X-RateLimit-Limit = %q", rec.Header().Get("X-RateLimit-Limit"))
	}

	events := sseEvents(t, rec.Body.String())
	want := []string{`{"text":"Hello"}`, `{"text":" world"}`, "[DONE]"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestPromptUpstreamFailureEndsStreamInBand(t *testing.T) {
	upstream := streamFunc(func(ctx context.Context, prompt string, deliver func(string) error) error {
		if err := deliver("partial"); err != nil {
			return err
		}
		return errors.New("upstream exploded")
	})
	handler := newPromptHandler(t, upstream, 50)

	rec := httptest.NewRecorder()
	handler.Prompt(rec, promptRequest(t, uuid.New().String(), "boom"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 before the failure surfaced", rec.Code)
	}
	events := sseEvents(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("events = %v, want chunk, error, [DONE]", events)
	}
	if events[0] != `{"text":"partial"}` {
		t.Errorf("event 0 = %q", events[0])
	}
	var errEvent map[string]string
	if err := json.Unmarshal([]byte(events[1]), &errEvent); err != nil {
		t.Fatalf("event 1 is not JSON: %q", events[1])
	}
	if errEvent["error"] == "" {
		t.Errorf("event 1 = %q, want an error message", events[1])
	}
	if events[2] != "[DONE]" {
		t.Errorf("event 2 = %q, want [DONE]", events[2])
	}
}

func TestPromptMissingAPIKeySurfacesInBand(t *testing.T) {
	upstream := streamFunc(func(ctx context.Context, prompt string, deliver func(string) error) error {
		return relay.ErrMissingAPIKey
	})
	handler := newPromptHandler(t, upstream, 50)

	rec := httptest.NewRecorder()
	handler.Prompt(rec, promptRequest(t, uuid.New().String(), "hello"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	events := sseEvents(t, rec.Body.String())
	if len(events) != 2 {
		t.Fatalf("events = %v, want error then [DONE]", events)
	}
	if !strings.Contains(events[0], "error") {
		t.Errorf("event 0 = %q, want an in-band error", events[0])
	}
}

func TestPromptGenerationLimit(t *testing.T) {
	upstream := streamFunc(func(ctx context.Context, prompt string, deliver func(string) error) error {
		return nil
	})
	handler := newPromptHandler(t, upstream, 2)
	userID := uuid.New().String()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.Prompt(rec, promptRequest(t, userID, "hi"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.Prompt(rec, promptRequest(t, userID, "hi"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.Contains(body["error"], "Generation limit reached") {
		t.Errorf("body = %v", body)
	}

	// Another user is not affected.
	rec = httptest.NewRecorder()
	handler.Prompt(rec, promptRequest(t, uuid.New().String(), "hi"))
	if rec.Code != http.StatusOK {
		t.Fatalf("other user status = %d, want 200", rec.Code)
	}
}

func TestPromptDeniedRequestConsumesNoGeneration(t *testing.T) {
	upstream := streamFunc(func(ctx context.Context, prompt string, deliver func(string) error) error {
		t.Error("upstream must not be called for a denied request")
		return nil
	})
	handler := newPromptHandler(t, upstream, 1)
	userID := uuid.New().String()

	rec := httptest.NewRecorder()
	handler.Prompt(rec, promptRequest(t, userID, ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	// The invalid request was rejected before the admission check, so the
	// user's budget is untouched.
	if rec.Header().Get("X-RateLimit-Remaining") != "" {
		t.Error("rejected request should not carry rate limit headers")
	}
}

func TestPromptRequiresAuthentication(t *testing.T) {
	handler := newPromptHandler(t, streamFunc(func(ctx context.Context, prompt string, deliver func(string) error) error {
		return nil
	}), 50)

	rec := httptest.NewRecorder()
	handler.Prompt(rec, promptRequest(t, "", "hi"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPromptRejectsMalformedBody(t *testing.T) {
	handler := newPromptHandler(t, streamFunc(func(ctx context.Context, prompt string, deliver func(string) error) error {
		return nil
	}), 50)

	r := httptest.NewRequest(http.MethodPost, "/ai-manager/prompt", strings.NewReader("{not json"))
	r = r.WithContext(appctx.WithUser(r.Context(), uuid.New().String(), "user@example.com"))

	rec := httptest.NewRecorder()
	handler.Prompt(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
