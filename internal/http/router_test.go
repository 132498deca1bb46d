package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/actions"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/ai"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/apply"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/config"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/db/sqlitestore"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/dedup"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/feedback"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/metrics"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/preference"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/service"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/suggestion"
)

const adminKey = "test-key"

type failingAdapter struct{}

func (failingAdapter) Extract(context.Context, models.InboundMessage) (ai.Extraction, int64, error) {
	return ai.Extraction{}, 0, assert.AnError
}

func newTestRouter(t *testing.T, adapter ai.Adapter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	s, err := sqlitestore.Open(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	logger := zerolog.Nop()
	m := metrics.New()
	exec := actions.NewDispatcher(time.Second, 0, logger)
	router := routing.New(s, exec, routing.BusinessHours{Start: 0, End: 24, Location: time.UTC}, logger, m)
	fb := feedback.New(s, logger, m)
	prefs := preference.New(s, 0, logger)
	sugg := suggestion.New(s, fb, prefs, 0.9, []string{"phone"}, logger, m)

	return Router(config.Config{AdminKey: adminKey, CORSAllowed: "*"}, Deps{
		Store:       s,
		Apply:       apply.New(s, dedup.New(0.8, 2*time.Hour), logger, m),
		Router:      router,
		Feedback:    fb,
		Preferences: prefs,
		Suggestions: sugg,
		Processor:   service.NewProcessingService(adapter, sugg, router, logger),
		Metrics:     m,
	}, logger)
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", adminKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env, ok := decode(t, w)["error"].(map[string]any)
	require.True(t, ok, w.Body.String())
	return env["code"].(string)
}

func TestApplyIsIdempotentOverHTTP(t *testing.T) {
	r := newTestRouter(t, ai.MockAdapter{ModelVersion: "mock-v1"})
	body := map[string]any{
		"input_id":              "mail-1",
		"person_decision":       map[string]any{"apply": true, "data": map[string]any{"first_name": "Claire", "last_name": "Dupont"}},
		"organisation_decision": map[string]any{"apply": false},
		"interaction_data":      map[string]any{"type": "email", "title": "Intro", "occurred_at": "2025-01-08T10:00:00Z"},
		"acting_user_id":        7,
		"team_id":               1,
	}

	w := do(r, http.MethodPost, "/api/apply", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode(t, w)
	assert.Equal(t, apply.StatusApplied, first["status"])

	w = do(r, http.MethodPost, "/api/apply", body)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode(t, w)
	assert.Equal(t, apply.StatusAlreadyApplied, second["status"])
	assert.Equal(t, first["decision_log_id"], second["decision_log_id"])

	w = do(r, http.MethodGet, "/api/decisions/mail-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/decisions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))

	w = do(r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `autofill_apply_total{status="already_applied"} 1`)
}

func TestApplyErrorsOverHTTP(t *testing.T) {
	r := newTestRouter(t, ai.MockAdapter{})

	w := do(r, http.MethodPost, "/api/apply", map[string]any{"input_id": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))

	w = do(r, http.MethodPost, "/api/apply", map[string]any{
		"input_id":        "x",
		"acting_user_id":  1,
		"person_decision": map[string]any{"apply": true, "id": 999},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/apply", strings.NewReader("{"))
	req.Header.Set("X-Admin-Key", adminKey)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))
}

func TestMutationsRequireAdminKey(t *testing.T) {
	r := newTestRouter(t, ai.MockAdapter{})

	req := httptest.NewRequest(http.MethodPost, "/api/route", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/suggestions?team_id=1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRulesAndRouting(t *testing.T) {
	r := newTestRouter(t, ai.MockAdapter{})

	rule := map[string]any{
		"team_id":        1,
		"name":           "Meetings",
		"priority":       5,
		"intent_trigger": "meeting_request",
		"min_confidence": 70,
		"actions":        []any{map[string]any{"type": routing.ActionCreateTask, "params": map[string]any{"title": "Call {sender_name}"}}},
	}
	w := do(r, http.MethodPost, "/api/rules", rule)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := int64(decode(t, w)["id"].(float64))

	bad := map[string]any{"team_id": 1, "name": "x", "intent_trigger": "y", "actions": []any{map[string]any{"type": "launch_rocket"}}}
	w = do(r, http.MethodPost, "/api/rules", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/route", map[string]any{
		"team_id": 1, "intent": "meeting_request", "confidence": 85,
		"email": map[string]any{"sender_name": "Claire"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	outcomes := decode(t, w)["outcomes"].([]any)
	require.Len(t, outcomes, 1)
	assert.Equal(t, routing.OutcomeSucceeded, outcomes[0].(map[string]any)["status"])

	rule["is_active"] = false
	w = do(r, http.MethodPut, "/api/rules/"+jsonID(id), rule)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode(t, w)["execution_count"])

	w = do(r, http.MethodPost, "/api/route", map[string]any{"team_id": 1, "intent": "meeting_request", "confidence": 85})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["outcomes"])

	w = do(r, http.MethodPut, "/api/rules/9999", rule)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/rules", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuggestionReviewFlow(t *testing.T) {
	r := newTestRouter(t, ai.MockAdapter{})

	w := do(r, http.MethodPost, "/api/suggestions", map[string]any{
		"team_id": 1, "target_type": "person", "field_name": "job_title",
		"suggested_value": "CFO", "confidence": 0.6, "source_model": "mistral-small",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sg := decode(t, w)
	assert.Equal(t, models.SuggestionPending, sg["status"])
	path := "/api/suggestions/" + jsonID(int64(sg["id"].(float64)))

	w = do(r, http.MethodPost, path+"/approve", map[string]any{"reviewer_id": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.SuggestionApproved, decode(t, w)["status"])

	w = do(r, http.MethodPost, path+"/reject", map[string]any{"reviewer_id": 3})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", errorCode(t, w))

	w = do(r, http.MethodGet, "/api/suggestions?team_id=1&status=all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(r, http.MethodGet, "/api/feedback/accuracy?team_id=1&prediction_type="+suggestion.PredictionType, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode(t, w)["total_feedbacks"])

	w = do(r, http.MethodGet, "/api/suggestions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreferencesOverHTTP(t *testing.T) {
	r := newTestRouter(t, ai.MockAdapter{})

	for _, v := range []string{"CTO", "CTO"} {
		w := do(r, http.MethodPost, "/api/preferences", map[string]any{
			"user_id": 2, "team_id": 1, "field_name": "job_title",
			"context_type": "person", "suggested_value": v, "action": "accept",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(r, http.MethodPost, "/api/preferences/rank", map[string]any{
		"team_id": 1, "field_name": "job_title",
		"candidates": []any{
			map[string]any{"value": "CEO", "confidence": 0.9},
			map[string]any{"value": "CTO", "confidence": 0.4},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ranked := decode(t, w)["candidates"].([]any)
	require.Len(t, ranked, 2)
	assert.Equal(t, "CTO", ranked[0].(map[string]any)["value"])
}

func TestProcessMessagesOverHTTP(t *testing.T) {
	msg := map[string]any{
		"id": "msg-1", "team_id": 1, "sender_name": "Jean Dupont", "sender_email": "jean@dupont-finance.fr",
		"subject": "Rendez-vous", "body": "Bonjour", "received_at": "2025-01-08T10:00:00Z",
	}

	r := newTestRouter(t, ai.MockAdapter{ModelVersion: "mock-v1"})
	w := do(r, http.MethodPost, "/api/messages/process", map[string]any{"message": msg})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	counts := decode(t, w)["counts"].(map[string]any)
	assert.Equal(t, float64(1), counts["extracted"])

	w = do(r, http.MethodPost, "/api/messages/process", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = newTestRouter(t, failingAdapter{})
	w = do(r, http.MethodPost, "/api/messages/process", map[string]any{"message": msg})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "AI_ERROR", errorCode(t, w))
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
