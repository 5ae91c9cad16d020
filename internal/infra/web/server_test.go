//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachhire-ai/internal/config"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/infra/adapters/notify"
	"coachhire-ai/internal/infra/memstore"
	"coachhire-ai/internal/infra/worker"
	"coachhire-ai/internal/usecase"
)

const testKey = "admin-key"

type harness struct {
	store   *memstore.Store
	reviews usecase.ReviewTracker
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zerolog.Nop()
	st := memstore.New()
	cfgSvc := usecase.NewAIConfigService(st.Config, &logger)
	_, err := cfgSvc.EnsureDefaults(context.Background(), "test")
	require.NoError(t, err)

	q := worker.NewQueue(st.Jobs, st.Limiter, config.QueueConfig{
		Defaults: config.FlowQueueConfig{MaxAttempts: 3, BackoffBase: time.Second, RateLimit: 10, RateWindow: time.Minute},
	}, &logger)
	reviews := usecase.NewReviewTracker(st.Tx, st.Reviews, &logger)
	events := usecase.NewEventService(usecase.EventDeps{
		Tx:             st.Tx,
		Enquiries:      st.Enquiries,
		Emails:         st.Emails,
		SupplierQuotes: st.SupplierQuotes,
		CustomerQuotes: st.CustomerQuotes,
		Bookings:       st.Bookings,
		Queue:          q,
		Notifier:       notify.NewLogNotifier(&logger),
	}, &logger)

	s := NewServer(Deps{
		Reviews: reviews,
		Config:  cfgSvc,
		Budget:  usecase.NewCostGuard(st.Costs, cfgSvc, &logger),
		Pricing: usecase.NewPricingUseCase(st.Pricing, &logger),
		Events:  events,
		Queue:   q,
		Jobs:    q.Jobs(),
	}, config.AdminConfig{RequestTimeout: 5 * time.Second}, config.SecurityConfig{
		JWTSecret:   "test-secret",
		AdminAPIKey: testKey,
		TokenTTL:    time.Hour,
	}, &logger)
	return &harness{store: st, reviews: reviews, handler: s.Router()}
}

func (h *harness) do(t *testing.T, method, path string, body any, auth func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if auth != nil {
		auth(req)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func withKey(r *http.Request) { r.Header.Set("X-API-Key", testKey) }

func withBearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/reviews", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/reviews", nil, func(r *http.Request) { r.Header.Set("X-API-Key", "nope") })
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/reviews", nil, withBearer("not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{"operator": "ops@example.com"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{"operator": "not-an-email"}, withKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{"operator": "ops@example.com"}, withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.Token)
	assert.True(t, tok.ExpiresAt.After(time.Now()))

	rec = h.do(t, http.MethodGet, "/api/v1/reviews", nil, withBearer(tok.Token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReviewLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task, _, err := h.reviews.Create(ctx, repository.NoTX, usecase.CreateReviewInput{
		TaskType:   model.TaskBidEvaluator,
		Reason:     model.ReasonLowConfidence,
		Entity:     model.EntityRef{Type: model.EntityEnquiry, ID: "enq-1"},
		PipelineID: "p-1",
		Flow:       model.FlowBidEvaluation,
		Step:       "select_winner",
	})
	require.NoError(t, err)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{"operator": "ops@example.com"}, withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	auth := withBearer(tok.Token)

	rec = h.do(t, http.MethodGet, "/api/v1/reviews?status=PENDING", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []*model.HumanReviewTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, task.ID, list[0].ID)

	rec = h.do(t, http.MethodGet, "/api/v1/reviews?limit=-1", nil, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/reviews/"+task.ID+"/claim", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var claimed model.HumanReviewTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claimed))
	assert.Equal(t, model.ReviewInReview, claimed.Status)
	assert.Equal(t, "ops@example.com", claimed.AssignedTo)

	rec = h.do(t, http.MethodPost, "/api/v1/reviews/"+task.ID+"/resolve", map[string]any{
		"note":     "picked the second bid",
		"override": map[string]string{"winnerId": "sq-2"},
	}, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/reviews/"+task.ID+"/dismiss", map[string]string{"note": "late"}, auth)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/reviews/missing/claim", nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/reviews/"+task.ID+"/dismiss", map[string]string{}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigValidationReportsKey(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPut, "/api/v1/config/"+model.ConfigMarkupBounds,
		`{"minPercent":30,"maxPercent":10,"defaultPercent":20}`, withKey)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.ConfigMarkupBounds, body.Key)

	rec = h.do(t, http.MethodPut, "/api/v1/config/"+model.ConfigMarkupBounds, `{not json`, withKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/v1/config/"+model.ConfigMarkupBounds,
		`{"minPercent":10,"maxPercent":40,"defaultPercent":25}`, withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	var entry model.AiConfigEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "api-key", entry.UpdatedBy)
	assert.Greater(t, entry.Version, 1)

	rec = h.do(t, http.MethodGet, "/api/v1/config", nil, withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []*model.AiConfigEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, len(model.ConfigKeys))

	rec = h.do(t, http.MethodGet, "/api/v1/budget", nil, withKey)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPricingCRUD(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/pricing", map[string]any{
		"model": "test-model", "inputPer1kMicros": 150, "outputPer1kMicros": 600, "expectedOutputTokens": 400,
	}, withKey)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/pricing", map[string]any{
		"model": "test-model", "inputPer1kMicros": 1, "outputPer1kMicros": 1,
	}, withKey)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/pricing", map[string]any{"model": "neg", "inputPer1kMicros": -1}, withKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/v1/pricing/test-model", map[string]any{"outputPer1kMicros": 700}, withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	var p model.ModelPricing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.EqualValues(t, 700, p.OutputPer1KMicros)
	assert.EqualValues(t, 150, p.InputPer1KMicros)

	rec = h.do(t, http.MethodDelete, "/api/v1/pricing/test-model", nil, withKey)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodDelete, "/api/v1/pricing/never-priced", nil, withKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnqueueAndListJobs(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{"name": "flow9:nothing"}, withKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{"name": "flow2:enquiry-intake"}, withKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "intake without an enquiry id is an invalid payload")

	rec = h.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{
		"name":    "quote-generation",
		"payload": map[string]string{"enquiryId": "enq-1"},
	}, withKey)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, model.FlowQuoteGeneration, job.Name)

	rec = h.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID, nil, withKey)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/jobs?name=flow4:quote-generation", nil, withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []*model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 1)

	rec = h.do(t, http.MethodGet, "/api/v1/jobs?name=bogus", nil, withKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnquiryEventQueuesIntake(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/events/enquiries", map[string]any{
		"customerName":  "Jo Bloggs",
		"customerEmail": "jo@example.com",
		"pickup":        "Leeds",
		"destination":   "York",
		"tripDate":      time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"passengers":    40,
	}, withKey)
	require.Equal(t, http.StatusAccepted, rec.Code)

	jobs, err := h.store.Jobs.List(context.Background(), repository.NoTX, repository.JobFilter{Name: model.FlowEnquiryIntake})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	rec = h.do(t, http.MethodPost, "/api/v1/events/enquiries", map[string]any{"pickup": "Leeds"}, withKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/events/bids/missing/submit", map[string]any{"pricePence": 120000}, withKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
