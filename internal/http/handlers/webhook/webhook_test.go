package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/services/audit"
	service "github.com/magabrotheeeer/entitlement-webhooks/internal/services/webhook"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage/memory"
)

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, req service.Request) (service.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.Result), args.Error(1)
}

func router(h http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/api/v1/webhooks/{provider}", h)
	return r
}

func post(t *testing.T, h http.Handler, provider, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+provider, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandler_EndToEnd(t *testing.T) {
	store := memory.New()
	log := sl.Discard()
	processor := service.NewProcessor(store, audit.NewLogger(store, log, time.Second), log)
	h := router(New(log, processor, []string{"revenuecat"}, 0))

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "первая покупка",
			body:       `{"event":{"id":"e1","type":"INITIAL_PURCHASE","app_user_id":"u1","product_id":"m1","expiration_at_ms":4000000000000}}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok","message":"Event processed successfully","event_type":"INITIAL_PURCHASE"}`,
		},
		{
			name:       "повтор",
			body:       `{"event":{"id":"e1","type":"INITIAL_PURCHASE","app_user_id":"u1","product_id":"m1","expiration_at_ms":4000000000000}}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok","message":"Event already processed","event_type":"INITIAL_PURCHASE"}`,
		},
		{
			name:       "неизвестный тип",
			body:       `{"event":{"id":"e2","type":"SOMETHING_NEW","app_user_id":"u1"}}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok","message":"Event processed successfully","event_type":"SOMETHING_NEW"}`,
		},
		{
			name:       "нет type",
			body:       `{"event":{"app_user_id":"u1"}}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Bad Request","message":"missing required fields: event.type"}`,
		},
		{
			name:       "NUL в app_user_id",
			body:       `{"event":{"id":"e3","type":"RENEWAL","app_user_id":"u\u00001"}}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Bad Request","message":"invalid field: event.app_user_id"}`,
		},
		{
			name:       "некорректный UTF-8",
			body:       "{\"event\":{\"id\":\"e4\",\"type\":\"RENEWAL\",\"app_user_id\":\"u1\",\"product_id\":\"m\xff\"}}",
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Bad Request","message":"invalid payload"}`,
		},
		{
			name:       "некорректный JSON",
			body:       `{"event":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Bad Request","message":"invalid JSON payload"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(t, h, "revenuecat", tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.JSONEq(t, tt.wantBody, rr.Body.String())
		})
	}

	e, err := store.GetEntitlement(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, e.IsPro)
	assert.Equal(t, 2, store.ProcessedEvents())
}

func TestHandler_UnknownProvider(t *testing.T) {
	processor := new(MockProcessor)
	h := router(New(sl.Discard(), processor, []string{"revenuecat"}, 0))

	rr := post(t, h, "stripe", `{"event":{"type":"RENEWAL","app_user_id":"u1"}}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	processor.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestHandler_BodyTooLarge(t *testing.T) {
	processor := new(MockProcessor)
	h := router(New(sl.Discard(), processor, []string{"revenuecat"}, 16))

	rr := post(t, h, "revenuecat", `{"event":{"type":"RENEWAL","app_user_id":"u1"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"Bad Request","message":"payload too large"}`, rr.Body.String())
	processor.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestHandler_StorageFailureIs500(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("Process", mock.Anything, mock.MatchedBy(func(req service.Request) bool {
		return req.Provider == "revenuecat" && !req.ReceivedAt.IsZero() && len(req.Body) > 0
	})).Return(service.Result{}, &storage.RepositoryError{Op: "storage.UpdateEntitlement", Err: errors.New("connection reset")})

	h := router(New(sl.Discard(), processor, []string{"revenuecat"}, 0))
	rr := post(t, h, "revenuecat", `{"event":{"id":"e1","type":"RENEWAL","app_user_id":"u1"}}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"Failed to process webhook event"}`, rr.Body.String())
	processor.AssertExpectations(t)
}

func TestHandler_AlreadyProcessedMessage(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("Process", mock.Anything, mock.Anything).
		Return(service.Result{Outcome: models.OutcomeAlreadyProcessed, EventType: "RENEWAL"}, nil)

	h := router(New(sl.Discard(), processor, []string{"revenuecat"}, 0))
	rr := post(t, h, "revenuecat", `{}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Event already processed")
}
