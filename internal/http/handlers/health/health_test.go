package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
	service "github.com/magabrotheeeer/entitlement-webhooks/internal/services/health"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage/memory"
)

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{name: "база доступна", wantStatus: http.StatusOK, wantBody: `{"status":"healthy","database":"connected"}`},
		{name: "база недоступна", pingErr: errors.New("refused"), wantStatus: http.StatusServiceUnavailable, wantBody: `{"status":"unhealthy","database":"disconnected"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			if tt.pingErr != nil {
				store.FailNext(memory.OpPing, tt.pingErr)
			}
			h := New(service.NewReporter(store, sl.Discard(), 0))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil).WithContext(context.Background()))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.JSONEq(t, tt.wantBody, rr.Body.String())
		})
	}
}
