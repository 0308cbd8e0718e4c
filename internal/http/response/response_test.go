package response

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessed(t *testing.T) {
	tests := []struct {
		name    string
		already bool
		want    string
	}{
		{name: "новое событие", already: false, want: `{"status":"ok","message":"Event processed successfully","event_type":"RENEWAL"}`},
		{name: "повтор", already: true, want: `{"status":"ok","message":"Event already processed","event_type":"RENEWAL"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(Processed("RENEWAL", tt.already))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestWebhookFailure(t *testing.T) {
	b, err := json.Marshal(WebhookFailure(ErrUnauthorized, "Invalid webhook secret"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Unauthorized","message":"Invalid webhook secret"}`, string(b))
}

func TestStatusOKWithData_OmitsError(t *testing.T) {
	b, err := json.Marshal(StatusOKWithData(map[string]int{"n": 1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"OK","data":{"n":1}}`, string(b))
}
