package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSettingsRouter(t *testing.T) *mux.Router {
	t.Helper()

	r := mux.NewRouter()
	NewSettingsHandler(newTestStore(t)).RegisterRoutes(r)
	return r
}

func TestSettingsHandler_PutAndGet(t *testing.T) {
	r := newSettingsRouter(t)

	rec := do(r, http.MethodPut, "/api/settings/theme", `{"value": "light"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/api/settings/theme", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got settingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, settingResponse{Key: "theme", Value: "light"}, got)

	rec = do(r, http.MethodGet, "/api/settings", "")
	var listed listSettingsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	assert.Equal(t, map[string]string{"theme": "light"}, listed.Settings)
}

func TestSettingsHandler_Errors(t *testing.T) {
	r := newSettingsRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing key", http.MethodGet, "/api/settings/theme", "", http.StatusNotFound},
		{"unknown key", http.MethodPut, "/api/settings/frame_rate", `{"value": "60"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPut, "/api/settings/quality", `{"value":`, http.StatusBadRequest},
		{"quality out of range", http.MethodPut, "/api/settings/quality", `{"value": "ultra"}`, http.StatusBadRequest},
		{"theme out of range", http.MethodPut, "/api/settings/theme", `{"value": "neon"}`, http.StatusBadRequest},
		{"flag not a boolean", http.MethodPut, "/api/settings/enable_shadows", `{"value": "sometimes"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("rejected values are not stored", func(t *testing.T) {
		rec := do(r, http.MethodGet, "/api/settings", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"settings": {}}`, rec.Body.String())
	})
}
