package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestApiKey(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		configured string
		provided   string
		wantStatus int
	}{
		{
			name:       "matching key passes",
			configured: "secret",
			provided:   "secret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong key rejected",
			configured: "secret",
			provided:   "other",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing key rejected",
			configured: "secret",
			provided:   "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "empty configured key disables the check",
			configured: "",
			provided:   "",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := ApiKey(tt.configured)(okHandler)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.provided != "" {
				req.Header.Set("X-API-KEY", tt.provided)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
