package httpfetch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientDoRequestWithRetry(t *testing.T) {
	tests := []struct {
		name             string
		statuses         []int
		maxAttempts      int
		expectedStatus   int
		expectedAttempts int
	}{
		{
			name:             "retries on 503 then succeeds",
			statuses:         []int{http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK},
			maxAttempts:      3,
			expectedStatus:   http.StatusOK,
			expectedAttempts: 3,
		},
		{
			name:             "exhausts retries on 429 and returns last response",
			statuses:         []int{http.StatusTooManyRequests},
			maxAttempts:      2,
			expectedStatus:   http.StatusTooManyRequests,
			expectedAttempts: 2,
		},
		{
			name:             "single attempt does not retry",
			statuses:         []int{http.StatusBadGateway, http.StatusOK},
			maxAttempts:      1,
			expectedStatus:   http.StatusBadGateway,
			expectedAttempts: 1,
		},
		{
			name:             "404 is not retried",
			statuses:         []int{http.StatusNotFound, http.StatusOK},
			maxAttempts:      3,
			expectedStatus:   http.StatusNotFound,
			expectedAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts++
				status := tt.statuses[len(tt.statuses)-1]
				if attempts <= len(tt.statuses) {
					status = tt.statuses[attempts-1]
				}
				w.WriteHeader(status)
			}))
			defer ts.Close()

			client := NewClient(WithRetry(tt.maxAttempts, time.Millisecond))

			req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
			if err != nil {
				t.Fatalf("create request: %v", err)
			}

			resp, err := client.doRequestWithRetry(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.expectedStatus {
				t.Fatalf("status: got %d, want %d", resp.StatusCode, tt.expectedStatus)
			}
			if attempts != tt.expectedAttempts {
				t.Fatalf("attempts: got %d, want %d", attempts, tt.expectedAttempts)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"2"}}}
	if got := parseRetryAfter(resp); got != 2*time.Second {
		t.Fatalf("got %v, want 2s", got)
	}
	resp.Header.Set("Retry-After", "soon")
	if got := parseRetryAfter(resp); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}
