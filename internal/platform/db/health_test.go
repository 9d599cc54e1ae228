package db

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestHealthReport_HTTPStatus(t *testing.T) {
	tests := []struct {
		status string
		want   int
	}{
		{"healthy", http.StatusOK},
		{"unhealthy", http.StatusServiceUnavailable},
		{"", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		r := HealthReport{Status: tt.status}
		if got := r.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", tt.status, got, tt.want)
		}
	}
}

func TestHealthReport_JSON(t *testing.T) {
	t.Run("healthy report omits the error", func(t *testing.T) {
		r := HealthReport{
			Status: "healthy",
			Pool: &PoolStats{
				TotalConns:  5,
				IdleConns:   4,
				MaxConns:    20,
				AcquireWait: "250ms",
				Healthy:     true,
			},
		}
		b, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		body := string(b)
		if strings.Contains(body, "error") {
			t.Errorf("body %s carries an error field for a healthy report", body)
		}
		if !strings.Contains(body, `"total_conns":5`) || !strings.Contains(body, `"acquire_wait":"250ms"`) {
			t.Errorf("body %s does not carry the pool counters", body)
		}
	})

	t.Run("unhealthy report names the cause", func(t *testing.T) {
		r := HealthReport{Status: "unhealthy", Error: "connection refused", Pool: &PoolStats{}}
		b, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if !strings.Contains(string(b), `"error":"connection refused"`) {
			t.Errorf("body %s does not name the failure", b)
		}
	})
}
