package commands

import (
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestMetricsAppServesRegistry(t *testing.T) {
	t.Setenv("VIBE_MASTER_KEY", "")
	a, err := loadApp(testCommand(t, filepath.Join(t.TempDir(), "settings.yaml")))
	if err != nil {
		t.Fatal(err)
	}
	a.metrics.RecordSweep(2)
	srv := metricsApp(a)

	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "ok"},
		{"/metrics", "vibe_chrome_temp_copies_swept_total 2"},
	}
	for _, tt := range tests {
		resp, err := srv.Test(httptest.NewRequest("GET", tt.path, nil))
		if err != nil {
			t.Fatalf("GET %s failed: %v", tt.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Errorf("GET %s: expected 200, got %d", tt.path, resp.StatusCode)
		}
		if !strings.Contains(string(body), tt.want) {
			t.Errorf("GET %s: expected %q in body, got:\n%s", tt.path, tt.want, body)
		}
	}

	// The health check went through the request middleware.
	resp, err := srv.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "vibe_http_requests_total") {
		t.Errorf("expected request counter in output, got:\n%s", body)
	}
}
