package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/eventbase/pkg/manager"
	"github.com/rs/zerolog"
)

func TestHealthzAlwaysHealthy(t *testing.T) {
	mgr := manager.New(manager.Config{Logger: zerolog.Nop()})
	t.Cleanup(func() { mgr.CloseAll() })

	srv := httptest.NewServer(Handler(mgr))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestReadyzWithNoOpenStreamsIsReady(t *testing.T) {
	mgr := manager.New(manager.Config{Logger: zerolog.Nop()})
	t.Cleanup(func() { mgr.CloseAll() })

	srv := httptest.NewServer(Handler(mgr))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestReadinessCheckerTypeIsReadiness(t *testing.T) {
	mgr := manager.New(manager.Config{Logger: zerolog.Nop()})
	t.Cleanup(func() { mgr.CloseAll() })

	checker := NewReadinessChecker(mgr)
	if checker.Type() != CheckTypeReadiness {
		t.Errorf("Type() = %q, want %q", checker.Type(), CheckTypeReadiness)
	}
}
