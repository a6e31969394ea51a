//go:build !profile

package prof

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestStubs(t *testing.T) {
	if Enabled {
		t.Fatal("Enabled = true without the profile tag")
	}
	path := filepath.Join(t.TempDir(), "cpu.prof")
	if err := StartCPU(path); err != nil {
		t.Errorf("StartCPU() = %v", err)
	}
	if err := StopCPU(); err != nil {
		t.Errorf("StopCPU() = %v", err)
	}
	if err := Write("heap", path); err != nil {
		t.Errorf("Write() = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("stub wrote %s", path)
	}

	mux := http.NewServeMux()
	Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/debug/pprof/ status = %d, want 404", rec.Code)
	}
}
