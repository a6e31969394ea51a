//go:build profile

package prof

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	rpprof "runtime/pprof"
	"sync"

	"github.com/ardnew/softtmc/pkg"
)

// Enabled reports whether profiling is compiled in.
const Enabled = true

var (
	cpuMutex sync.Mutex
	cpuFile  *os.File
)

// StartCPU starts CPU profiling into path.
func StartCPU(path string) error {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()

	if cpuFile != nil {
		return fmt.Errorf("cpu profile: %w", pkg.ErrAlreadyRunning)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cpu profile: %w", err)
	}
	if err := rpprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("cpu profile: %w", err)
	}
	cpuFile = f
	pkg.LogDebug(pkg.ComponentCLI, "cpu profile started", "path", path)
	return nil
}

// StopCPU stops CPU profiling and closes the file. It does nothing if
// profiling is not running.
func StopCPU() error {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()

	if cpuFile == nil {
		return nil
	}
	rpprof.StopCPUProfile()
	err := cpuFile.Close()
	cpuFile = nil
	return err
}

// Write writes the named snapshot profile (heap, allocs, goroutine, block,
// mutex, threadcreate) to path.
func Write(name, path string) error {
	p := rpprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("profile %q: %w", name, pkg.ErrInvalidParameter)
	}
	if name == "heap" || name == "allocs" {
		runtime.GC()
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("profile %s: %w", name, err)
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return fmt.Errorf("profile %s: %w", name, err)
	}
	return f.Close()
}

// Register mounts the pprof handlers on mux under /debug/pprof/.
func Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
