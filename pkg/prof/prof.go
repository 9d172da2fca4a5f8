//go:build profile

package prof

import (
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	rpprof "runtime/pprof"
	"sync"
)

// Enabled reports whether the binary was built with the "profile" tag.
const Enabled = true

// ErrCPUProfileActive indicates CPU profiling is already active.
var ErrCPUProfileActive = errors.New("cpu profile already active")

var (
	cpuMutex sync.Mutex
	cpuFile  *os.File
)

// Register mounts the pprof handlers under /debug/pprof/ on mux, next to
// the simulator's metrics endpoint.
func Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

// StartCPU starts CPU profiling into the file at path. Returns
// [ErrCPUProfileActive] if a profile is already being written.
func StartCPU(path string) error {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()

	if cpuFile != nil {
		return ErrCPUProfileActive
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rpprof.StartCPUProfile(f); err != nil {
		f.Close()
		return err
	}
	cpuFile = f
	return nil
}

// StopCPU stops CPU profiling. It is safe to call when profiling is not
// active.
func StopCPU() {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()

	if cpuFile == nil {
		return
	}
	rpprof.StopCPUProfile()
	cpuFile.Close()
	cpuFile = nil
}

// IsCPUActive reports whether CPU profiling is currently active.
func IsCPUActive() bool {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()
	return cpuFile != nil
}
