//go:build profile

package prof

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartStopCPU(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu.prof")

	require.NoError(t, StartCPU(path))
	assert.True(t, IsCPUActive())
	assert.ErrorIs(t, StartCPU(path), ErrCPUProfileActive)

	StopCPU()
	assert.False(t, IsCPUActive())
	StopCPU()

	require.NoError(t, StartCPU(path))
	StopCPU()
}

func TestStartCPUInvalidPath(t *testing.T) {
	assert.Error(t, StartCPU("/nonexistent/directory/cpu.prof"))
	assert.False(t, IsCPUActive())
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/goroutine?debug=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutine")
}
