//go:build !profile

package prof

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStubs(t *testing.T) {
	assert.False(t, Enabled)
	assert.NoError(t, StartCPU("/nonexistent/directory/cpu.prof"))
	assert.False(t, IsCPUActive())
	StopCPU()

	mux := http.NewServeMux()
	Register(mux)
	_, pattern := mux.Handler(httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Empty(t, pattern)
}
