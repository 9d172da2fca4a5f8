//go:build !profile

package prof

import "net/http"

// Enabled reports whether the binary was built with the "profile" tag.
const Enabled = false

// ErrCPUProfileActive is never returned by the stubs.
var ErrCPUProfileActive error

// Register is a no-op when built without the "profile" tag.
func Register(_ *http.ServeMux) {}

// StartCPU is a no-op when built without the "profile" tag.
func StartCPU(_ string) error {
	return nil
}

// StopCPU is a no-op when built without the "profile" tag.
func StopCPU() {}

// IsCPUActive always returns false when built without the "profile" tag.
func IsCPUActive() bool {
	return false
}
