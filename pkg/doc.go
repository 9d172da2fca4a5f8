// Package pkg provides shared utilities for the uac2speaker device core.
//
// This package contains common functionality used by the driver, the
// register back ends and the simulator, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for USB protocol and driver errors
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute so the
// interrupt path can be filtered without touching call sites:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogDebug(pkg.ComponentControl, "chunk sent", "len", 64)
//
// The default level is Warn, which keeps the interrupt handler silent.
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrStall) {
//	    // Host saw a STALL handshake
//	}
package pkg
