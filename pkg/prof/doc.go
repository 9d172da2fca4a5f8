// Package prof exposes Go profiling for the simulator behind the "profile"
// build tag:
//
//	go build -tags profile ./cmd/uac2sim
//
// With the tag, [Register] mounts [net/http/pprof] on the simulator's HTTP
// mux and [StartCPU]/[StopCPU] write a CPU profile for the lifetime of a
// run. Without it every function is a no-op, so the simulator wires them
// unconditionally.
package prof
