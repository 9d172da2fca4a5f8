package device

import "sync/atomic"

// Stats counts driver events. Counters are updated from the interrupt
// handler and may be read from any goroutine.
type Stats struct {
	Interrupts      atomic.Uint64 // Handler invocations
	Resets          atomic.Uint64 // Bus resets
	Setups          atomic.Uint64 // SETUP packets decoded
	Stalls          atomic.Uint64 // Requests answered with STALL
	InPackets       atomic.Uint64 // Packets queued on endpoint 0 IN, including ZLPs
	DescriptorBytes atomic.Uint64 // Descriptor bytes served
	OutPackets      atomic.Uint64 // OUT data packets drained
	OutBytes        atomic.Uint64 // OUT data bytes drained
	IgnoredPackets  atomic.Uint64 // Receive entries with an unhandled status
	Cancelled       atomic.Uint64 // Control transfers replaced by a new SETUP
}

// StatsSnapshot is a point-in-time copy of [Stats].
type StatsSnapshot struct {
	Interrupts      uint64
	Resets          uint64
	Setups          uint64
	Stalls          uint64
	InPackets       uint64
	DescriptorBytes uint64
	OutPackets      uint64
	OutBytes        uint64
	IgnoredPackets  uint64
	Cancelled       uint64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Interrupts:      s.Interrupts.Load(),
		Resets:          s.Resets.Load(),
		Setups:          s.Setups.Load(),
		Stalls:          s.Stalls.Load(),
		InPackets:       s.InPackets.Load(),
		DescriptorBytes: s.DescriptorBytes.Load(),
		OutPackets:      s.OutPackets.Load(),
		OutBytes:        s.OutBytes.Load(),
		IgnoredPackets:  s.IgnoredPackets.Load(),
		Cancelled:       s.Cancelled.Load(),
	}
}
