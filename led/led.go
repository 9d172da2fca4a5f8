// Package led drives the board's status LED.
//
// The blinker runs on its own timer and shares no state with the USB
// driver: a steadily blinking LED shows the firmware is alive even when the
// USB core is wedged.
package led

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/uac2speaker/pkg"
)

// DefaultFrequency is the default toggle rate: the LED changes level every
// 800 ms.
const DefaultFrequency = 1250 * physic.MilliHertz

// Config configures a [Blinker].
type Config struct {
	// Frequency is the toggle rate. Zero selects DefaultFrequency.
	Frequency physic.Frequency

	// Initial is the level driven when the blinker starts.
	Initial gpio.Level
}

// Blinker toggles a pin at a fixed rate.
type Blinker struct {
	pin     gpio.PinOut
	period  time.Duration
	level   gpio.Level
	initial gpio.Level
	running atomic.Bool
	toggles atomic.Uint64
}

// New returns a blinker driving pin.
func New(pin gpio.PinOut, cfg Config) (*Blinker, error) {
	if pin == nil {
		return nil, fmt.Errorf("led: nil pin: %w", pkg.ErrInvalidParameter)
	}
	f := cfg.Frequency
	if f == 0 {
		f = DefaultFrequency
	}
	if f < 0 || f > physic.KiloHertz {
		return nil, fmt.Errorf("led: frequency %s: %w", f, pkg.ErrInvalidParameter)
	}
	return &Blinker{
		pin:     pin,
		period:  f.Period(),
		level:   cfg.Initial,
		initial: cfg.Initial,
	}, nil
}

// Period returns the time between toggles.
func (b *Blinker) Period() time.Duration {
	return b.period
}

// Toggles returns the number of level changes driven so far.
func (b *Blinker) Toggles() uint64 {
	return b.toggles.Load()
}

// Toggle inverts the pin level once.
func (b *Blinker) Toggle() error {
	b.level = !b.level
	if err := b.pin.Out(b.level); err != nil {
		return fmt.Errorf("led %s: %w", b.pin, err)
	}
	b.toggles.Add(1)
	return nil
}

// Run drives the initial level and then toggles the pin every period until
// ctx is done. The pin is left at the initial level on return.
func (b *Blinker) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return pkg.ErrAlreadyRunning
	}
	defer b.running.Store(false)

	b.level = b.initial
	if err := b.pin.Out(b.level); err != nil {
		return fmt.Errorf("led %s: %w", b.pin, err)
	}
	pkg.LogDebug(pkg.ComponentLED, "blinking", "pin", b.pin.Name(), "period", b.period)

	t := time.NewTicker(b.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := b.pin.Out(b.initial); err != nil {
				return fmt.Errorf("led %s: %w", b.pin, err)
			}
			return nil
		case <-t.C:
			if err := b.Toggle(); err != nil {
				pkg.LogWarn(pkg.ComponentLED, "toggle failed", "error", err)
				return err
			}
		}
	}
}
