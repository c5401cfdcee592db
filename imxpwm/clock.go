package imxpwm

/*
	clock.go: the clock-gating collaborator. The PWM block takes two input
	clocks; the per clock drives the counter and its rate feeds all period
	arithmetic. Enable/disable are reference counted so concurrent
	channels sharing a physical gate stay balanced.
*/

import (
	"sync"

	"github.com/pkg/errors"
)

// Input clock names in device-tree order. The bus clock feeds the
// register interface, the per clock the counter.
var clockNames = [...]string{"ipg", "per"}

// perClockIndex selects the counter clock within clockNames.
const perClockIndex = 1

// Clock gates one input clock of the peripheral and reports its rate.
// Enable and Disable are reference counted and idempotent per reference;
// Rate is fixed for the lifetime of the handle.
type Clock interface {
	Enable() error
	Disable()
	Rate() uint64
}

// FixedClock is a Clock whose gate is managed outside this driver (left
// ungated by the bootloader, or gated by a kernel still owning the CCM).
// Enable and Disable only track balance.
type FixedClock struct {
	mu   sync.Mutex
	refs int
	rate uint64
}

// NewFixedClock returns an always-on clock with the given rate in Hz.
func NewFixedClock(rateHz uint64) *FixedClock {
	return &FixedClock{rate: rateHz}
}

func (c *FixedClock) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
	return nil
}

func (c *FixedClock) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs > 0 {
		c.refs--
	}
}

// Rate returns the clock rate in Hz.
func (c *FixedClock) Rate() uint64 {
	return c.rate
}

// CCMGate is a Clock backed by a 2-bit gate field in one of the clock
// controller module's CCGR registers. The first Enable ungates the clock
// fully (run and wait modes), the last Disable gates it off.
type CCMGate struct {
	mu    sync.Mutex
	refs  int
	regs  RegIO
	off   uint32 // CCGR register offset within the mapped CCM window
	shift uint   // gate field position within the register
	rate  uint64
}

const (
	ccmGateMask uint32 = 0x3
	ccmGateOn   uint32 = 0x3
)

// NewCCMGate returns a gate handle over an already-mapped CCM window.
func NewCCMGate(regs RegIO, off uint32, shift uint, rateHz uint64) *CCMGate {
	return &CCMGate{regs: regs, off: off, shift: shift, rate: rateHz}
}

func (g *CCMGate) Enable() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refs++
	if g.refs == 1 {
		g.setGate(ccmGateOn)
	}
	return nil
}

func (g *CCMGate) Disable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refs == 0 {
		return
	}
	g.refs--
	if g.refs == 0 {
		g.setGate(0)
	}
}

// Rate returns the gated clock's rate in Hz.
func (g *CCMGate) Rate() uint64 {
	return g.rate
}

func (g *CCMGate) setGate(val uint32) {
	reg := g.regs.Read32(g.off)
	reg &^= ccmGateMask << g.shift
	reg |= (val & ccmGateMask) << g.shift
	g.regs.Write32(g.off, reg)
}

// clockBulk enables and disables the peripheral's input clocks as a set,
// unwinding on partial failure.
type clockBulk struct {
	clks []Clock
}

// NewClockBulk bundles the ipg and per clock handles, in clockNames
// order, into a single Clock.
func NewClockBulk(clks ...Clock) (Clock, error) {
	if len(clks) != len(clockNames) {
		return nil, errors.Errorf("expected %d input clocks (%v), got %d",
			len(clockNames), clockNames, len(clks))
	}
	return &clockBulk{clks: clks}, nil
}

func (b *clockBulk) Enable() error {
	for i, clk := range b.clks {
		if err := clk.Enable(); err != nil {
			for j := i - 1; j >= 0; j-- {
				b.clks[j].Disable()
			}
			return errors.Wrapf(err, "enabling %s clock", clockNames[i])
		}
	}
	return nil
}

func (b *clockBulk) Disable() {
	for _, clk := range b.clks {
		clk.Disable()
	}
}

// Rate reports the counter clock's rate in Hz.
func (b *clockBulk) Rate() uint64 {
	return b.clks[perClockIndex].Rate()
}
