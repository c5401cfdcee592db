package imxpwm

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestCCMGateRefCount(t *testing.T) {
	regs := newFakeRegs()
	// Neighboring gate fields in the same CCGR register must survive.
	regs.regs[0x70] = 0x3 << 2

	gate := NewCCMGate(regs, 0x70, 10, 66_000_000)
	test.That(t, gate.Rate(), test.ShouldEqual, uint64(66_000_000))

	test.That(t, gate.Enable(), test.ShouldBeNil)
	test.That(t, regs.regs[0x70], test.ShouldEqual, uint32(0x3<<2|0x3<<10))

	// A second reference does not touch the register again.
	writes := len(regs.writes)
	test.That(t, gate.Enable(), test.ShouldBeNil)
	test.That(t, len(regs.writes), test.ShouldEqual, writes)

	gate.Disable()
	test.That(t, regs.regs[0x70], test.ShouldEqual, uint32(0x3<<2|0x3<<10))
	gate.Disable()
	test.That(t, regs.regs[0x70], test.ShouldEqual, uint32(0x3<<2))

	// Unbalanced Disable is a no-op.
	gate.Disable()
	test.That(t, regs.regs[0x70], test.ShouldEqual, uint32(0x3<<2))
}

func TestClockBulkArity(t *testing.T) {
	_, err := NewClockBulk(NewFixedClock(66_000_000))
	test.That(t, err, test.ShouldNotBeNil)

	clk, err := NewClockBulk(NewFixedClock(25_000_000), NewFixedClock(66_000_000))
	test.That(t, err, test.ShouldBeNil)
	// The counter clock's rate wins.
	test.That(t, clk.Rate(), test.ShouldEqual, uint64(66_000_000))
}

func TestClockBulkRollback(t *testing.T) {
	ipg := &fakeClock{rate: 25_000_000}
	per := &fakeClock{rate: 66_000_000, enableErr: errors.New("gate stuck")}

	clk, err := NewClockBulk(ipg, per)
	test.That(t, err, test.ShouldBeNil)

	err = clk.Enable()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "per clock")
	// The ipg enable must have been unwound.
	test.That(t, ipg.enables, test.ShouldEqual, ipg.disables)
}
