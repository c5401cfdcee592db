package imxpwm

/*
	channel.go: state reader and state applier for one PWM channel,
	including the ERR051198 write-sequencing workaround. Apply and
	ReadState assume a single writer; the resource framework serializes
	callers per channel.
*/

import (
	"time"

	"go.viam.com/rdk/logging"
)

const nsPerSec = 1_000_000_000

// Safety margin for the erratum window check, in nanoseconds: roughly the
// time one register write takes to land.
const errataMarginNs = 1500

// Polarity of the PWM output.
type Polarity uint8

const (
	// PolarityNormal drives the output high for the duty portion of the period.
	PolarityNormal Polarity = iota
	// PolarityInversed drives the output low for the duty portion of the period.
	PolarityInversed
)

func (p Polarity) String() string {
	if p == PolarityInversed {
		return "inversed"
	}
	return "normal"
}

// State is the abstract, nanosecond-domain state of a channel.
type State struct {
	Enabled  bool
	Polarity Polarity
	PeriodNs uint64
	DutyNs   uint64
}

// ChannelConfig holds the tunables whose correct values depend on
// empirical hardware timing.
type ChannelConfig struct {
	// SWResetRetries bounds the poll loop waiting for a software reset to
	// self-clear. Defaults to 5.
	SWResetRetries int
	// SWResetPoll is the sleep between reset polls. Defaults to 200µs.
	SWResetPoll time.Duration
}

const (
	defaultSWResetRetries = 5
	defaultSWResetPoll    = 200 * time.Microsecond
)

// Channel is one PWM output. It owns the register transport, the clock
// handles and the cached sample-register value.
type Channel struct {
	regs   RegIO
	clk    Clock
	logger logging.Logger

	// Last programmed PWMSAR value in register units. PWMSAR cannot be
	// read while the channel is disabled, and the erratum check needs the
	// previous duty value, so it is never read back from hardware.
	dutyCycle uint32

	// Last applied abstract state, maintained by Sync and Apply under the
	// single-writer discipline.
	enabled  bool
	periodNs uint64

	resetRetries int
	resetPoll    time.Duration

	critical func(func())
}

// NewChannel wires a channel over its register transport and input
// clocks. Call Sync before the first Apply so the cached view matches
// whatever the bootloader left running.
func NewChannel(regs RegIO, clk Clock, logger logging.Logger, cfg ChannelConfig) *Channel {
	if cfg.SWResetRetries <= 0 {
		cfg.SWResetRetries = defaultSWResetRetries
	}
	if cfg.SWResetPoll <= 0 {
		cfg.SWResetPoll = defaultSWResetPoll
	}
	c := &Channel{
		regs:         regs,
		clk:          clk,
		logger:       logger,
		resetRetries: cfg.SWResetRetries,
		resetPoll:    cfg.SWResetPoll,
	}
	c.critical = c.timeCritical
	return c
}

// Sync initializes the cached channel view from live hardware. If the
// bootloader left the channel running, the input clocks are kept enabled
// for as long as it stays running.
func (c *Channel) Sync() error {
	state, err := c.ReadState()
	if err != nil {
		return err
	}
	c.enabled = state.Enabled
	c.periodNs = state.PeriodNs
	if state.Enabled {
		if err := c.clk.Enable(); err != nil {
			return err
		}
	}
	return nil
}

// ReadState reconstructs the abstract channel state from live registers.
// It fails only if the input clocks cannot be enabled, and is safe to
// call regardless of the channel's enabled state.
func (c *Channel) ReadState() (State, error) {
	var state State

	if err := c.clk.Enable(); err != nil {
		return State{}, err
	}
	defer c.clk.Disable()

	control := c.regs.Read32(regControl)
	state.Enabled = control&controlEnable != 0

	switch outputGet(control) {
	case outputNormal:
		state.Polarity = PolarityNormal
	case outputInverted:
		state.Polarity = PolarityInversed
	default:
		// Values 2 and 3 disconnect the output; neither maps to a
		// polarity, so leave it alone rather than guess.
		c.logger.Warn("cannot read polarity, output disconnected")
	}

	prescaler := uint64(prescalerGet(control))
	clkRate := c.clk.Rate()

	period := c.regs.Read32(regPeriod)
	if period >= periodRegMax {
		period = periodRegMax
	}
	// PWMOUT (Hz) = PWMCLK / (PWMPR + 2)
	state.PeriodNs = ceilDiv(nsPerSec*uint64(period+2)*prescaler, clkRate)

	duty := c.dutyCycle
	if state.Enabled {
		duty = c.regs.Read32(regSample)
	}
	state.DutyNs = ceilDiv(nsPerSec*uint64(duty)*prescaler, clkRate)

	return state, nil
}

// Apply programs the channel to the desired state. It fails only when the
// input clocks cannot be enabled, in which case no register has been
// touched; reset and FIFO timeouts degrade to warnings because the best
// recovery is to proceed and let the next apply self-correct.
func (c *Channel) Apply(state State) error {
	clkRate := c.clk.Rate()

	periodCycles := clkRate * state.PeriodNs / nsPerSec
	prescale := periodCycles/0x10000 + 1
	periodCycles /= prescale
	dutyCycles := clkRate * state.DutyNs / nsPerSec / prescale

	// The real period is the register value plus 2 counts.
	if periodCycles > 2 {
		periodCycles -= 2
	} else {
		periodCycles = 0
	}

	// Wait for a free FIFO slot if the channel is already running; put
	// the hardware into a known state if it was disabled.
	if c.enabled {
		c.waitFIFOSlot()
	} else {
		if err := c.clk.Enable(); err != nil {
			return err
		}
		c.swReset()
	}

	// Current output period from the still-programmed registers, for the
	// fast-output decision below.
	period := c.regs.Read32(regPeriod)
	if period >= periodRegMax {
		period = periodRegMax
	}
	control := c.regs.Read32(regControl)
	periodNs := ceilDiv(nsPerSec*uint64(period+2)*uint64(prescalerGet(control)), clkRate)
	periodUs := ceilDiv(periodNs, 1000)

	margin := clkRate * errataMarginNs / nsPerSec

	// ERR051198: with an empty FIFO, a newly written sample value takes
	// effect immediately, mid-period. If the new value is smaller than
	// the old one and the counter has already passed it, the output
	// never flips and stays active for a full period. When the counter
	// is inside that window, park the old value in the FIFO first so the
	// new one takes effect cleanly at the next rollover. The whole
	// sequence runs at real-time priority with relaxed register writes
	// because the counter keeps moving underneath it.
	c.critical(func() {
		avail := fifoAvail(c.regs.Read32Relaxed(regStatus))

		if dutyCycles < uint64(c.dutyCycle) && control&controlEnable != 0 {
			switch {
			case periodUs < 2: // 2µs = 500 kHz
				// The period is shorter than two register writes with a
				// wait between them; no clean fix exists. Fill the FIFO
				// with the old value as damage control.
				spinWait(3 * time.Duration(periodUs) * time.Microsecond)
				c.regs.Write32Relaxed(regSample, c.dutyCycle)
				c.regs.Write32Relaxed(regSample, c.dutyCycle)
			case avail < 2:
				counter := uint64(c.regs.Read32Relaxed(regCounter))
				// The counter may cross the new duty value, or roll over
				// the period, before the next write lands.
				if (counter+margin >= dutyCycles && counter < uint64(c.dutyCycle)) ||
					counter+margin >= periodCycles {
					c.regs.Write32Relaxed(regSample, c.dutyCycle)
				}
			}
		}

		c.regs.Write32Relaxed(regSample, uint32(dutyCycles))
	})

	// Period changes are not subject to the erratum.
	c.regs.Write32(regPeriod, uint32(periodCycles))

	c.dutyCycle = uint32(dutyCycles)

	control = prescalerSet(uint32(prescale)) |
		controlStopEn | controlDozeEn | controlWaitEn | controlDebugEn |
		clockSourceSet(clockSourceIPGHigh)
	if state.Polarity == PolarityInversed {
		control |= outputSet(outputInverted)
	}
	if state.Enabled {
		control |= controlEnable
	}
	c.regs.Write32(regControl, control)

	if !state.Enabled {
		c.clk.Disable()
	}

	c.enabled = state.Enabled
	c.periodNs = state.PeriodNs

	return nil
}

// swReset resets the peripheral and polls, with a bounded budget, for the
// reset bit to self-clear. A timeout is logged but not fatal.
func (c *Channel) swReset() {
	c.regs.Write32(regControl, controlSWReset)

	var control uint32
	for retries := 0; ; retries++ {
		time.Sleep(c.resetPoll)
		control = c.regs.Read32(regControl)
		if control&controlSWReset == 0 || retries >= c.resetRetries {
			break
		}
	}
	if control&controlSWReset != 0 {
		c.logger.Warn("PWM software reset timed out")
	}
}

// waitFIFOSlot blocks for roughly one output period when the sample FIFO
// is full. Advisory backpressure only: if the FIFO is still full
// afterwards the write proceeds anyway.
func (c *Channel) waitFIFOSlot() {
	status := c.regs.Read32(regStatus)
	avail := fifoAvail(status)
	if avail == fifoDepth {
		periodMs := ceilDiv(c.periodNs, uint64(time.Millisecond))
		time.Sleep(time.Duration(periodMs) * time.Millisecond)

		status = c.regs.Read32(regStatus)
		if avail == fifoAvail(status) {
			c.logger.Warn("no free PWM FIFO slot")
		}
	}
}

// Close releases the register mapping and, if the channel was left
// running, the clock reference Sync took out for it. The output itself
// keeps running; disabling it is an Apply decision, not a Close one.
func (c *Channel) Close() error {
	if c.enabled {
		c.clk.Disable()
		c.enabled = false
	}
	return c.regs.Close()
}

// ceilDiv divides rounding up. All nanosecond conversions round up so the
// reported period and duty never understate the hardware timing.
func ceilDiv(n, d uint64) uint64 {
	return (n + d - 1) / d
}
