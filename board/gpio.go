package imxboard

/*
	gpio.go: board.GPIOPin over one PWM channel. Only the PWM calls touch
	hardware; Set is expressed through the duty cycle and Get has no
	meaning on an output-only peripheral.
*/

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/logging"

	"imx-pwm/imxpwm"
	imxutils "imx-pwm/utils"
)

type pwmPin struct {
	mu      sync.Mutex
	name    string
	base    uint64
	clockHz uint64
	channel *imxpwm.Channel
	logger  logging.Logger

	freqHz   uint
	dutyPct  float64
	polarity imxpwm.Polarity
}

var _ board.GPIOPin = &pwmPin{}

// Set drives the output fully high or fully low through the duty cycle.
func (p *pwmPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	if high {
		return p.SetPWM(ctx, 1, extra)
	}
	return p.SetPWM(ctx, 0, extra)
}

func (p *pwmPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	return false, errors.Errorf("cannot read level of PWM output (%s)", p.name)
}

func (p *pwmPin) PWM(ctx context.Context, extra map[string]interface{}) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dutyPct, nil
}

func (p *pwmPin) SetPWM(ctx context.Context, dutyCyclePct float64, extra map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if dutyCyclePct < 0 || dutyCyclePct > 1 {
		return errors.Errorf("duty cycle percent of %s must be between 0 and 1, got %f", p.name, dutyCyclePct)
	}
	p.dutyPct = dutyCyclePct
	return p.applyLocked()
}

func (p *pwmPin) PWMFreq(ctx context.Context, extra map[string]interface{}) (uint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.freqHz == 0 {
		return imxutils.DefaultPWMFreqHz, nil
	}
	return p.freqHz, nil
}

func (p *pwmPin) SetPWMFreq(ctx context.Context, freqHz uint, extra map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.freqHz = freqHz
	if p.dutyPct == 0 {
		// Nothing running; the new frequency takes effect on the next
		// SetPWM.
		return nil
	}
	return p.applyLocked()
}

func (p *pwmPin) setPolarity(polarity imxpwm.Polarity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polarity = polarity
}

// applyLocked pushes the cached frequency and duty to the channel. The
// channel is disabled outright at zero duty so the pin idles rather than
// emitting a degenerate waveform.
func (p *pwmPin) applyLocked() error {
	freqHz := p.freqHz
	if freqHz == 0 {
		freqHz = imxutils.DefaultPWMFreqHz
	}
	periodNs := uint64(1_000_000_000) / uint64(freqHz)

	state := imxpwm.State{
		Enabled:  p.dutyPct > 0,
		Polarity: p.polarity,
		PeriodNs: periodNs,
		DutyNs:   uint64(float64(periodNs) * p.dutyPct),
	}
	return p.channel.Apply(state)
}
