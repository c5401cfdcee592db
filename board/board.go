// Package imxboard implements an i.MX board whose PWM channels are driven
// by direct register access.
package imxboard

/*
	This driver programs the PWM controller of i.MX SoCs (i.MX27 and
	compatible successors) from user space via /dev/mem. Each configured
	channel is one PWM peripheral instance and is exposed as a GPIO pin
	supporting only the PWM calls. The kernel's own pwm-imx27 driver must
	not be bound to the same peripheral.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	pb "go.viam.com/api/component/board/v1"
	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/grpc"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"imx-pwm/imxpwm"
	imxutils "imx-pwm/utils"
)

// Model represents an i.MX PWM board model.
var Model = imxutils.IMXFamily.WithModel("pwm")

// init registers the i.MX PWM board.
func init() {
	resource.RegisterComponent(
		board.API,
		Model,
		resource.Registration[board.Board, *imxutils.Config]{
			Constructor: newBoard,
		})
}

// channelOpener builds a Channel for a resolved peripheral. Swapped out
// in tests for a fake register bank.
type channelOpener func(base, clockHz uint64, logger logging.Logger) (*imxpwm.Channel, error)

func openChannel(base, clockHz uint64, logger logging.Logger) (*imxpwm.Channel, error) {
	regs, err := imxpwm.OpenRegIO(base)
	if err != nil {
		return nil, err
	}
	// The bootloader leaves both input clocks ungated on these SoCs, so
	// the gates only track balance.
	clk, err := imxpwm.NewClockBulk(imxpwm.NewFixedClock(clockHz), imxpwm.NewFixedClock(clockHz))
	if err != nil {
		multierr.AppendInto(&err, regs.Close())
		return nil, err
	}
	channel := imxpwm.NewChannel(regs, clk, logger, imxpwm.ChannelConfig{})
	if err := channel.Sync(); err != nil {
		multierr.AppendInto(&err, channel.Close())
		return nil, err
	}
	return channel, nil
}

// imxBoard is an implementation of a board.Board over memory-mapped i.MX
// PWM peripherals.
type imxBoard struct {
	resource.Named

	mu       sync.Mutex
	logger   logging.Logger
	pins     map[string]*pwmPin
	dtRoot   string
	open     channelOpener
	isClosed bool
}

// newBoard makes a new i.MX PWM board using the given config.
func newBoard(
	ctx context.Context,
	_ resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (board.Board, error) {
	b := &imxBoard{
		Named:  conf.ResourceName().AsNamed(),
		logger: logger,
		pins:   map[string]*pwmPin{},
		dtRoot: imxutils.DefaultDTRoot,
		open:   openChannel,
	}

	if err := b.Reconfigure(ctx, nil, conf); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *imxBoard) Reconfigure(
	ctx context.Context,
	_ resource.Dependencies,
	conf resource.Config,
) error {
	cfg, err := resource.NativeConfig[*imxutils.Config](conf)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.configureKernelDriver(cfg); err != nil {
		return err
	}

	return b.reconfigureChannels(cfg)
}

// resolveChannel turns a channel config into a physical base address and
// a counter clock rate, consulting the device tree where the config is
// silent.
func (b *imxBoard) resolveChannel(cfg imxutils.ChannelConfig) (base, clockHz uint64, err error) {
	if cfg.RegisterBase != "" {
		base, err = imxutils.ParseRegisterBase(cfg.RegisterBase)
		if err != nil {
			return 0, 0, err
		}
	} else {
		if err := imxutils.CheckDTCompatible(b.dtRoot, cfg.Node); err != nil {
			return 0, 0, err
		}
		base, err = imxutils.ReadDTRegBase(b.dtRoot, cfg.Node)
		if err != nil {
			b.logger.Warnf("cannot read reg property of %s, falling back to unit address: %v", cfg.Node, err)
			base, err = imxutils.NodeUnitAddress(cfg.Node)
			if err != nil {
				return 0, 0, err
			}
		}
	}

	clockHz = cfg.ClockFrequencyHz
	if clockHz == 0 && cfg.Node != "" {
		clockHz, err = imxutils.ReadDTClockFrequency(b.dtRoot, cfg.Node)
		if err != nil {
			return 0, 0, err
		}
	}
	if clockHz == 0 {
		return 0, 0, errors.Errorf("channel %q: counter clock rate unknown, set clock_frequency_hz", cfg.Name)
	}
	return base, clockHz, nil
}

func (b *imxBoard) reconfigureChannels(cfg *imxutils.Config) error {
	stillWanted := map[string]bool{}

	for _, chanCfg := range cfg.Channels {
		base, clockHz, err := b.resolveChannel(chanCfg)
		if err != nil {
			return err
		}

		polarity := imxpwm.PolarityNormal
		if chanCfg.Polarity == imxutils.PolarityInversed {
			polarity = imxpwm.PolarityInversed
		}

		if pin, ok := b.pins[chanCfg.Name]; ok {
			if pin.base == base && pin.clockHz == clockHz {
				pin.setPolarity(polarity)
				stillWanted[chanCfg.Name] = true
				continue
			}
			// Same name, different peripheral: rebuild the pin.
			if err := pin.channel.Close(); err != nil {
				b.logger.Warnf("closing channel %q: %v", chanCfg.Name, err)
			}
			delete(b.pins, chanCfg.Name)
		}

		if imxutils.KernelDriverBound(base) {
			return errors.Errorf(
				"kernel driver %s owns the PWM peripheral at %#x; set disable_kernel_driver and reboot",
				imxutils.KernelDriverName, base)
		}

		channel, err := b.open(base, clockHz, b.logger.Sublogger(chanCfg.Name))
		if err != nil {
			return errors.Wrapf(err, "opening channel %q", chanCfg.Name)
		}
		b.pins[chanCfg.Name] = &pwmPin{
			name:     chanCfg.Name,
			base:     base,
			clockHz:  clockHz,
			channel:  channel,
			polarity: polarity,
			logger:   b.logger,
		}
		stillWanted[chanCfg.Name] = true
	}

	var err error
	for name, pin := range b.pins {
		if stillWanted[name] {
			continue
		}
		err = multierr.Combine(err, pin.channel.Close())
		delete(b.pins, name)
	}
	return err
}

// configureKernelDriver maintains the modprobe blacklist entry for the
// kernel's own PWM driver according to board settings. A change only
// takes effect after reboot, so one is initiated the way other boot-time
// settings do it.
func (b *imxBoard) configureKernelDriver(cfg *imxutils.Config) error {
	if cfg.BoardSettings.DisableKernelDriver == nil {
		return nil
	}

	changed, err := imxutils.UpdateModuleBlacklist(
		imxutils.BlacklistPath, imxutils.KernelModuleName, *cfg.BoardSettings.DisableKernelDriver, b.logger)
	if err != nil {
		b.logger.Errorf("Automatic kernel driver configuration failed. Please manually blacklist %s: %v",
			imxutils.KernelModuleName, err)
		return nil
	}

	if changed {
		b.logger.Infof("Kernel driver blacklist updated. Initiating automatic reboot...")
		go imxutils.PerformReboot(b.logger)
	}
	return nil
}

// GPIOPinByName returns a configured PWM channel by name.
func (b *imxBoard) GPIOPinByName(pinName string) (board.GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pin, ok := b.pins[pinName]
	if !ok {
		return nil, errors.Errorf("no PWM channel named (%s)", pinName)
	}
	return pin, nil
}

// AnalogByName returns an analog pin by name.
func (b *imxBoard) AnalogByName(name string) (board.Analog, error) {
	return nil, errors.New("analogs not supported")
}

// AnalogNames returns the names of all known analog pins.
func (b *imxBoard) AnalogNames() []string {
	return []string{}
}

// DigitalInterruptByName returns a digital interrupt by name.
func (b *imxBoard) DigitalInterruptByName(name string) (board.DigitalInterrupt, error) {
	return nil, errors.New("digital interrupts not supported")
}

// DigitalInterruptNames returns the names of all known digital interrupts.
func (b *imxBoard) DigitalInterruptNames() []string {
	return nil
}

// StreamTicks starts a stream of digital interrupt ticks.
func (b *imxBoard) StreamTicks(ctx context.Context, interrupts []board.DigitalInterrupt, ch chan board.Tick,
	extra map[string]interface{},
) error {
	return errors.New("digital interrupts not supported")
}

func (b *imxBoard) SetPowerMode(ctx context.Context, mode pb.PowerMode, duration *time.Duration) error {
	return grpc.UnimplementedError
}

// Close attempts to close all channels of the board cleanly. Running
// outputs keep running; stopping them is a reconfiguration decision, not
// a shutdown one.
func (b *imxBoard) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed {
		b.logger.Info("Duplicate call to close i.MX PWM board detected, skipping")
		return nil
	}

	var err error
	for _, pin := range b.pins {
		err = multierr.Combine(err, pin.channel.Close())
	}
	b.pins = map[string]*pwmPin{}

	b.isClosed = true
	return err
}
