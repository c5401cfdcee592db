// Package imxutils contains configuration types and host helpers shared by
// the board and servo models.
package imxutils

import (
	"fmt"
	"strconv"
	"strings"

	"go.viam.com/rdk/resource"
)

// IMXFamily is the model family for the i.MX PWM module.
var IMXFamily = resource.NewModelFamily("viam", "imx")

// DefaultPWMFreqHz is used when a pin is driven before any frequency has
// been set on it.
const DefaultPWMFreqHz = 1000

// Polarity names accepted in channel configuration.
const (
	PolarityNormal   = "normal"
	PolarityInversed = "inversed"
)

// BoardSettings contains board-level configuration options.
type BoardSettings struct {
	// DisableKernelDriver blacklists the kernel's own driver for the PWM
	// peripheral so it cannot rebind after a reboot. The two drivers
	// cannot share a channel.
	DisableKernelDriver *bool `json:"disable_kernel_driver,omitempty"`
}

// ChannelConfig describes one PWM peripheral instance. The register base
// can be given directly or discovered from a device-tree node; the node
// form also allows a compatibility check against the live tree.
type ChannelConfig struct {
	Name string `json:"name"`
	// Node is a device-tree node path relative to the tree root, e.g.
	// "soc@0/bus@30000000/pwm@30660000".
	Node string `json:"node,omitempty"`
	// RegisterBase is the physical base address of the register block as
	// a hex string, e.g. "0x30660000". Overrides the node's reg entry.
	RegisterBase string `json:"register_base,omitempty"`
	// ClockFrequencyHz is the rate of the counter (per) clock. Required
	// unless the device tree provides a clock-frequency property.
	ClockFrequencyHz uint64 `json:"clock_frequency_hz,omitempty"`
	// Polarity is "normal" (default) or "inversed".
	Polarity string `json:"polarity,omitempty"`
}

// A Config describes the configuration of a board and its PWM channels.
type Config struct {
	Channels      []ChannelConfig `json:"channels,omitempty"`
	BoardSettings BoardSettings   `json:"board_settings,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) ([]string, []string, error) {
	seen := map[string]bool{}
	for idx, c := range conf.Channels {
		if err := c.Validate(fmt.Sprintf("%s.%s.%d", path, "channels", idx)); err != nil {
			return nil, nil, err
		}
		if seen[c.Name] {
			return nil, nil, fmt.Errorf("duplicate channel name %q", c.Name)
		}
		seen[c.Name] = true
	}
	return nil, nil, nil
}

// Validate ensures the channel config is valid.
func (conf *ChannelConfig) Validate(path string) error {
	if conf.Name == "" {
		return resource.NewConfigValidationFieldRequiredError(path, "name")
	}
	if conf.Node == "" && conf.RegisterBase == "" {
		return resource.NewConfigValidationError(path,
			fmt.Errorf("channel %q needs a node or a register_base", conf.Name))
	}
	if conf.RegisterBase != "" {
		if _, err := ParseRegisterBase(conf.RegisterBase); err != nil {
			return resource.NewConfigValidationError(path, err)
		}
	}
	switch conf.Polarity {
	case "", PolarityNormal, PolarityInversed:
	default:
		return resource.NewConfigValidationError(path,
			fmt.Errorf("invalid polarity %q, supported values are %s and %s",
				conf.Polarity, PolarityNormal, PolarityInversed))
	}
	return nil
}

// ParseRegisterBase parses a hex register base address, with or without a
// leading 0x.
func ParseRegisterBase(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(s), "0x")
	base, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid register base %q: %w", s, err)
	}
	return base, nil
}
