package imxutils

import (
	"testing"

	"go.viam.com/test"
)

func TestChannelConfigValidate(t *testing.T) {
	testCases := []struct {
		name    string
		config  ChannelConfig
		errText string
	}{
		{
			name:   "register_base_only",
			config: ChannelConfig{Name: "pwm1", RegisterBase: "0x30660000", ClockFrequencyHz: 66_000_000},
		},
		{
			name:   "node_only",
			config: ChannelConfig{Name: "pwm1", Node: "soc@0/bus@30000000/pwm@30660000"},
		},
		{
			name:   "inversed_polarity",
			config: ChannelConfig{Name: "pwm1", RegisterBase: "30660000", Polarity: PolarityInversed},
		},
		{
			name:    "missing_name",
			config:  ChannelConfig{RegisterBase: "0x30660000"},
			errText: "name",
		},
		{
			name:    "missing_address",
			config:  ChannelConfig{Name: "pwm1"},
			errText: "node or a register_base",
		},
		{
			name:    "bad_register_base",
			config:  ChannelConfig{Name: "pwm1", RegisterBase: "0xnope"},
			errText: "invalid register base",
		},
		{
			name:    "bad_polarity",
			config:  ChannelConfig{Name: "pwm1", RegisterBase: "0x30660000", Polarity: "backwards"},
			errText: "invalid polarity",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate("channels.0")
			if tc.errText == "" {
				test.That(t, err, test.ShouldBeNil)
			} else {
				test.That(t, err, test.ShouldNotBeNil)
				test.That(t, err.Error(), test.ShouldContainSubstring, tc.errText)
			}
		})
	}
}

func TestConfigValidateDuplicateNames(t *testing.T) {
	conf := Config{Channels: []ChannelConfig{
		{Name: "pwm1", RegisterBase: "0x30660000"},
		{Name: "pwm1", RegisterBase: "0x30670000"},
	}}
	_, _, err := conf.Validate("")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "duplicate channel name")
}

func TestParseRegisterBase(t *testing.T) {
	base, err := ParseRegisterBase("0x30660000")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, base, test.ShouldEqual, uint64(0x30660000))

	base, err = ParseRegisterBase("30660000")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, base, test.ShouldEqual, uint64(0x30660000))

	_, err = ParseRegisterBase("")
	test.That(t, err, test.ShouldNotBeNil)
}
