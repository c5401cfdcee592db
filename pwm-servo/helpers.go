package imxservo

/*
	Helper functions for the PWM servo.
*/

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/rdk/resource"
)

// Validate and set pwmServo fields based on the configuration.
func (s *pwmServo) validateAndSetConfiguration(conf *ServoConfig) error {
	if conf.Min >= 0 {
		s.min = uint32(conf.Min)
	}

	s.max = 180
	if conf.Max > 0 {
		s.max = uint32(conf.Max)
	}
	s.maxRotationDeg = uint32(conf.MaxRotation)
	if s.maxRotationDeg == 0 {
		s.maxRotationDeg = uint32(servoDefaultMaxRotation)
	}
	if s.maxRotationDeg < s.min {
		return errors.New("maxRotation is less than minimum")
	}
	if s.maxRotationDeg < s.max {
		return errors.New("maxRotation is less than maximum")
	}

	s.pwmFreqHz = servoDefaultFreqHz
	if conf.Freq > 0 {
		s.pwmFreqHz = uint(conf.Freq)
	}

	s.pinname = conf.Pin

	return nil
}

// setInitialPosition sets the initial position of the servo based on the provided configuration.
func setInitialPosition(ctx context.Context, theServo *pwmServo, newConf *ServoConfig) error {
	position := 1500 // a 1500us pulsewidth positions the servo at 90 degrees
	if newConf.StartPos != nil {
		position = angleToPulseWidth(int(*newConf.StartPos), int(theServo.maxRotationDeg))
	}
	if err := theServo.setServoPulseWidth(ctx, position); err != nil {
		return err
	}
	theServo.pulseWidth = position
	return nil
}

// handleHoldPosition configures the hold position setting for the servo.
func handleHoldPosition(ctx context.Context, theServo *pwmServo, newConf *ServoConfig) error {
	if newConf.HoldPos == nil || *newConf.HoldPos {
		// Hold the servo position
		theServo.holdPos = true
		return nil
	}
	// Release the servo position and disable the channel
	theServo.holdPos = false
	return theServo.setServoPulseWidth(ctx, 0)
}

// setServoPulseWidth programs the channel for the given pulsewidth in
// microseconds. Zero releases the output.
func (s *pwmServo) setServoPulseWidth(ctx context.Context, pulseWidth int) error {
	if pulseWidth == 0 {
		return s.pin.SetPWM(ctx, 0, nil)
	}
	if err := s.pin.SetPWMFreq(ctx, s.pwmFreqHz, nil); err != nil {
		return errors.Wrapf(err, "servo set pwm frequency on pin %s failed", s.pinname)
	}
	dutyCyclePct := float64(pulseWidth) * float64(s.pwmFreqHz) / 1e6
	if dutyCyclePct > 1 {
		return errors.Errorf("servo on pin %s trying to reach out of range position", s.pinname)
	}
	if err := s.pin.SetPWM(ctx, dutyCyclePct, nil); err != nil {
		return errors.Wrapf(err, "servo set pwm duty cycle on pin %s failed", s.pinname)
	}
	return nil
}

// parseConfig parses the provided configuration into a ServoConfig.
func parseConfig(conf resource.Config) (*ServoConfig, error) {
	newConf, err := resource.NativeConfig[*ServoConfig](conf)
	if err != nil {
		return nil, err
	}
	return newConf, nil
}

// validateConfig validates the provided ServoConfig.
func validateConfig(newConf *ServoConfig) error {
	if newConf.Pin == "" {
		return errors.New("need pin for pwm servo")
	}
	if newConf.BoardName == "" {
		return errors.New("need the name of the board")
	}
	return nil
}

// angleToPulseWidth changes the input angle in degrees
// into the corresponding pulsewidth value in microsecond
func angleToPulseWidth(angle, maxRotation int) int {
	pulseWidth := 500 + (2000 * angle / maxRotation)
	return pulseWidth
}

// pulseWidthToAngle changes the pulsewidth value in microsecond
// to the corresponding angle in degrees
func pulseWidthToAngle(pulseWidth, maxRotation int) int {
	angle := maxRotation * (pulseWidth + 1 - 500) / 2000
	return angle
}
