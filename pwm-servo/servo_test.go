package imxservo

import (
	"context"
	"testing"

	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/components/servo"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/testutils/inject"
	"go.viam.com/test"
)

// fakePin records the PWM calls the servo makes.
type fakePin struct {
	board.GPIOPin
	freqHz  uint
	dutyPct float64
}

func (p *fakePin) SetPWM(ctx context.Context, dutyCyclePct float64, extra map[string]interface{}) error {
	p.dutyPct = dutyCyclePct
	return nil
}

func (p *fakePin) SetPWMFreq(ctx context.Context, freqHz uint, extra map[string]interface{}) error {
	p.freqHz = freqHz
	return nil
}

func testDeps(pin *fakePin) resource.Dependencies {
	b := inject.NewBoard("pwm-board")
	b.GPIOPinByNameFunc = func(name string) (board.GPIOPin, error) {
		return pin, nil
	}
	return resource.Dependencies{board.Named("pwm-board"): b}
}

func buildServo(t *testing.T, conf *ServoConfig) (servo.Servo, *fakePin, error) {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	servoReg, ok := resource.LookupRegistration(servo.API, Model)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, servoReg, test.ShouldNotBeNil)

	pin := &fakePin{}
	servoInt, err := servoReg.Constructor(
		ctx,
		testDeps(pin),
		resource.Config{
			Name:                "servo",
			ConvertedAttributes: conf,
		},
		logger,
	)
	if err != nil {
		return nil, pin, err
	}
	return servoInt.(servo.Servo), pin, nil
}

func TestServoConfigErrors(t *testing.T) {
	_, _, err := buildServo(t, &ServoConfig{BoardName: "pwm-board"})
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = buildServo(t, &ServoConfig{Pin: "pwm1"})
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = buildServo(t, &ServoConfig{BoardName: "pwm-board", Pin: "pwm1", MaxRotation: 90})
	test.That(t, err.Error(), test.ShouldContainSubstring, "maxRotation")
}

func TestServoDefaults(t *testing.T) {
	ctx := context.Background()
	servo1, pin, err := buildServo(t, &ServoConfig{BoardName: "pwm-board", Pin: "pwm1"})
	test.That(t, err, test.ShouldBeNil)

	// Starts at 90 degrees on a 50 Hz pulse train.
	pos, err := servo1.Position(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 90)
	test.That(t, pin.freqHz, test.ShouldEqual, 50)
	test.That(t, pin.dutyPct, test.ShouldAlmostEqual, 0.075, 1e-9)
}

func TestServoStartPos(t *testing.T) {
	ctx := context.Background()
	initPos := 33.0
	servo1, _, err := buildServo(t, &ServoConfig{BoardName: "pwm-board", Pin: "pwm1", StartPos: &initPos})
	test.That(t, err, test.ShouldBeNil)

	pos, err := servo1.Position(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 33)
}

func TestServoMove(t *testing.T) {
	ctx := context.Background()
	servo1, pin, err := buildServo(t, &ServoConfig{BoardName: "pwm-board", Pin: "pwm1"})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, servo1.Move(ctx, 180, nil), test.ShouldBeNil)
	pos, err := servo1.Position(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 180)
	// 2500us at 50 Hz.
	test.That(t, pin.dutyPct, test.ShouldAlmostEqual, 0.125, 1e-9)

	test.That(t, servo1.Move(ctx, 0, nil), test.ShouldBeNil)
	pos, err = servo1.Position(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 0)
	test.That(t, pin.dutyPct, test.ShouldAlmostEqual, 0.025, 1e-9)
}

func TestServoMoveClamped(t *testing.T) {
	ctx := context.Background()
	servo1, _, err := buildServo(t, &ServoConfig{BoardName: "pwm-board", Pin: "pwm1", Min: 30, Max: 150})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, servo1.Move(ctx, 0, nil), test.ShouldBeNil)
	pos, err := servo1.Position(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 30)

	test.That(t, servo1.Move(ctx, 180, nil), test.ShouldBeNil)
	pos, err = servo1.Position(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 150)
}

func TestServoStopReleasesOutput(t *testing.T) {
	ctx := context.Background()
	servo1, pin, err := buildServo(t, &ServoConfig{BoardName: "pwm-board", Pin: "pwm1"})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, servo1.Move(ctx, 45, nil), test.ShouldBeNil)
	test.That(t, servo1.Stop(ctx, nil), test.ShouldBeNil)
	test.That(t, pin.dutyPct, test.ShouldEqual, 0.0)

	// The last commanded position survives a stop.
	pos, err := servo1.Position(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 45)

	moving, err := servo1.IsMoving(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moving, test.ShouldBeFalse)
}

func TestServoNoHold(t *testing.T) {
	ctx := context.Background()
	hold := false
	servo1, pin, err := buildServo(t, &ServoConfig{BoardName: "pwm-board", Pin: "pwm1", HoldPos: &hold})
	test.That(t, err, test.ShouldBeNil)

	// With hold disabled the output idles after construction.
	test.That(t, pin.dutyPct, test.ShouldEqual, 0.0)

	test.That(t, servo1.Move(ctx, 90, nil), test.ShouldBeNil)
	// And again after a move completes.
	test.That(t, pin.dutyPct, test.ShouldEqual, 0.0)
}

func TestPulseWidthConversions(t *testing.T) {
	test.That(t, angleToPulseWidth(0, 180), test.ShouldEqual, 500)
	test.That(t, angleToPulseWidth(90, 180), test.ShouldEqual, 1500)
	test.That(t, angleToPulseWidth(180, 180), test.ShouldEqual, 2500)

	test.That(t, pulseWidthToAngle(500, 180), test.ShouldEqual, 0)
	test.That(t, pulseWidthToAngle(1500, 180), test.ShouldEqual, 90)
	test.That(t, pulseWidthToAngle(2500, 180), test.ShouldEqual, 180)
}
