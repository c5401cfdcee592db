// Package imxservo implements a hobby servo driven by an i.MX PWM channel
package imxservo

/*
	This driver positions a servo motor connected to one of the board
	module's PWM channels. The servo is commanded with the standard
	500-2500us pulse train; the channel's frequency and duty cycle are
	owned by this component while it is in use.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/components/servo"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/operation"
	"go.viam.com/rdk/resource"

	imxutils "imx-pwm/utils"
)

// Model represents an i.MX PWM driven servo.
var Model = imxutils.IMXFamily.WithModel("pwm-servo")

var (
	holdTime                = 250 * time.Millisecond // time before a stop is sent when not holding
	servoDefaultMaxRotation = 180
	servoDefaultFreqHz      = uint(50)
)

// init registers a servo driven over a PWM channel.
func init() {
	resource.RegisterComponent(
		servo.API,
		Model,
		resource.Registration[servo.Servo, *ServoConfig]{
			Constructor: newServo,
		},
	)
}

func newServo(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (servo.Servo, error) {
	newConf, err := parseConfig(conf)
	if err != nil {
		return nil, err
	}

	if err := validateConfig(newConf); err != nil {
		return nil, err
	}

	b, err := board.FromDependencies(deps, newConf.BoardName)
	if err != nil {
		return nil, err
	}
	pin, err := b.GPIOPinByName(newConf.Pin)
	if err != nil {
		return nil, err
	}

	theServo := &pwmServo{
		Named:  conf.ResourceName().AsNamed(),
		logger: logger,
		pin:    pin,
		opMgr:  operation.NewSingleOperationManager(),
	}

	if err := theServo.validateAndSetConfiguration(newConf); err != nil {
		return nil, err
	}

	if err := setInitialPosition(ctx, theServo, newConf); err != nil {
		return nil, err
	}
	if err := handleHoldPosition(ctx, theServo, newConf); err != nil {
		return nil, err
	}

	return theServo, nil
}

// pwmServo implements a servo.Servo over a board.GPIOPin.
type pwmServo struct {
	resource.Named
	resource.AlwaysRebuild
	logger         logging.Logger
	pin            board.GPIOPin
	pinname        string
	min, max       uint32
	maxRotationDeg uint32
	opMgr          *operation.SingleOperationManager
	pwmFreqHz      uint

	mu         sync.Mutex
	pulseWidth int // last commanded pulsewidth in microseconds, 500-2500us is 0-180 degrees
	holdPos    bool
}

// Move moves the servo to the given angle (0-180 degrees by default).
// This will block until done or a new operation cancels this one.
func (s *pwmServo) Move(ctx context.Context, angle uint32, extra map[string]interface{}) error {
	ctx, done := s.opMgr.New(ctx)
	defer done()

	if s.min > 0 && angle < s.min {
		angle = s.min
	}
	if s.max > 0 && angle > s.max {
		angle = s.max
	}
	pulseWidth := angleToPulseWidth(int(angle), int(s.maxRotationDeg))
	if err := s.setServoPulseWidth(ctx, pulseWidth); err != nil {
		return err
	}

	s.mu.Lock()
	s.pulseWidth = pulseWidth
	s.mu.Unlock()

	// duration of pulsewidth send on pin while the servo moves
	utils.SelectContextOrWait(ctx, time.Duration(pulseWidth)*time.Microsecond)

	if !s.holdPos { // disable the servo once it has had time to reach the position
		time.Sleep(holdTime)
		return s.setServoPulseWidth(ctx, 0)
	}
	return nil
}

// Position returns the current set angle (degrees) of the servo.
func (s *pwmServo) Position(ctx context.Context, extra map[string]interface{}) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pulseWidth == 0 {
		return 0, errors.Errorf("servo on pin %s has not been commanded yet", s.pinname)
	}
	return uint32(pulseWidthToAngle(s.pulseWidth, int(s.maxRotationDeg))), nil
}

// Stop stops the servo. It is assumed the servo stops immediately.
func (s *pwmServo) Stop(ctx context.Context, extra map[string]interface{}) error {
	_, done := s.opMgr.New(ctx)
	defer done()
	return s.setServoPulseWidth(ctx, 0)
}

func (s *pwmServo) IsMoving(ctx context.Context) (bool, error) {
	s.mu.Lock()
	pulseWidth := s.pulseWidth
	s.mu.Unlock()
	if pulseWidth == 0 {
		return false, nil
	}
	return s.opMgr.OpRunning(), nil
}

// Close stops commanding the channel. The board owns the pin itself.
func (s *pwmServo) Close(ctx context.Context) error {
	return s.setServoPulseWidth(ctx, 0)
}
