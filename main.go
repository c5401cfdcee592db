package main

import (
	"context"

	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/components/servo"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/utils"

	imxboard "imx-pwm/board"
	imxservo "imx-pwm/pwm-servo"
)

func main() {
	utils.ContextualMain(mainWithArgs, module.NewLoggerFromArgs("imx-pwm"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	module, err := module.NewModuleFromArgs(ctx, logger)
	if err != nil {
		return err
	}

	err = module.AddModelFromRegistry(ctx, board.API, imxboard.Model)
	if err != nil {
		return err
	}

	err = module.AddModelFromRegistry(ctx, servo.API, imxservo.Model)
	if err != nil {
		return err
	}

	err = module.Start(ctx)
	defer module.Close(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
