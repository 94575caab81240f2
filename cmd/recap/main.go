package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/temirov/recap/internal/cli"
	"github.com/temirov/recap/internal/utils"
)

// main is the entry point for the recap command.
func main() {
	loggerInstance, loggerInitializationError := utils.NewApplicationLogger(false)
	if loggerInitializationError != nil {
		panic(fmt.Errorf(utils.LoggerInitializationFailedMessageFormat, loggerInitializationError))
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	applicationExecutionError := cli.Execute(ctx)
	stop()
	if applicationExecutionError == nil {
		_ = loggerInstance.Sync()
		return
	}
	exitCode := 1
	var exitError *cli.ExitError
	if errors.As(applicationExecutionError, &exitError) {
		exitCode = exitError.Code
		if exitError.Err == nil {
			_ = loggerInstance.Sync()
			os.Exit(exitCode)
		}
	}
	loggerInstance.Error(utils.ApplicationExecutionFailedMessage, zap.Error(applicationExecutionError))
	_ = loggerInstance.Sync()
	os.Exit(exitCode)
}
