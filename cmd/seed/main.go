package main

import (
	"context"
	"errors"
	"os"

	"github.com/fatih/color"

	"booksdb/internal/app"
	"booksdb/internal/seeder"
)

func main() {
	command := app.CommandUp
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	application, err := app.New()
	if err != nil {
		fail(err, exitCode(err, seeder.ExitConfig))
	}

	err = application.Run(context.Background(), command)
	if shutdownErr := application.Shutdown(); err == nil && shutdownErr != nil {
		err = shutdownErr
	}
	if err != nil {
		fail(err, exitCode(err, seeder.ExitInternal))
	}
}

// exitCode falls back to def for errors that carry no datastore or dataset kind
func exitCode(err error, def int) int {
	if errors.Is(err, app.ErrUnknownCommand) {
		return seeder.ExitConfig
	}
	code := seeder.ExitCode(err)
	if code == seeder.ExitInternal {
		return def
	}
	return code
}

func fail(err error, code int) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "❌ %v\n", err)
	os.Exit(code)
}
