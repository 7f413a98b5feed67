package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdobrica/Hibiki/common/environment"
	"github.com/bdobrica/Hibiki/internal/hibiki/app"
	"github.com/bdobrica/Hibiki/internal/hibiki/observability"
	"github.com/bdobrica/Hibiki/internal/hibiki/scheduler"
)

func main() {
	if err := environment.LoadFiles(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	observability.Setup(os.Stderr,
		environment.StringOr("HIBIKI_LOG_LEVEL", "info"),
		environment.StringOr("HIBIKI_LOG_FORMAT", "text"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(loadConfig()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables
func loadConfig() *app.Config {
	owner := environment.StringOr("HIBIKI_OWNER", "owner")
	return &app.Config{
		DatabasePath:      environment.StringOr("HIBIKI_DB_PATH", "./hibiki.db"),
		Owner:             owner,
		Authorized:        environment.ListOr("HIBIKI_AUTHORIZED", []string{owner}),
		Locale:            environment.StringOr("HIBIKI_LOCALE", "uz"),
		Tick:              environment.DurationOr("HIBIKI_TICK", scheduler.DefaultTick),
		InboxDir:          environment.StringOr("HIBIKI_INBOX", ""),
		LexiconPath:       environment.StringOr("HIBIKI_LEXICON", ""),
		ResponsesPath:     environment.StringOr("HIBIKI_RESPONSES", ""),
		Preauthorized:     environment.ListOr("HIBIKI_PREAUTHORIZED", nil),
		ProtocolStepDelay: environment.DurationOr("HIBIKI_PROTOCOL_STEP_DELAY", app.DefaultProtocolStepDelay),
		DryRun:            environment.BoolOr("HIBIKI_DRY_RUN", true),
	}
}
