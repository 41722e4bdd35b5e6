package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bourracho/chat-registry/internal/cmd/inspect"
	"github.com/bourracho/chat-registry/internal/cmd/serve"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	envFile := os.Getenv("BOURRACHO_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	// Existing environment variables take precedence over the file.
	_ = godotenv.Load(envFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "bourracho",
		Usage: "Chat conversation registry",
		Commands: []*cli.Command{
			serve.Command(),
			inspect.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
