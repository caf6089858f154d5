// Command local-server runs the document pipeline function on a local port.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/Lllllllleong/kelurahandocs/internal/app"
	"github.com/Lllllllleong/kelurahandocs/internal/config"
)

func main() {
	port := pflag.String("port", "8080", "Port to listen on (overrides PORT)")
	envFile := pflag.String("env-file", ".env", "Environment file loaded before configuration")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("Failed to load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	fn, err := app.NewDocumentFunction(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Critical error during initialization", "error", err)
		os.Exit(1)
	}
	defer fn.Close()

	functions.HTTP("GenerateDocument", fn.ServeHTTP)

	if p := os.Getenv("PORT"); p != "" && !pflag.CommandLine.Changed("port") {
		*port = p
	}
	logger.Info("Starting local server.", "port", *port)
	if err := funcframework.Start(*port); err != nil {
		logger.Error("funcframework.Start failed", "error", err)
		fn.Close()
		os.Exit(1)
	}
}
