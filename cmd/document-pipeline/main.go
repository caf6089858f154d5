package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/kelurahandocs/internal/app"
	"github.com/Lllllllleong/kelurahandocs/internal/config"
)

var (
	documentFunction *app.DocumentFunction
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("GenerateDocument", generateDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func generateDocument(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
		slog.SetDefault(logger)
		documentFunction, initErr = app.NewDocumentFunction(context.Background(), cfg, logger)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	documentFunction.ServeHTTP(w, r)
}
