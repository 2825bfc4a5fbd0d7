package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/solvencyflow/internal/handlers"
	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/services"
)

var (
	intakeInstance *services.IntakeFunction
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleIntake", handlers.WithCORS(http.HandlerFunc(handleIntake)).ServeHTTP)
	// Uploads to the intake bucket start an application without an HTTP call.
	functions.CloudEvent("HandleUpload", handleUpload)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := funcframework.Start(port); err != nil {
		slog.Error("Function framework exited", "error", err)
		os.Exit(1)
	}
}

func instance() (*services.IntakeFunction, error) {
	once.Do(func() {
		intakeInstance, initErr = services.NewIntake(context.Background())
	})
	return intakeInstance, initErr
}

func handleIntake(w http.ResponseWriter, r *http.Request) {
	f, err := instance()
	if err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		handlers.WriteJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to initialize service"})
		return
	}
	handlers.Intake(f).ServeHTTP(w, r)
}

func handleUpload(ctx context.Context, e cloudevents.Event) error {
	f, err := instance()
	if err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	res, err := f.ProcessUpload(ctx, gcsEvent)
	if errors.Is(err, services.ErrValidation) {
		// Retrying cannot fix the event; acknowledge it.
		slog.Warn("Ignoring upload event.", "error", err, "bucket", gcsEvent.Bucket, "object", gcsEvent.Name)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("Upload accepted.", "documentId", res.DocumentID, "executionId", res.ExecutionID, "object", gcsEvent.Name)
	return nil
}
