package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/solvencyflow/internal/handlers"
	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/services"
)

var (
	decisionInstance *services.DecisionFunction
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleFinalDecision", handleFinalDecision)
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

func handleFinalDecision(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		decisionInstance, initErr = services.NewDecision(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		handlers.WriteJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to initialize service"})
		return
	}
	handlers.Decision(decisionInstance).ServeHTTP(w, r)
}
