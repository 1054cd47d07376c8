// Command predictor serves POST /predict, classifying a telemetry payload as
// bot (0) or human (1).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"botcheck/internal/classifier"
	"botcheck/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	mux := http.NewServeMux()
	mux.Handle("/predict", predictHandler(classifier.Model{HumanThreshold: cfg.HumanThreshold}, logger))

	srv := &http.Server{Addr: cfg.PredictorAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("predictor listening", "addr", cfg.PredictorAddr, "human_threshold", cfg.HumanThreshold)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("predictor stopped")
}

func predictHandler(model classifier.Model, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Only POST method is allowed"})
			return
		}

		var in classifier.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			logger.Warn("decode payload", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "TypeError: " + err.Error()})
			return
		}

		features, err := classifier.Extract(in)
		if err != nil {
			logger.Warn("extract features", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ValueError: " + err.Error()})
			return
		}

		prediction := model.Predict(features)
		logger.Debug("prediction",
			"signals", features.Count(),
			"average_mouse_movement", features.AverageMouseMovement,
			"prediction", prediction,
		)
		writeJSON(w, http.StatusOK, map[string]int{"prediction": prediction})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
