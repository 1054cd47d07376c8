package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"botcheck/internal/config"
	"botcheck/internal/data"
	"botcheck/internal/predict"
	"botcheck/internal/sink"
	"botcheck/internal/verdict"
)

const storeDataRoute = "/store-data"

// defaultPublishTimeout bounds the best-effort verdict publish.
const defaultPublishTimeout = time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	records, err := sink.OpenFile(cfg.SinkPath)
	if err != nil {
		logger.Error("open sink", "error", err)
		os.Exit(1)
	}
	defer records.Close()

	deps := handlerDeps{
		sink:           records,
		predictor:      predict.NewClient(cfg.PredictorURL, nil),
		maxBody:        cfg.MaxBodyBytes,
		publishTimeout: cfg.PublishTimeout,
		logger:         logger,
	}

	if cfg.RedisURL != "" {
		rdb, err := verdict.Connect(cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		deps.publisher = verdict.NewPublisher(rdb, cfg.VerdictQueue)
		logger.Info("publishing verdicts", "queue", cfg.VerdictQueue)
	}

	mux := http.NewServeMux()
	mux.Handle(storeDataRoute, storeDataHandler(deps))

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: withMiddleware(mux, cfg.AllowedOrigins(), logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr, "sink", cfg.SinkPath, "predictor", cfg.PredictorURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

type predictor interface {
	Predict(ctx context.Context, body []byte) (float64, error)
}

type publisher interface {
	Publish(ctx context.Context, traceID string, rec data.Record, prediction float64, label string) (verdict.Event, error)
}

type handlerDeps struct {
	sink           sink.Sink
	predictor      predictor
	publisher      publisher // nil when verdict publishing is disabled
	maxBody        int64
	publishTimeout time.Duration
	logger         *slog.Logger
}

// storeDataResponse is the success body of POST /store-data.
type storeDataResponse struct {
	Message    string `json:"message"`
	Prediction string `json:"prediction"`
}

func storeDataHandler(d handlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeText(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
			return
		}
		requestID := requestIDFrom(r.Context())
		logger := d.logger.With("request_id", requestID)

		// 1. Read and parse the payload
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				logger.Warn("payload too large", "limit", tooLarge.Limit)
				writeText(w, http.StatusRequestEntityTooLarge, "Payload too large")
				return
			}
			logger.Error("read body", "error", err)
			writeText(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		payload, err := data.ParsePayload(body)
		if err != nil {
			logger.Warn("parse payload", "error", err)
			writeText(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		logger.Debug("received parameters", "fields", len(payload.Fields))

		// A caller that goes away does not stop the append or the prediction call.
		ctx := context.WithoutCancel(r.Context())

		// 2. Persist the derived record
		rec := data.NewRecord(payload)
		if err := d.sink.Append(ctx, rec); err != nil {
			logger.Error("error writing to sink", "error", err)
			writeText(w, http.StatusInternalServerError, "Error saving data")
			return
		}
		logger.Info("record appended", "record", rec.Fields())

		// 3. Classify
		prediction, err := d.predictor.Predict(ctx, payload.Raw)
		if err != nil {
			logger.Error("error getting prediction", "error", err)
			writeText(w, http.StatusInternalServerError, "Error predicting data")
			return
		}
		label := predict.Label(prediction)
		logger.Info("prediction received", "prediction", prediction, "label", label)

		if d.publisher != nil {
			d.publishVerdict(ctx, logger, requestID, rec, prediction, label)
		}

		// 4. Respond
		writeJSON(w, http.StatusOK, storeDataResponse{
			Message:    "Data saved successfully",
			Prediction: label,
		})
	}
}

// publishVerdict pushes the verdict under a short deadline so a slow or
// unreachable Redis cannot hold up the response. Failures are only logged.
func (d handlerDeps) publishVerdict(ctx context.Context, logger *slog.Logger, traceID string, rec data.Record, prediction float64, label string) {
	timeout := d.publishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ev, err := d.publisher.Publish(ctx, traceID, rec, prediction, label)
	if err != nil {
		logger.Error("failed to publish verdict", "error", err)
		return
	}
	logger.Debug("verdict published", "event_id", ev.RequestID)
}
