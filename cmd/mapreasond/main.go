// Command mapreasond serves the query-answering pipeline over HTTP.
// Configuration comes from MAPREASON_* environment variables; see
// core.LoadConfigFromEnv for the full list.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mapreason/mapreason"
	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/telemetry"
)

func main() {
	config, err := core.LoadConfigFromEnv()
	if err != nil {
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := core.NewProductionLogger("mapreasond", config.LogLevel)

	provider, err := telemetry.NewOTelProvider("mapreasond")
	if err != nil {
		logger.Warn("Telemetry disabled", map[string]interface{}{
			"operation": "startup",
			"error":     err.Error(),
		})
	}

	opts := []mapreason.Option{
		mapreason.WithConfig(config),
		mapreason.WithLogger(logger),
	}
	if provider != nil {
		opts = append(opts, mapreason.WithTelemetry(provider))
	}

	pipeline, err := mapreason.New(opts...)
	if err != nil {
		logger.Error("Failed to assemble pipeline", map[string]interface{}{
			"operation": "startup",
			"error":     err.Error(),
		})
		os.Exit(1)
	}
	defer func() { _ = pipeline.Close() }()

	server := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           newHandler(pipeline, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Listening", map[string]interface{}{
			"operation": "startup",
			"addr":      config.ListenAddr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", map[string]interface{}{
				"operation": "serve",
				"error":     err.Error(),
			})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown incomplete", map[string]interface{}{
			"operation": "shutdown",
			"error":     err.Error(),
		})
	}
	if provider != nil {
		_ = provider.Shutdown(shutdownCtx)
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newHandler(pipeline *mapreason.Pipeline, logger core.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, pipeline.Metrics())
	})

	mux.HandleFunc("/api/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST required"})
			return
		}

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
			return
		}

		record, err := pipeline.Ask(r.Context(), req.Query)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, core.ErrEmptyQuery) || errors.Is(err, core.ErrInvalidQuery) {
				status = http.StatusBadRequest
			}
			logger.Warn("Query rejected", map[string]interface{}{
				"operation": "handle_query",
				"error":     err.Error(),
			})
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, record)
	})

	mux.HandleFunc("/api/records", func(w http.ResponseWriter, r *http.Request) {
		records, err := pipeline.Records().Recent(r.Context(), 20)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, records)
	})

	mux.HandleFunc("/api/records/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/records/")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "record ID required"})
			return
		}

		record, err := pipeline.Records().Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, core.ErrRecordNotFound) {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "record not found"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, record)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
