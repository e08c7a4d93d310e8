package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/audit"
	"github.com/terralens/audit-cli/internal/model"
	"github.com/terralens/audit-cli/internal/monitoring"
	"github.com/terralens/audit-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the audit HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Background health checks.
		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		mux := newMux(env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newMux(env *auditEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"zones":  env.Catalog.Len(),
		})
	})

	mux.HandleFunc("POST /audit", func(w http.ResponseWriter, r *http.Request) {
		var req audit.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if req.Lat == 0 && req.Lng == 0 {
			h, ok := audit.HotspotFor(req.StateCode)
			if !ok {
				http.Error(w, `{"error":"lat/lng or a known state_code is required"}`, http.StatusBadRequest)
				return
			}
			req.Lat, req.Lng = h.Lat, h.Lng
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)

		ew := audit.NewEventWriter(newFlushWriter(w))
		res, err := env.Orchestrator.Run(r.Context(), req, ew.Log)
		if err != nil {
			_ = ew.Write(audit.Event{Type: "error", Message: err.Error()})
			return
		}
		_ = ew.Write(audit.Event{Type: "result", Result: res})
	})

	mux.HandleFunc("GET /detections", func(w http.ResponseWriter, r *http.Request) {
		filter := store.DetectionFilter{
			Status: model.DetectionStatus(r.URL.Query().Get("status")),
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
				return
			}
			filter.Limit = n
		}

		dets, err := env.Store.ListDetections(r.Context(), filter)
		if err != nil {
			zap.L().Error("list detections failed", zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		if dets == nil {
			dets = []model.Detection{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":      len(dets),
			"detections": dets,
		})
	})

	return mux
}

// flushWriter flushes the response after every write so NDJSON events reach
// the client as they happen.
type flushWriter struct {
	w  http.ResponseWriter
	fl http.Flusher
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	fw := &flushWriter{w: w}
	if fl, ok := w.(http.Flusher); ok {
		fw.fl = fl
	}
	return fw
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if f.fl != nil {
		f.fl.Flush()
	}
	return n, err
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
