package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sheetmap/sheetmap/internal/render"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the map document for embedding",
	Long: `Serves the rendered map document over HTTP. Each request to / runs the
pipeline fresh; overlapping requests run independently. SIGHUP triggers an
eager background run to warm the geocode cache.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			result, err := e.Pipeline.Run(req.Context())
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err != nil {
				zap.L().Error("serve: run failed", zap.Error(err))
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write(render.StaticErrorDocument(cfg.Embed.ContainerID))
				return
			}
			_, _ = w.Write(result.Document)
		})

		r.Get("/api/locations", func(w http.ResponseWriter, req *http.Request) {
			result, err := e.Pipeline.Resolve(req.Context())
			w.Header().Set("Content-Type", "application/json")
			if err != nil {
				zap.L().Error("serve: resolve failed", zap.Error(err))
				w.WriteHeader(http.StatusBadGateway)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unable to load locations"})
				return
			}
			_ = json.NewEncoder(w).Encode(result)
		})

		// Re-trigger signal: SIGHUP warms the geocode cache with a fresh run.
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		go func() {
			for range hup {
				zap.L().Info("serve: SIGHUP received, re-running pipeline")
				if _, err := e.Pipeline.Run(ctx); err != nil {
					zap.L().Error("serve: background run failed", zap.Error(err))
				}
			}
		}()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("serve: shutting down")
			signal.Stop(hup)
			close(hup)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("serve: starting", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve: listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
