package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger - хранилище, доступность которого проверяет /health
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	server *http.Server
}

func NewServer(addr string, store Pinger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           Handler(store),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler отдаёт /health (с проверкой БД) и /metrics
func Handler(store Pinger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			slog.Warn("Health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("DB UNAVAILABLE"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func (s *Server) Start() error {
	slog.Info("Health HTTP сервер запущен", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
