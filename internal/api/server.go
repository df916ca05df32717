package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"newsroom-ledger/internal/ledger"
)

// Server - HTTP-доступ к операциям учёта
type Server struct {
	svc     *ledger.Service
	auth    *Authenticator
	origins []string
	loc     *time.Location
	server  *http.Server
}

func NewServer(addr string, svc *ledger.Service, auth *Authenticator, origins []string) *Server {
	s := &Server{
		svc:     svc,
		auth:    auth,
		origins: origins,
		loc:     svc.Options().Location,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"http://*", "https://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.listOrders)
			r.Post("/", s.createOrder)
			r.Get("/{id}", s.getOrder)
			r.Patch("/{id}", s.updateOrder)
			r.Delete("/{id}", s.deleteOrder)
			r.Post("/{id}/payments", s.addPayment)
			r.Post("/{id}/employee-payments", s.addEmployeePayment)
		})
		r.Delete("/payments/{id}", s.deletePayment)
		r.Delete("/employee-payments/{id}", s.deleteEmployeePayment)

		r.Get("/transactions", s.listTransactions)
		r.Post("/transactions", s.createTransaction)
		r.Delete("/transactions/{id}", s.deleteTransaction)
		r.Get("/balance", s.balance)
		r.Get("/export.xlsx", s.exportLedger)

		r.Get("/employees/summary", s.employeeSummary)
		r.Post("/payouts", s.payAllForEmployee)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.listNotifications)
			r.Post("/", s.createNotification)
			r.Get("/{id}", s.getNotification)
			r.Patch("/{id}", s.updateNotification)
			r.Delete("/{id}", s.deleteNotification)
			r.Post("/{id}/sends", s.recordSend)
			r.Post("/{id}/history/toggle", s.toggleHistoryPayout)
			r.Post("/{id}/archive", s.toggleArchive)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond(w, nil, ledger.ErrNotFoundf("no route %s %s", r.Method, r.URL.Path))
	})
	return r
}

func (s *Server) Start() error {
	slog.Info("API HTTP сервер запущен", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
