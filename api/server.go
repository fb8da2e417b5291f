/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     logrus request log carrying the request id
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the entry screens

ROUTE GROUPS:
  /api/items, /api/partners          Master data
  /api/bom, /api/monthly-prices      Monthly BOMs and prices
  /api/transactions                  Transaction log
  /api/inventory                     Stock and ledger
  /api/snapshots, /api/snapshot-lines, /api/closing   Monthly closing
  /api/scenarios                     Demo data
  /api/health                        Store reachability
  /*                                 Static files (frontend)

STATIC FILE SERVING:
  Serves the built frontend from web/dist/ when present, falling back to
  index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger()))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
			r.Get("/{id}", h.GetItem)
			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)
		})

		r.Route("/partners", func(r chi.Router) {
			r.Get("/", h.ListPartners)
			r.Post("/", h.CreatePartner)
			r.Get("/{id}", h.GetPartner)
			r.Put("/{id}", h.UpdatePartner)
			r.Delete("/{id}", h.DeletePartner)
		})

		r.Route("/bom", func(r chi.Router) {
			r.Get("/", h.ListBoms)
			r.Post("/", h.CreateBom)
			r.Post("/fix/{month}", h.FixBoms)
			r.Get("/{id}", h.GetBom)
			r.Put("/{id}", h.UpdateBom)
			r.Delete("/{id}", h.DeleteBom)
		})

		r.Route("/monthly-prices", func(r chi.Router) {
			r.Get("/", h.ListPrices)
			r.Post("/", h.CreatePrice)
			r.Get("/status/{month}", h.GetPriceStatus)
			r.Post("/fix/{month}", h.FixPrices)
			r.Put("/{id}", h.UpdatePrice)
			r.Delete("/{id}", h.DeletePrice)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CommitTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/{itemId}", h.GetInventory)
			r.Get("/{itemId}/ledger", h.GetLedger)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", h.ListSnapshots)
			r.Post("/", h.CreateSnapshot)
			r.Get("/{month}", h.GetSnapshot)
			r.Post("/{month}/close", h.CloseMonth)
		})
		r.Put("/snapshot-lines/{id}", h.UpdateSnapshotLine)
		r.Get("/closing/{month}/readiness", h.GetReadiness)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	staticDir := "./web/dist"
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		exe, _ := os.Executable()
		staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
	}

	if _, err := os.Stat(staticDir); err == nil {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			fullPath := filepath.Join(staticDir, r.URL.Path)
			if _, err := os.Stat(fullPath); os.IsNotExist(err) {
				http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	} else {
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>ERP Inventory Ledger</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>ERP Inventory Ledger API</h1>
<p>The frontend is not built.</p>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/items">/api/items</a> - Items</li>
<li><a href="/api/transactions">/api/transactions</a> - Transaction log</li>
<li><a href="/api/snapshots">/api/snapshots</a> - Monthly snapshots</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`))
		})
	}

	return r
}

// requestLogger logs one line per request once the response is written.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.WithFields(logrus.Fields{
					"request_id":  middleware.GetReqID(r.Context()),
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      ww.Status(),
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(start).Milliseconds(),
				}).Info("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
