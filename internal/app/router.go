package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Danu-Nur/lumbung-sub003/internal/adjustment"
	"github.com/Danu-Nur/lumbung-sub003/internal/importer"
	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/opname"
	"github.com/Danu-Nur/lumbung-sub003/internal/receiving"
	"github.com/Danu-Nur/lumbung-sub003/internal/transfer"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	LedgerHandler     *ledger.Handler
	AdjustmentHandler *adjustment.Handler
	TransferHandler   *transfer.Handler
	OpnameHandler     *opname.Handler
	ReceivingHandler  *receiving.Handler
	ImporterHandler   *importer.Handler
}

// NewRouter constructs the chi.Router with all stock workflows mounted.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/stock", params.LedgerHandler.MountRoutes)
	r.Route("/adjustments", params.AdjustmentHandler.MountRoutes)
	r.Route("/transfers", params.TransferHandler.MountRoutes)
	r.Route("/opnames", params.OpnameHandler.MountRoutes)
	r.Route("/purchase-orders", params.ReceivingHandler.MountRoutes)
	r.Route("/imports", params.ImporterHandler.MountRoutes)

	return r
}
