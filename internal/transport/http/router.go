package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Catalog serves the read endpoints.
type Catalog interface {
	EventReader
	PurchaseLister
}

// Services groups what the router serves. Health may be nil.
type Services struct {
	Catalog  Catalog
	Purchase Purchaser
	Admin    EventCreator
	Health   HealthCheck
}

// NewRouter wires every route plus recovery, request logging and CORS.
func NewRouter(svc Services, corsOrigins []string, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = NotFoundHandler()
	r.MethodNotAllowedHandler = MethodNotAllowedHandler()

	r.HandleFunc("/health", HealthHandler(svc.Health, logger)).Methods(http.MethodGet)
	r.HandleFunc("/events", HandleListEvents(svc.Catalog, logger)).Methods(http.MethodGet)
	r.HandleFunc("/events/{id}", HandleGetEvent(svc.Catalog, logger)).Methods(http.MethodGet)

	purchase := HandlePurchase(svc.Purchase, logger)
	r.HandleFunc("/purchase", purchase).Methods(http.MethodPost)
	r.HandleFunc("/purchases", purchase).Methods(http.MethodPost)
	r.HandleFunc("/purchases", HandleListPurchases(svc.Catalog, logger)).Methods(http.MethodGet)

	r.HandleFunc("/admin/events", HandleCreateEvent(svc.Admin, logger)).Methods(http.MethodPost)

	return CORS(corsOrigins, RequestLogger(Recoverer(r, logger), logger))
}
