package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/himanshu-firke/shopsphere-backend/api/controllers"
	"github.com/himanshu-firke/shopsphere-backend/api/middleware"
	addresssvc "github.com/himanshu-firke/shopsphere-backend/internal/address"
	cartsvc "github.com/himanshu-firke/shopsphere-backend/internal/cart"
	checkoutsvc "github.com/himanshu-firke/shopsphere-backend/internal/checkout"
	"github.com/himanshu-firke/shopsphere-backend/internal/promo"
	"github.com/himanshu-firke/shopsphere-backend/pkg/config"
	"github.com/himanshu-firke/shopsphere-backend/pkg/logger"
)

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Registry *prometheus.Registry

	Carts     *cartsvc.Manager
	Promos    promo.Service
	Addresses addresssvc.Service
	Checkout  checkoutsvc.Service
}

// NewRouter builds the API's HTTP handler.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(deps.DB, deps.Redis, logg))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.GetCart(deps.Carts, logg))
			r.Post("/refresh", controllers.RefreshCart(deps.Carts, logg))
			r.Delete("/", controllers.ClearCart(deps.Carts, logg))
			r.Post("/items", controllers.AddCartItem(deps.Carts, logg))
			r.Put("/items/{productID}", controllers.UpdateCartItem(deps.Carts, logg))
			r.Delete("/items/{productID}", controllers.RemoveCartItem(deps.Carts, logg))
			r.Post("/promo", controllers.ApplyPromo(deps.Carts, deps.Promos, logg))
			r.Delete("/promo", controllers.RemovePromo(deps.Carts, logg))
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", controllers.ListAddresses(deps.Addresses, logg))
			r.Post("/", controllers.CreateAddress(deps.Addresses, logg))
			r.Put("/{addressID}", controllers.UpdateAddress(deps.Addresses, logg))
			r.Delete("/{addressID}", controllers.DeleteAddress(deps.Addresses, logg))
			r.Patch("/{addressID}/default", controllers.SetDefaultAddress(deps.Addresses, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", controllers.BeginCheckout(deps.Checkout, logg))
			r.Get("/", controllers.CurrentCheckout(deps.Checkout, logg))
			r.Post("/shipping", controllers.CheckoutShipping(deps.Checkout, logg))
			r.Post("/payment", controllers.CheckoutPayment(deps.Checkout, logg))
			r.Post("/back", controllers.CheckoutBack(deps.Checkout, logg))
			r.Post("/place", controllers.PlaceOrder(deps.Checkout, logg))
			r.Delete("/", controllers.AbandonCheckout(deps.Checkout, logg))
		})
	})

	return r
}
