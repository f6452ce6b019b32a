package router

import (
	"net/http"
	"time"

	"marketplace-core/internal/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func SetupRoutes(
	walletHandler *handler.WalletHandler,
	auctionHandler *handler.AuctionHandler,
	escrowHandler *handler.EscrowHandler,
	fractionalHandler *handler.FractionalHandler,
	subscriptionHandler *handler.SubscriptionHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/wallets", func(r chi.Router) {
			r.Post("/", walletHandler.Create)
			r.Get("/me", walletHandler.Get)
			r.Post("/topup", walletHandler.TopUp)
			r.Get("/transactions", walletHandler.ListTransactions)
		})

		r.Route("/auctions", func(r chi.Router) {
			r.Post("/", auctionHandler.Create)
			r.Get("/{id}", auctionHandler.Get)
			r.Get("/{id}/bids", auctionHandler.ListBids)
			r.Post("/{id}/bids", auctionHandler.PlaceBid)
			r.Post("/{id}/buy-now", auctionHandler.BuyNow)
			r.Post("/{id}/close", auctionHandler.Close)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", escrowHandler.Create)
			r.Get("/{id}", escrowHandler.Get)
			r.Post("/{id}/lock", escrowHandler.LockFunds)
			r.Post("/{id}/ship", escrowHandler.MarkShipped)
			r.Post("/{id}/deliver", escrowHandler.MarkDelivered)
			r.Post("/{id}/release", escrowHandler.Release)
			r.Post("/{id}/dispute", escrowHandler.Dispute)
			r.Post("/{id}/refund", escrowHandler.Refund)
		})

		r.Route("/fractional", func(r chi.Router) {
			r.Post("/", fractionalHandler.CreateListing)
			r.Get("/holdings", fractionalHandler.ListHoldings)
			r.Get("/{id}", fractionalHandler.GetListing)
			r.Post("/{id}/purchase", fractionalHandler.PurchaseShares)
			r.Post("/{id}/resale", fractionalHandler.ListForResale)
			r.Post("/resales/{id}/purchase", fractionalHandler.PurchaseResale)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subscriptionHandler.Subscribe)
			r.Get("/me", subscriptionHandler.Get)
			r.Post("/renew", subscriptionHandler.Renew)
		})
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}
