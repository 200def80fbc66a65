package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"bookmarks-billing/internal/domain/ports/usecase"
	"bookmarks-billing/internal/infra/logging"
)

// Server is the read-only admin API over subscriptions and billing history.
type Server struct {
	subs usecase.SubscriptionQueries
	auth *AuthManager
	log  *zerolog.Logger
}

func NewServer(subs usecase.SubscriptionQueries, auth *AuthManager, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "admin_api").Logger()
	return &Server{subs: subs, auth: auth, log: &l}
}

// Routes registers the admin endpoints; all of them require an admin token.
func (s *Server) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/v1/subscriptions/{email}", subscriptionGetHandler(s.subs))
		r.Get("/api/v1/subscriptions/{email}/transactions", transactionsListHandler(s.subs))
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			s.log.Error().Msg("admin auth is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			l := logging.With(r.Context(), s.log)
			l.Debug().Err(err).Msg("admin request rejected")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		l := logging.With(r.Context(), s.log)
		l.Debug().Str("subject", claims.Subject).Str("path", r.URL.Path).Msg("admin request")
		next.ServeHTTP(w, r)
	})
}
