// Package httpapi exposes the authentication and user-management services
// over HTTP with a gorilla/mux router.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dsmirnov82/authuser/internal/logging"
	"github.com/dsmirnov82/authuser/internal/server/auth"
	"github.com/dsmirnov82/authuser/internal/server/models"
	"github.com/dsmirnov82/authuser/internal/server/services"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	address string
	auth    *services.AuthService
	users   *services.UsersService
	logger  logging.Logger
}

func NewServer(address string, a *services.AuthService, u *services.UsersService, logger logging.Logger) *Server {
	return &Server{
		address: address,
		auth:    a,
		users:   u,
		logger:  logger.With("module", "http_server"),
	}
}

// Router builds the route table. Read endpoints accept any authenticated
// role; write endpoints require ADMIN or MODERATOR.
func (s *Server) Router() http.Handler {
	read := s.requireRoles(auth.RequireRoles(models.RoleUser, models.RoleModerator, models.RoleAdmin))
	manage := s.requireRoles(auth.RequireRoles(models.RoleAdmin, models.RoleModerator))

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.withAuth)
	authed.HandleFunc("/profile/me", s.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)

	authed.Handle("/users", read(http.HandlerFunc(s.handleListUsers))).Methods(http.MethodGet)
	authed.Handle("/users/{id}", read(http.HandlerFunc(s.handleGetUser))).Methods(http.MethodGet)
	authed.Handle("/users/{id}/roles", read(http.HandlerFunc(s.handleUserRoles))).Methods(http.MethodGet)

	authed.Handle("/users", manage(http.HandlerFunc(s.handleCreateUser))).Methods(http.MethodPost)
	authed.Handle("/users/{id}", manage(http.HandlerFunc(s.handleUpdateUser))).Methods(http.MethodPatch)
	authed.Handle("/users/{id}", manage(http.HandlerFunc(s.handleDeleteUser))).Methods(http.MethodDelete)
	authed.Handle("/users/{id}/roles", manage(http.HandlerFunc(s.handleAddRole))).Methods(http.MethodPost)
	authed.Handle("/users/{id}/roles/{role}", manage(http.HandlerFunc(s.handleRemoveRole))).Methods(http.MethodDelete)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
