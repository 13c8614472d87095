// Package server wires the stores, authentication, and router into an HTTP
// server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bleepstore/bleepstore/internal/api"
	"github.com/bleepstore/bleepstore/internal/auth"
	"github.com/bleepstore/bleepstore/internal/blob"
	"github.com/bleepstore/bleepstore/internal/config"
	"github.com/bleepstore/bleepstore/internal/meta"
)

// Server represents the BleepStore HTTP server.
type Server struct {
	httpServer *http.Server
	meta       meta.Store
	blob       blob.Backend
	config     *config.Config
}

// New creates a new Server instance.
func New(cfg *config.Config) (*Server, error) {
	if cfg.Cluster.Enabled {
		return nil, errors.New("cluster mode is configured but not supported")
	}

	metaStore, err := newMetaStore(cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metadata store: %w", err)
	}

	backend, err := newBlobBackend(cfg.Storage)
	if err != nil {
		metaStore.Close()
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	owner, err := seedCredential(metaStore, cfg.Auth)
	if err != nil {
		metaStore.Close()
		backend.Close()
		return nil, fmt.Errorf("failed to seed bootstrap credential: %w", err)
	}

	apiHandler := api.NewHandler(metaStore, backend, api.Config{
		Region:        cfg.Server.Region,
		MaxObjectSize: cfg.Server.MaxObjectSize,
		DefaultOwner:  owner,
	})

	authMiddleware := auth.NewMiddleware(metaStore, cfg.Auth.AllowAnonymous)
	router := NewRouter(apiHandler, authMiddleware, backend, Options{
		HealthCheck: cfg.Observability.HealthCheck,
		Metrics:     cfg.Observability.Metrics,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		meta:       metaStore,
		blob:       backend,
		config:     cfg,
	}, nil
}

// newMetaStore builds the configured metadata store.
func newMetaStore(cfg config.MetadataConfig) (meta.Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return meta.NewSQLiteStore(cfg.SQLite.Path)
	case "memory":
		return meta.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.Backend)
	}
}

// newBlobBackend builds the configured storage backend. The cloud
// backends the config enumerates are accepted names without an
// implementation here.
func newBlobBackend(cfg config.StorageConfig) (blob.Backend, error) {
	switch cfg.Backend {
	case "", "local":
		return blob.NewLocal(cfg.Local.Root)
	case "memory":
		return blob.NewMemory(), nil
	case "sqlite":
		return blob.NewSQLite(cfg.SQLite.Path)
	case "aws", "gcp", "azure":
		return nil, fmt.Errorf("storage backend %q is not supported in this build", cfg.Backend)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// seedCredential upserts the bootstrap access key pair and returns the
// owner identity derived from it. The owner id is a name-based UUID of
// the access key, so reseeding is idempotent.
func seedCredential(store meta.Store, cfg config.AuthConfig) (api.Owner, error) {
	ownerID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("bleepstore:"+cfg.AccessKey)).String()

	cred := &meta.Credential{
		AccessKeyID: cfg.AccessKey,
		SecretKey:   cfg.SecretKey,
		OwnerID:     ownerID,
		DisplayName: cfg.AccessKey,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.PutCredential(context.Background(), cred); err != nil {
		return api.Owner{}, err
	}
	return api.Owner{ID: ownerID, DisplayName: cfg.AccessKey}, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests up to the configured timeout, then
// closes remaining connections hard. The stores are closed either way; a
// dirty close is recovered on the next startup.
func (s *Server) Shutdown() error {
	timeout := time.Duration(s.config.Server.ShutdownTimeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info().Dur("timeout", timeout).Msg("Shutting down server")

	shutdownErr := s.httpServer.Shutdown(ctx)
	if shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("Drain deadline exceeded, closing connections")
		s.httpServer.Close()
	}

	if err := s.meta.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close metadata store")
	}
	if err := s.blob.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close storage backend")
	}

	if shutdownErr != nil {
		return fmt.Errorf("shutdown error: %w", shutdownErr)
	}
	return nil
}

// Meta returns the metadata store (for testing).
func (s *Server) Meta() meta.Store {
	return s.meta
}

// Blob returns the storage backend (for testing).
func (s *Server) Blob() blob.Backend {
	return s.blob
}
