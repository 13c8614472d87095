// Package testutil spins up in-process BleepStore servers for tests.
package testutil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bleepstore/bleepstore/internal/api"
	"github.com/bleepstore/bleepstore/internal/auth"
	"github.com/bleepstore/bleepstore/internal/blob"
	"github.com/bleepstore/bleepstore/internal/meta"
	"github.com/bleepstore/bleepstore/internal/server"
)

// TestServer provides a test BleepStore server instance backed by the
// in-memory stores.
type TestServer struct {
	t         *testing.T
	Endpoint  string
	AccessKey string
	SecretKey string
	Owner     api.Owner

	listener net.Listener
	server   *http.Server
	meta     meta.Store
	blob     blob.Backend
}

// NewTestServer creates and starts a test server on a random port with
// authentication disabled.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	return newTestServer(t, false)
}

// NewTestServerWithAuth creates a test server that verifies SigV4
// signatures against the seeded credential.
func NewTestServerWithAuth(t *testing.T) *TestServer {
	t.Helper()
	return newTestServer(t, true)
}

func newTestServer(t *testing.T, withAuth bool) *TestServer {
	t.Helper()

	accessKey := "BLEEP"
	secretKey := "SECRET"

	metaStore := meta.NewMemoryStore()
	backend := blob.NewMemory()

	ownerID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("bleepstore:"+accessKey)).String()
	owner := api.Owner{ID: ownerID, DisplayName: accessKey}

	err := metaStore.PutCredential(context.Background(), &meta.Credential{
		AccessKeyID: accessKey,
		SecretKey:   secretKey,
		OwnerID:     ownerID,
		DisplayName: accessKey,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}

	apiHandler := api.NewHandler(metaStore, backend, api.Config{
		Region:       "us-east-1",
		DefaultOwner: owner,
	})

	var authMiddleware auth.Authenticator = auth.NewDisabledMiddleware()
	if withAuth {
		authMiddleware = auth.NewMiddleware(metaStore, false)
	}

	router := server.NewRouter(apiHandler, authMiddleware, backend, server.Options{
		HealthCheck: true,
		Metrics:     true,
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}

	srv := &http.Server{Handler: router}

	ts := &TestServer{
		t:         t,
		Endpoint:  fmt.Sprintf("http://%s", listener.Addr().String()),
		AccessKey: accessKey,
		SecretKey: secretKey,
		Owner:     owner,
		listener:  listener,
		server:    srv,
		meta:      metaStore,
		blob:      backend,
	}

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	ts.waitForReady()
	return ts
}

// waitForReady waits for the server to be ready.
func (ts *TestServer) waitForReady() {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.Endpoint + "/healthz")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	ts.t.Fatalf("server did not become ready")
}

// Cleanup stops the server and closes the stores.
func (ts *TestServer) Cleanup() {
	if ts.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ts.server.Shutdown(ctx)
	}
	if ts.meta != nil {
		ts.meta.Close()
	}
	if ts.blob != nil {
		ts.blob.Close()
	}
}

// Meta returns the metadata store for direct assertions.
func (ts *TestServer) Meta() meta.Store {
	return ts.meta
}

// Blob returns the storage backend for direct assertions.
func (ts *TestServer) Blob() blob.Backend {
	return ts.blob
}
