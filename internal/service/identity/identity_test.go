package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	log "github.com/sirupsen/logrus"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}

func TestClientIPCachesFirstResult(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"ip":"203.0.113.7"}`))
	}))
	defer server.Close()

	resolver := NewResolver(testLogger(), WithLookupURL(server.URL))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if got := resolver.ClientIP(ctx); got != "203.0.113.7" {
			t.Fatalf("ClientIP = %q, want 203.0.113.7", got)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("lookup endpoint called %d times, want 1", got)
	}
}

func TestClientIPLookupFailureReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resolver := NewResolver(testLogger(), WithLookupURL(server.URL))

	if got := resolver.ClientIP(context.Background()); got != "" {
		t.Fatalf("ClientIP = %q, want empty on lookup failure", got)
	}
	// Failure is cached too: no retry storm per request.
	if got := resolver.ClientIP(context.Background()); got != "" {
		t.Fatalf("ClientIP = %q, want empty on cached failure", got)
	}
}

func TestClientIPUnreachableEndpoint(t *testing.T) {
	resolver := NewResolver(testLogger(), WithLookupURL("http://127.0.0.1:1/ip"))
	if got := resolver.ClientIP(context.Background()); got != "" {
		t.Fatalf("ClientIP = %q, want empty when endpoint unreachable", got)
	}
}
