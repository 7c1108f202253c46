package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tmancill/kommitted/internal/clusterstatus"
	"github.com/tmancill/kommitted/internal/kafkatypes"
	"github.com/tmancill/kommitted/internal/lagregister"
	"github.com/tmancill/kommitted/internal/partitionoffsets"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	clusterReg := clusterstatus.New()
	offsetsIn := make(chan kafkatypes.PartitionOffset)
	offsetsReg := partitionoffsets.New(log.NewNopLogger(), offsetsIn, 10)
	committedIn := make(chan kafkatypes.CommittedOffset)
	membershipIn := make(chan kafkatypes.ConsumerGroup)
	lagReg := lagregister.New(log.NewNopLogger(), offsetsReg, committedIn, membershipIn)

	return New(":0", log.NewNopLogger(), Dependencies{
		Registry:         prometheus.NewRegistry(),
		ClusterStatus:    clusterReg,
		PartitionOffsets: offsetsReg,
		LagRegister:      lagReg,
	})
}

func TestHandleIndex(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s.handleIndex(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected a non-empty greeting body")
	}
}

func TestHandleHealthy_BeforeAndAfterMark(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleHealthy(rec, httptest.NewRequest(http.MethodGet, "/status/healthy", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before MarkHealthy = %d, want 503", rec.Code)
	}

	s.MarkHealthy()
	rec = httptest.NewRecorder()
	s.handleHealthy(rec, httptest.NewRequest(http.MethodGet, "/status/healthy", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status after MarkHealthy = %d, want 200", rec.Code)
	}
}

func TestHandleReady_MarkAndUnmark(t *testing.T) {
	s := newTestServer(t)

	s.MarkReady()
	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/status/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status after MarkReady = %d, want 200", rec.Code)
	}

	s.MarkNotReady()
	rec = httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/status/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status after MarkNotReady = %d, want 503", rec.Code)
	}
}

func TestHandleMetrics_ReturnsPrometheusText(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	handler := s.handleMetrics(Dependencies{
		Registry:         prometheus.NewRegistry(),
		ClusterStatus:    clusterstatus.New(),
		PartitionOffsets: partitionoffsets.New(log.NewNopLogger(), make(chan kafkatypes.PartitionOffset), 10),
		LagRegister: lagregister.New(log.NewNopLogger(), partitionoffsets.New(log.NewNopLogger(), make(chan kafkatypes.PartitionOffset), 10),
			make(chan kafkatypes.CommittedOffset), make(chan kafkatypes.ConsumerGroup)),
	})
	handler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; version=0.0.4" {
		t.Fatalf("Content-Type = %q", ct)
	}
}
