package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/perchlabs/buslink/internal/testutil/testlog"
	"github.com/perchlabs/buslink/pkg/buslink"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	// nothing listening on the endpoint: the client stays disconnected
	client, err := buslink.New(buslink.DefaultConfig("127.0.0.1:1"), buslink.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return New("buslinkd-test", ":0", nil, client)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthAlwaysOK(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t)
	rec := get(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "buslinkd-test" {
		t.Fatalf("health body = %v", body)
	}
}

func TestReadyReflectsLinkState(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t)
	rec := get(t, s, "/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status while disconnected = %d", rec.Code)
	}
}

func TestLinkReportsState(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t)
	rec := get(t, s, "/link")
	if rec.Code != http.StatusOK {
		t.Fatalf("link status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode link body: %v", err)
	}
	if body["connected"] != false {
		t.Fatalf("link body = %v", body)
	}
}

func TestTopicsListsLocalRegistrations(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t)
	if err := s.client.Subscribe("chatter", func([]byte) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := s.client.RegisterService("echo", func(b []byte) ([]byte, error) { return b, nil }); err != nil {
		t.Fatalf("register service: %v", err)
	}

	rec := get(t, s, "/topics")
	var body struct {
		Topics   []string `json:"topics"`
		Services []string `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode topics body: %v", err)
	}
	if len(body.Topics) != 1 || body.Topics[0] != "chatter" {
		t.Fatalf("topics = %v", body.Topics)
	}
	if len(body.Services) != 1 || body.Services[0] != "echo" {
		t.Fatalf("services = %v", body.Services)
	}
}

func TestGoalsEmptyWhenIdle(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t)
	rec := get(t, s, "/goals")
	if rec.Code != http.StatusOK {
		t.Fatalf("goals status = %d", rec.Code)
	}
	var body struct {
		Goals []goalInfo `json:"goals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode goals body: %v", err)
	}
	if len(body.Goals) != 0 {
		t.Fatalf("goals = %v", body.Goals)
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t)
	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
}
