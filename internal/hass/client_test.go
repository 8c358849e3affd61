package hass

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/states/")
		switch id {
		case "light.kitchen":
			w.Write([]byte(`{"entity_id":"light.kitchen","state":"on","attributes":{"brightness":200}}`))
		case "switch.fan":
			w.Write([]byte(`{"entity_id":"switch.fan","state":"off"}`))
		case "sensor.slow":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"state":"late"}`))
		case "sensor.broken":
			w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Entity not found."}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchStatesOmitsFailures(t *testing.T) {
	srv := newTestServer(t, nil)
	c := NewClient(srv.URL+"/", "secret", 50*time.Millisecond, 0)

	got := c.FetchStates(context.Background(), []string{
		"light.kitchen", "switch.fan", "light.missing", "sensor.slow", "sensor.broken",
	})

	want := map[string]string{"light.kitchen": "on", "switch.fan": "off"}
	if len(got) != len(want) {
		t.Fatalf("FetchStates() = %v, want %v", got, want)
	}
	for id, s := range want {
		if got[id] != s {
			t.Errorf("state[%s] = %q, want %q", id, got[id], s)
		}
	}
}

func TestFetchStatesWithoutToken(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	c := NewClient(srv.URL, "", time.Second, 0)

	if got := c.FetchStates(context.Background(), []string{"light.kitchen"}); len(got) != 0 {
		t.Fatalf("FetchStates() = %v, want empty", got)
	}
	if hits.Load() != 0 {
		t.Fatalf("server hit %d times without a token", hits.Load())
	}
}

func TestGetStateStatusError(t *testing.T) {
	srv := newTestServer(t, nil)
	c := NewClient(srv.URL, "secret", time.Second, 10)

	_, err := c.GetState(context.Background(), "light.missing")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("GetState() error = %v, want 404 StatusError", err)
	}

	s, err := c.GetState(context.Background(), "light.kitchen")
	if err != nil {
		t.Fatal(err)
	}
	if s.State != "on" || s.Attributes["brightness"] != float64(200) {
		t.Errorf("GetState() = %+v", s)
	}
}

func TestFetchStatesHonoursCancel(t *testing.T) {
	srv := newTestServer(t, nil)
	c := NewClient(srv.URL, "secret", time.Second, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := c.FetchStates(ctx, []string{"light.kitchen"}); len(got) != 0 {
		t.Fatalf("FetchStates() with cancelled ctx = %v", got)
	}
}
