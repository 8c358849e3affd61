package actions

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/db"
	"github.com/dokzlo13/deckd/internal/eventbus"
	"github.com/dokzlo13/deckd/internal/ledger"
	"github.com/dokzlo13/deckd/internal/tasks"
)

func TestExecuteHTTP(t *testing.T) {
	var (
		mu       sync.Mutex
		gotReq   *http.Request
		gotBody  string
		respCode = http.StatusOK
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotReq = r
		gotBody = string(body)
		code := respCode
		mu.Unlock()
		w.WriteHeader(code)
	}))
	defer srv.Close()

	e := NewExecutor(eventbus.New())
	action := config.HTTPAction{
		Method:  "POST",
		URL:     srv.URL + "/api/services/light/toggle",
		Headers: map[string]string{"Authorization": "Bearer abc"},
		Body:    `{"entity_id":"light.kitchen"}`,
	}
	if err := e.Execute(context.Background(), action); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	mu.Lock()
	if gotReq.Method != "POST" || gotReq.URL.Path != "/api/services/light/toggle" {
		t.Errorf("request = %s %s", gotReq.Method, gotReq.URL.Path)
	}
	if gotReq.Header.Get("Authorization") != "Bearer abc" {
		t.Errorf("Authorization = %q", gotReq.Header.Get("Authorization"))
	}
	if gotBody != `{"entity_id":"light.kitchen"}` {
		t.Errorf("body = %q", gotBody)
	}
	respCode = http.StatusInternalServerError
	mu.Unlock()

	// Non-2xx is only a warning
	if err := e.Execute(context.Background(), action); err != nil {
		t.Fatalf("Execute() on 500 = %v, want nil", err)
	}
}

func TestExecuteHTTPMethods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	e := NewExecutor(eventbus.New())

	tests := []struct {
		method  string
		wantErr bool
	}{
		{"GET", false},
		{"post", false},
		{"PUT", false},
		{"DELETE", false},
		{"PATCH", false},
		{"", false},
		{"HEAD", true},
		{"TRACE", true},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			err := e.Execute(context.Background(), config.HTTPAction{Method: tt.method, URL: srv.URL})
			var me *MethodError
			if tt.wantErr != errors.As(err, &me) {
				t.Fatalf("Execute(%q) error = %v", tt.method, err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Execute(%q) error = %v", tt.method, err)
			}
		})
	}
}

func TestExecuteHTTPConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	e := NewExecutor(eventbus.New())
	if err := e.Execute(context.Background(), config.HTTPAction{Method: "GET", URL: url}); err == nil {
		t.Fatal("Execute() against closed server succeeded")
	}
}

func TestExecuteShell(t *testing.T) {
	e := NewExecutor(eventbus.New())

	if err := e.Execute(context.Background(), config.ShellAction{Command: "echo ok"}); err != nil {
		t.Fatalf("Execute(echo) error = %v", err)
	}

	err := e.Execute(context.Background(), config.ShellAction{Command: "echo broken >&2; exit 3"})
	var se *ShellError
	if !errors.As(err, &se) {
		t.Fatalf("Execute() error = %v, want ShellError", err)
	}
	if se.ExitCode != 3 || se.Stderr != "broken\n" {
		t.Errorf("ShellError = %+v", se)
	}
}

func TestExecuteNavigationPublishes(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe()
	e := NewExecutor(bus)

	tests := []struct {
		action config.Action
		want   eventbus.Event
	}{
		{config.NavigateAction{Page: "lights"}, eventbus.NavigateTo{Page: "lights"}},
		{config.BackAction{}, eventbus.NavigateBack{}},
		{config.HomeAction{}, eventbus.NavigateHome{}},
	}
	for _, tt := range tests {
		if err := e.Execute(context.Background(), tt.action); err != nil {
			t.Fatalf("Execute(%T) error = %v", tt.action, err)
		}
		got, ok, err := sub.TryRecv()
		if err != nil || !ok || got != tt.want {
			t.Fatalf("published %#v (ok %v, err %v), want %#v", got, ok, err, tt.want)
		}
	}

	if err := e.Execute(context.Background(), nil); err == nil {
		t.Fatal("Execute(nil) succeeded")
	}
}

type fakeRunner struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (r *fakeRunner) Execute(context.Context, config.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func TestInvokerRecordsLedger(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	l := ledger.New(database.DB)

	ok := NewInvoker(&fakeRunner{}, l)
	if err := ok.Invoke(context.Background(), "home", 2, config.ShellAction{Command: "true"}); err != nil {
		t.Fatal(err)
	}
	failing := NewInvoker(&fakeRunner{err: errors.New("boom")}, l)
	if err := failing.Invoke(context.Background(), "home", 4, config.HTTPAction{Method: "GET", URL: "http://x"}); err == nil {
		t.Fatal("Invoke() swallowed runner error")
	}

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("ledger entries = %d, want 4", len(entries))
	}
	// Newest first: failed, started (key 4), completed, started (key 2)
	if entries[0].EventType != ledger.EventActionFailed || entries[0].Key != 4 || entries[0].Payload["error"] != "boom" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].InvocationID != entries[0].InvocationID {
		t.Error("failed entry does not share the started invocation id")
	}
	if entries[2].EventType != ledger.EventActionCompleted || entries[2].ActionKind != "shell" {
		t.Errorf("entries[2] = %+v", entries[2])
	}
	if entries[3].Payload["command"] != "true" {
		t.Errorf("entries[3] payload = %v", entries[3].Payload)
	}

	// A nil ledger is allowed
	if err := NewInvoker(&fakeRunner{}, nil).Invoke(context.Background(), "home", 0, config.HomeAction{}); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchRerendersAfterSettle(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe()
	runner := &fakeRunner{err: errors.New("unreachable")}
	group := tasks.NewGroup()
	d := NewDispatcher(NewInvoker(runner, nil), group, bus)

	settle := 50 * time.Millisecond
	start := time.Now()
	d.Dispatch(context.Background(), "home", &config.Button{
		Key:         1,
		StateEntity: "light.kitchen",
		OnPress:     config.HTTPAction{Method: "POST", URL: "http://x"},
	}, settle)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if got != (eventbus.RenderAll{}) {
		t.Fatalf("published %#v, want RenderAll", got)
	}
	if elapsed := time.Since(start); elapsed < settle {
		t.Errorf("re-render after %v, want >= %v", elapsed, settle)
	}
	if !group.Wait(time.Second) {
		t.Fatal("dispatch task did not finish")
	}
	if runner.calls != 1 {
		t.Errorf("runner calls = %d", runner.calls)
	}
}

func TestDispatchWithoutEntityDoesNotRerender(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe()
	runner := &fakeRunner{}
	group := tasks.NewGroup()
	d := NewDispatcher(NewInvoker(runner, nil), group, bus)

	d.Dispatch(context.Background(), "home", &config.Button{Key: 0, OnPress: config.ShellAction{Command: "true"}}, time.Millisecond)
	if !group.Wait(time.Second) {
		t.Fatal("dispatch task did not finish")
	}
	if _, ok, _ := sub.TryRecv(); ok {
		t.Fatal("unexpected publish for a button without entity")
	}
	if runner.calls != 1 {
		t.Errorf("runner calls = %d", runner.calls)
	}

	// Nothing to do at all
	d.Dispatch(context.Background(), "home", &config.Button{Key: 1}, time.Millisecond)
	if group.Running() != 0 {
		t.Fatal("task spawned for a button with no action")
	}
}

func TestDispatchSettleCancelled(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe()
	group := tasks.NewGroup()
	d := NewDispatcher(NewInvoker(&fakeRunner{}, nil), group, bus)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, "home", &config.Button{Key: 0, StateEntity: "light.a"}, time.Hour)
	cancel()

	if !group.Wait(time.Second) {
		t.Fatal("settle wait ignored cancellation")
	}
	if _, ok, _ := sub.TryRecv(); ok {
		t.Fatal("RenderAll published after cancellation")
	}
}
