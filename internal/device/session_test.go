package device

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/eventbus"
)

// fakeDeck replays scripted input frames, then fails or blocks until closed.
type fakeDeck struct {
	mu         sync.Mutex
	frames     [][]bool
	readErr    error
	block      bool
	closed     chan struct{}
	closeOnce  sync.Once
	brightness int
	images     map[int]image.Image
	flushes    int
}

func newFakeDeck(frames [][]bool, readErr error) *fakeDeck {
	return &fakeDeck{
		frames:  frames,
		readErr: readErr,
		closed:  make(chan struct{}),
		images:  make(map[int]image.Image),
	}
}

func (d *fakeDeck) Keys() int { return config.KeyCount }

func (d *fakeDeck) ReadButtons(timeout time.Duration) ([]bool, error) {
	d.mu.Lock()
	if len(d.frames) > 0 {
		frame := d.frames[0]
		d.frames = d.frames[1:]
		d.mu.Unlock()
		return frame, nil
	}
	block := d.block
	d.mu.Unlock()

	if block {
		<-d.closed
		return nil, errors.New("device closed")
	}
	select {
	case <-d.closed:
		return nil, errors.New("device closed")
	default:
	}
	if d.readErr != nil {
		return nil, d.readErr
	}
	time.Sleep(timeout)
	return nil, nil
}

func (d *fakeDeck) SetButtonImage(key int, img image.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.images[key] = img
	return nil
}

func (d *fakeDeck) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushes++
	return nil
}

func (d *fakeDeck) SetBrightness(percent int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.brightness = percent
	return nil
}

func (d *fakeDeck) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}

// fakeTransport hands out decks in order and records discovery times.
type fakeTransport struct {
	mu       sync.Mutex
	decks    []*fakeDeck
	discover chan time.Time
}

func newFakeTransport(decks ...*fakeDeck) *fakeTransport {
	return &fakeTransport{decks: decks, discover: make(chan time.Time, 64)}
}

func (t *fakeTransport) Discover() ([]Info, error) {
	t.discover <- time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.decks) == 0 {
		return nil, nil
	}
	return []Info{{Kind: "fake", Serial: "FAKE0001", Path: "fake"}}, nil
}

func (t *fakeTransport) Connect(Info) (Deck, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.decks) == 0 {
		return nil, errors.New("gone")
	}
	d := t.decks[0]
	t.decks = t.decks[1:]
	return d, nil
}

func testStore(reconnect time.Duration, brightness int) *config.Store {
	return config.NewStore(&config.Config{Deckd: config.DeckdConfig{
		Brightness:        &brightness,
		ReconnectInterval: config.Duration(reconnect),
	}})
}

func press(key int) []bool {
	frame := make([]bool, config.KeyCount)
	frame[key] = true
	return frame
}

func TestSessionPublishesChangesAndBacksOff(t *testing.T) {
	const interval = 150 * time.Millisecond
	const presses = 3

	var frames [][]bool
	for i := 0; i < presses; i++ {
		frames = append(frames, press(i), make([]bool, config.KeyCount))
	}
	// Repeating a frame must not produce duplicate events
	frames = append(frames, make([]bool, config.KeyCount))

	deck := newFakeDeck(frames, errors.New("hid read failed"))
	transport := newFakeTransport(deck)
	bus := eventbus.New()
	sub := bus.Subscribe()
	handle := NewHandle()
	session := NewSession(transport, bus, handle, testStore(interval, 42))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		session.Run(ctx)
		close(done)
	}()

	var got []eventbus.Event
	for {
		recvCtx, recvCancel := context.WithTimeout(ctx, 2*time.Second)
		e, err := sub.Recv(recvCtx)
		recvCancel()
		if err != nil {
			t.Fatalf("Recv() error = %v, events so far %v", err, got)
		}
		got = append(got, e)
		if _, ok := e.(eventbus.DeviceDisconnected); ok {
			break
		}
	}
	disconnectedAt := time.Now()

	want := []eventbus.Event{eventbus.DeviceConnected{}}
	for i := 0; i < presses; i++ {
		want = append(want, eventbus.ButtonDown{Key: i}, eventbus.ButtonUp{Key: i})
	}
	want = append(want, eventbus.DeviceDisconnected{})

	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event #%d = %#v, want %#v", i, got[i], want[i])
		}
	}

	if deck.brightness != 42 {
		t.Errorf("brightness = %d, want 42", deck.brightness)
	}
	if handle.Connected() {
		t.Error("handle still set after disconnect")
	}

	// First discovery happened at startup; the second must respect the interval
	<-transport.discover
	select {
	case second := <-transport.discover:
		if elapsed := second.Sub(disconnectedAt); elapsed < interval-10*time.Millisecond {
			t.Errorf("reconnect attempted after %v, want >= %v", elapsed, interval)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect attempt")
	}

	// No second disconnect: the transport has no more devices
	time.Sleep(interval)
	for {
		e, ok, err := sub.TryRecv()
		if err != nil {
			t.Fatalf("TryRecv() error = %v", err)
		}
		if !ok {
			break
		}
		if _, dup := e.(eventbus.DeviceDisconnected); dup {
			t.Fatal("DeviceDisconnected published more than once")
		}
	}

	cancel()
	<-done
}

func TestSessionCancelInterruptsBlockedRead(t *testing.T) {
	deck := newFakeDeck(nil, nil)
	deck.block = true
	transport := newFakeTransport(deck)
	bus := eventbus.New()
	sub := bus.Subscribe()
	handle := NewHandle()
	session := NewSession(transport, bus, handle, testStore(time.Hour, 80))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		session.Run(ctx)
		close(done)
	}()

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	if e, err := sub.Recv(recvCtx); err != nil || e != (eventbus.DeviceConnected{}) {
		t.Fatalf("Recv() = %v, %v; want DeviceConnected", e, err)
	}
	if handle.Load() == nil {
		t.Fatal("handle empty while connected")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Run did not return after cancellation")
	}
	if handle.Connected() {
		t.Error("handle still set after stop")
	}
}

func TestSessionCancelInterruptsBackoff(t *testing.T) {
	transport := newFakeTransport()
	session := NewSession(transport, eventbus.New(), NewHandle(), testStore(time.Hour, 80))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		session.Run(ctx)
		close(done)
	}()

	<-transport.discover
	cancel()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Run did not return during backoff")
	}
}

func TestHandleLoadStore(t *testing.T) {
	h := NewHandle()
	if h.Load() != nil || h.Connected() {
		t.Fatal("new handle not empty")
	}
	deck := newFakeDeck(nil, nil)
	h.Set(deck)
	if h.Load() != Deck(deck) {
		t.Fatal("Load() did not return stored deck")
	}
	h.Set(nil)
	if h.Load() != nil {
		t.Fatal("Load() after clear not nil")
	}
}
