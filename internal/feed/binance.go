package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bookmirror/internal/book"
)

// BookFeed is the ingestion side of the mirror: it delivers already-decoded
// updates on Updates() and non-fatal problems on Errors().
type BookFeed interface {
	Run(ctx context.Context, onStatus func(connected bool))
	Updates() <-chan book.Update
	Errors() <-chan error
	Connected() bool
	Close()
}

// BinanceFeed streams one symbol's combined bookTicker + depth20 feed with
// reconnect and resubscribe. Decode failures are reported and skipped; only
// transport errors tear the connection down.
type BinanceFeed struct {
	url string
	log *slog.Logger

	mu        sync.RWMutex
	connected bool
	wsConn    *websocket.Conn

	updCh chan book.Update
	errCh chan error

	maxBackoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// StreamURL builds the multiplexed raw-stream URL for symbol off the
// exchange base, e.g. wss://host/ws/bnbusdt@bookTicker/bnbusdt@depth20@100ms.
func StreamURL(base, symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	return fmt.Sprintf("%s/ws/%s@bookTicker/%s@depth20@100ms", strings.TrimRight(base, "/"), s, s)
}

func NewBinanceFeed(base, symbol string, buffer int, maxBackoff time.Duration, logger *slog.Logger) *BinanceFeed {
	return &BinanceFeed{
		url:        StreamURL(base, symbol),
		log:        logger,
		updCh:      make(chan book.Update, buffer),
		errCh:      make(chan error, 16),
		maxBackoff: maxBackoff,
	}
}

func (f *BinanceFeed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

func (f *BinanceFeed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *BinanceFeed) Updates() <-chan book.Update { return f.updCh }
func (f *BinanceFeed) Errors() <-chan error        { return f.errCh }

func (f *BinanceFeed) Close() {
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Lock()
	ws := f.wsConn
	f.mu.Unlock()
	if ws != nil {
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		_ = ws.Close()
	}
	close(f.errCh)
	close(f.updCh)
}

// Run dials and pumps until ctx is cancelled, reconnecting with exponential
// backoff. onStatus fires on every connect/disconnect transition.
func (f *BinanceFeed) Run(ctx context.Context, onStatus func(connected bool)) {
	if f.cancel != nil {
		return
	}
	f.ctx, f.cancel = context.WithCancel(ctx)

	backoff := time.Second
	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		ws, _, err := websocket.DefaultDialer.DialContext(f.ctx, f.url, nil)
		if err != nil {
			f.setConnected(false)
			onStatus(false)
			f.emitErr(fmt.Errorf("dial %s: %w", f.url, err))
			select {
			case <-time.After(backoff):
			case <-f.ctx.Done():
				return
			}
			backoff = minDuration(backoff*2, f.maxBackoff)
			continue
		}

		f.mu.Lock()
		f.wsConn = ws
		f.mu.Unlock()
		f.setConnected(true)
		onStatus(true)
		backoff = time.Second
		f.log.Info("stream connected", slog.String("url", f.url))

		if err := f.readLoop(ws); err != nil {
			f.setConnected(false)
			onStatus(false)
			f.emitErr(err)
			// loop reconnects
		}
	}
}

func (f *BinanceFeed) readLoop(ws *websocket.Conn) error {
	defer func() { _ = ws.Close() }()

	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pinger := time.NewTicker(25 * time.Second)
	defer pinger.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return nil
		case <-pinger.C:
			_ = ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		default:
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read: %w", err)
		}

		upd, err := DecodeMessage(data)
		if err != nil {
			if errors.Is(err, ErrMalformedMessage) {
				// acks and heartbeats are expected noise
				f.log.Debug("skipping non-update payload")
				continue
			}
			f.emitErr(err)
			continue
		}

		select {
		case f.updCh <- upd:
		case <-f.ctx.Done():
			return nil
		}
	}
}

func (f *BinanceFeed) emitErr(err error) {
	select {
	case f.errCh <- err:
	default:
		// drop if buffer full
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// ---------- Test/mock feed ----------

type MockBookFeed struct {
	updates   chan book.Update
	errors    chan error
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewMockBookFeed() *MockBookFeed {
	return &MockBookFeed{
		updates:   make(chan book.Update, 16),
		errors:    make(chan error, 16),
		connected: true,
	}
}

func (m *MockBookFeed) Run(ctx context.Context, onStatus func(connected bool)) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		onStatus(m.connected)
		<-m.ctx.Done()
	}()
}

func (m *MockBookFeed) Updates() <-chan book.Update { return m.updates }
func (m *MockBookFeed) Errors() <-chan error        { return m.errors }
func (m *MockBookFeed) Connected() bool             { return m.connected }

func (m *MockBookFeed) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	close(m.updates)
	close(m.errors)
}

// Helpers for tests
func (m *MockBookFeed) SendUpdate(u book.Update) { m.updates <- u }
func (m *MockBookFeed) SendError(e error)        { m.errors <- e }
func (m *MockBookFeed) SetConnected(c bool)      { m.connected = c }
