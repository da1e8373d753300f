package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dpavlenko/marksync/internal/common"
	"github.com/dpavlenko/marksync/internal/logging"
	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

// WebsocketChannel dials websocket replication sessions.
type WebsocketChannel struct {
	baseURL      string
	dialer       *websocket.Dialer
	log          logging.Logger
	writeTimeout time.Duration
}

func NewWebsocketChannel(baseURL string, log logging.Logger) *WebsocketChannel {
	return &WebsocketChannel{
		baseURL:      baseURL,
		dialer:       websocket.DefaultDialer,
		log:          log.With("component", "transport"),
		writeTimeout: defaultWriteTimeout,
	}
}

// Connect dials the channel for userID. A 429 handshake response surfaces
// as ErrRateLimited so the caller can distinguish throttling from outages.
func (c *WebsocketChannel) Connect(ctx context.Context, userID string) (Transport, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", common.ErrValidation)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: channel url: %v", common.ErrValidation, err)
	}
	q := u.Query()
	q.Set("user", userID)
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: handshake throttled", common.ErrRateLimited)
		}
		return nil, fmt.Errorf("%w: dialing channel: %v", common.ErrNetwork, err)
	}

	t := newWSTransport(conn, c.log, c.writeTimeout)
	go t.readPump()
	go t.writePump()
	return t, nil
}

type wsSend struct {
	payload []byte
	result  chan error
}

// wsTransport pumps one websocket connection: a single writer goroutine fed
// by a channel, a reader goroutine dispatching to the handler.
type wsTransport struct {
	conn         *websocket.Conn
	log          logging.Logger
	writeTimeout time.Duration
	sendCh       chan wsSend

	mu      sync.Mutex
	handler func([]byte)
	// pending holds frames that arrive before a handler is registered; the
	// server may push at session open, ahead of OnMessage.
	pending [][]byte

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

func newWSTransport(conn *websocket.Conn, log logging.Logger, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{
		conn:         conn,
		log:          log,
		writeTimeout: writeTimeout,
		sendCh:       make(chan wsSend, 16),
		done:         make(chan struct{}),
	}
}

func (t *wsTransport) Send(ctx context.Context, payload []byte) error {
	msg := wsSend{payload: payload, result: make(chan error, 1)}

	select {
	case t.sendCh <- msg:
	case <-t.done:
		return fmt.Errorf("%w: session closed", common.ErrNetwork)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", common.ErrNetwork, ctx.Err())
	}

	select {
	case err := <-msg.result:
		return err
	case <-t.done:
		return fmt.Errorf("%w: session closed", common.ErrNetwork)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", common.ErrNetwork, ctx.Err())
	}
}

// OnMessage registers the inbound handler and replays, in arrival order, any
// frames received before registration.
func (t *wsTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
	for _, payload := range t.pending {
		fn(payload)
	}
	t.pending = nil
}

func (t *wsTransport) Close() error {
	t.fail(nil)
	return nil
}

func (t *wsTransport) Done() <-chan struct{} { return t.done }

func (t *wsTransport) Err() error {
	<-t.done
	return t.err
}

// fail records the first terminal error and tears the connection down.
func (t *wsTransport) fail(err error) {
	t.closeOnce.Do(func() {
		t.err = err
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = t.conn.Close()
		close(t.done)
	})
}

func (t *wsTransport) writePump() {
	for {
		select {
		case msg := <-t.sendCh:
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			err := t.conn.WriteMessage(websocket.TextMessage, msg.payload)
			if err != nil {
				wrapped := fmt.Errorf("%w: writing payload: %v", common.ErrNetwork, err)
				msg.result <- wrapped
				t.fail(wrapped)
				return
			}
			msg.result <- nil
		case <-t.done:
			return
		}
	}
}

func (t *wsTransport) readPump() {
	for {
		_, payload, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
				t.fail(fmt.Errorf("%w: server throttled session", common.ErrRateLimited))
			} else if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.fail(nil)
			} else {
				t.fail(fmt.Errorf("%w: reading payload: %v", common.ErrNetwork, err))
			}
			return
		}

		t.mu.Lock()
		if t.handler == nil {
			t.pending = append(t.pending, payload)
			t.mu.Unlock()
			continue
		}
		handler := t.handler
		t.mu.Unlock()
		handler(payload)
	}
}
