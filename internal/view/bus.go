package view

import (
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// BusMessage is the frame published to the panel hub.
type BusMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    Kind   `json:"kind"`
	Sender  Sender `json:"sender,omitempty"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
	ID      int    `json:"id,omitempty"`
}

// ErrBusDown is returned for events emitted while the hub is unreachable.
var ErrBusDown = errors.New("bus not connected")

const (
	busRedialEvery = 2 * time.Second
	busWriteWait   = time.Second
)

// Bus publishes view events over a websocket. A dropped connection is
// redialled in the background, at most once per busRedialEvery; events
// emitted while the hub is gone are lost.
type Bus struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	dialing  bool
	closed   bool
	lastDial time.Time

	url    string
	from   string
	to     string
	dialer *websocket.Dialer
	dial   func() (*websocket.Conn, error)
}

func NewBus(wsURL, from, to string) (*Bus, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}

	b := &Bus{
		url:  u.String(),
		from: from,
		to:   to,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
	}
	b.dial = b.dialURL

	conn, err := b.dial()
	if err != nil {
		return nil, err
	}
	b.conn = conn
	b.lastDial = time.Now()

	log.Info("Connected to bus", "url", b.url)
	return b, nil
}

func (b *Bus) dialURL() (*websocket.Conn, error) {
	conn, _, err := b.dialer.Dial(b.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bus: %w", err)
	}
	return conn, nil
}

// redialLocked starts a background dial unless one is running or the last
// attempt was too recent. Called with mu held.
func (b *Bus) redialLocked() {
	if b.closed || b.dialing || time.Since(b.lastDial) < busRedialEvery {
		return
	}
	b.dialing = true
	b.lastDial = time.Now()

	go func() {
		conn, err := b.dial()

		b.mu.Lock()
		defer b.mu.Unlock()
		b.dialing = false

		if err != nil {
			log.Debug("Bus redial failed", "url", b.url, "err", err)
			return
		}
		if b.closed || b.conn != nil {
			conn.Close()
			return
		}
		b.conn = conn
		log.Info("Reconnected to bus", "url", b.url)
	}()
}

func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

func (b *Bus) Emit(e Event) error {
	data, err := json.Marshal(&BusMessage{
		From:    b.from,
		To:      b.to,
		Kind:    e.Kind,
		Sender:  e.Sender,
		Content: e.Content,
		HTML:    e.HTML,
		ID:      e.ID,
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		b.redialLocked()
		return ErrBusDown
	}

	b.conn.SetWriteDeadline(time.Now().Add(busWriteWait))
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		b.conn.Close()
		b.conn = nil
		b.redialLocked()
		return fmt.Errorf("write bus: %w", err)
	}
	return nil
}

// drop forgets the current connection, as a failed write would.
func (b *Bus) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := b.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	cerr := b.conn.Close()
	b.conn = nil
	return errors.Join(werr, cerr)
}
