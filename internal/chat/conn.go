package chat

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/studychat/internal/stats"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

var (
	ErrOffline      = errors.New("chat server unreachable")
	ErrNotConnected = errors.New("not connected")
)

type State int

const (
	StateConnecting State = iota
	StateOnline
	StateReconnecting
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOnline:
		return "online"
	case StateReconnecting:
		return "reconnecting"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// ConnHandler receives connection events. Hello returns the frame to
// announce first on every new connection, or nil.
type ConnHandler interface {
	Hello() *Envelope
	HandleFrame(raw []byte)
	ConnectionChanged(state State)
}

type ConnConfig struct {
	URL string
	// Header returns the handshake headers; it is called on every dial so
	// a refreshed token is picked up.
	Header    func() http.Header
	Backoff   Backoff
	SendRate  rate.Limit
	SendBurst int
}

// Conn keeps a single WebSocket to the chat endpoint open, redialing with
// backoff whenever it drops.
type Conn struct {
	cfg     ConnConfig
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	log     *log.Logger
	stats   stats.StatsProvider
	send    chan *Envelope

	stateLock sync.RWMutex
	state     State
}

func NewConn(cfg ConnConfig, logger *log.Logger, su stats.StatsProvider) *Conn {
	if cfg.Header == nil {
		cfg.Header = func() http.Header { return nil }
	}
	if cfg.SendRate == 0 {
		cfg.SendRate = rate.Inf
	}
	if cfg.SendBurst == 0 {
		cfg.SendBurst = 1
	}

	su.RegisterMetric(stats.Reconnects)
	su.RegisterMetric(stats.MessagesDropped)

	return &Conn{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: writeWait,
		},
		limiter: rate.NewLimiter(cfg.SendRate, cfg.SendBurst),
		log:     logger,
		stats:   su,
		send:    make(chan *Envelope, sendQueueSize),
		state:   StateConnecting,
	}
}

func (c *Conn) State() State {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.state
}

func (c *Conn) setState(h ConnHandler, s State) {
	c.stateLock.Lock()
	changed := c.state != s
	c.state = s
	c.stateLock.Unlock()

	if changed {
		c.log.Printf("connection %s", s)
		h.ConnectionChanged(s)
	}
}

// Send queues a frame for the writer. Frames queued while reconnecting are
// flushed once the new connection has announced itself. It reports false
// if the connection has given up or the queue is full.
func (c *Conn) Send(e *Envelope) bool {
	if c.State() == StateOffline {
		return false
	}

	select {
	case c.send <- e:
	default:
		c.log.Println("failed to queue frame, send queue is full")
		c.stats.Incr(stats.MessagesDropped)
		return false
	}

	return true
}

// Run dials and serves the connection until ctx is done or the backoff
// policy is exhausted, in which case it returns ErrOffline.
func (c *Conn) Run(ctx context.Context, h ConnHandler) error {
	failures := 0
	connected := false

	for {
		if connected || failures > 0 {
			c.setState(h, StateReconnecting)
		} else {
			c.setState(h, StateConnecting)
		}

		ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header())
		if err != nil {
			if ctx.Err() != nil {
				c.setState(h, StateOffline)
				return ctx.Err()
			}

			failures++
			delay, ok := c.cfg.Backoff.Delay(failures)
			if !ok {
				c.log.Printf("dial: %v, giving up after %d attempts", err, failures)
				c.setState(h, StateOffline)
				return ErrOffline
			}

			c.log.Printf("dial: %v, retrying in %s", err, delay)
			if !sleep(ctx, delay) {
				c.setState(h, StateOffline)
				return ctx.Err()
			}
			continue
		}

		if connected {
			c.stats.Incr(stats.Reconnects)
		}
		failures = 0
		connected = true

		c.serve(ctx, ws, h)

		if ctx.Err() != nil {
			c.setState(h, StateOffline)
			return ctx.Err()
		}

		delay, _ := c.cfg.Backoff.Delay(1)
		c.log.Printf("connection closed, reconnecting in %s", delay)
		if !sleep(ctx, delay) {
			c.setState(h, StateOffline)
			return ctx.Err()
		}
	}
}

// serve runs one connection's read and write pumps and returns when
// either side fails.
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn, h ConnHandler) {
	if hello := h.Hello(); hello != nil {
		bytes, err := serializeEnvelope(hello)
		if err != nil {
			c.log.Println("failed to serialize hello:", err)
			ws.Close()
			return
		}
		if !c.sendMessage(ws, websocket.TextMessage, bytes) {
			ws.Close()
			return
		}
	}

	c.setState(h, StateOnline)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Write(ctx, ws, stop)
	}()

	c.Read(ws, h)
	close(stop)
	wg.Wait()
}

func (c *Conn) Write(ctx context.Context, ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeEnvelope(msg)
			if err != nil {
				c.log.Println("failed to serialize frame:", err)
				continue
			}

			if err := c.limiter.Wait(ctx); err != nil {
				return
			}

			if !c.sendMessage(ws, websocket.TextMessage, bytes) {
				c.stats.Incr(stats.MessagesDropped)
				return
			}
		case <-ticker.C:
			if !c.sendMessage(ws, websocket.PingMessage, nil) {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Conn) Read(ws *websocket.Conn, h ConnHandler) {
	defer ws.Close()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		msgType, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}
		h.HandleFrame(raw)
	}
}

func (c *Conn) sendMessage(ws *websocket.Conn, msgType int, msg []byte) bool {
	ws.SetWriteDeadline(time.Now().Add(writeWait))

	if err := ws.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}
