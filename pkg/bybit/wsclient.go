package bybit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnState describes where the client currently is in its connect/reconnect
// cycle. Stopped is terminal and only reached through context cancellation.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateStopped      ConnState = "stopped"
)

const (
	defaultPingInterval = 20 * time.Second
	defaultReadTimeout  = 40 * time.Second
	maxBackoff          = 60 * time.Second
)

// WSClient maintains exactly one live WebSocket connection to Bybit's public
// market stream, resubscribing after every reconnect. Inbound frames are
// passed verbatim to the registered message handler, which runs on the read
// loop goroutine so frames are processed strictly in arrival order.
type WSClient struct {
	url          string
	args         []string
	handler      func([]byte)
	logger       *zap.Logger
	pingInterval time.Duration
	readTimeout  time.Duration

	mu    sync.Mutex
	state ConnState
}

// NewWSClient creates a new WebSocket client for the given URL and fixed
// subscription topic set.
func NewWSClient(url string, args []string, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:          url,
		args:         args,
		logger:       logger,
		pingInterval: defaultPingInterval,
		readTimeout:  defaultReadTimeout,
		state:        StateDisconnected,
	}
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// SetKeepAlive overrides the ping cadence and the per-read deadline. The
// read deadline must comfortably exceed the ping interval, since the server's
// pong is usually the only traffic on a quiet market.
func (c *WSClient) SetKeepAlive(pingInterval, readTimeout time.Duration) {
	if pingInterval > 0 {
		c.pingInterval = pingInterval
	}
	if readTimeout > 0 {
		c.readTimeout = readTimeout
	}
}

// State returns the current connection state.
func (c *WSClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *WSClient) setState(s ConnState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Info("connection state changed",
			zap.String("from", string(prev)), zap.String("to", string(s)))
	}
}

// Run drives the connect → subscribe → read → reconnect cycle until ctx is
// cancelled. Transport errors never escape: each failure is logged, counted,
// and answered with an exponential backoff of min(2^k, 60) seconds, where k
// resets to zero after every successful connect+subscribe handshake.
func (c *WSClient) Run(ctx context.Context) {
	defer c.setState(StateStopped)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)
		conn, err := c.connect(ctx)
		if err != nil {
			c.setState(StateDisconnected)
			delay := backoffDelay(failures)
			failures++
			c.logger.Warn("connect failed",
				zap.String("url", c.url),
				zap.Int("consecutive_failures", failures),
				zap.Duration("retry_in", delay),
				zap.Error(err))
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}

		failures = 0
		c.setState(StateConnected)

		err = c.serve(ctx, conn)
		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return
		}

		delay := backoffDelay(failures)
		failures++
		c.logger.Warn("connection lost",
			zap.Duration("retry_in", delay),
			zap.Error(err))
		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

// connect dials the endpoint and issues the full subscription request.
// Server-side subscription state is not assumed to survive a reconnect.
func (c *WSClient) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}

	sub := SubscribeRequest{
		Op:    "subscribe",
		Args:  c.args,
		ReqID: uuid.NewString(),
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.logger.Info("subscribed",
		zap.String("url", c.url), zap.Strings("args", c.args))
	return conn, nil
}

// serve owns one established connection: it runs the keep-alive ticker on a
// side goroutine and reads frames until the connection dies or ctx ends.
func (c *WSClient) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()

	// Unblock the read loop on shutdown.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go c.keepAlive(conn, done)

	for {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// keepAlive emits the application-level {"op":"ping"} frame on a fixed
// interval while the connection is up. It never touches market state, so it
// cannot race with the read loop's handlers.
func (c *WSClient) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(PingRequest{Op: "ping"}); err != nil {
				c.logger.Warn("failed to send ping", zap.Error(err))
				_ = conn.Close() // surface the failure to the read loop
				return
			}
			c.logger.Debug("ping sent")
		}
	}
}

// backoffDelay returns min(2^failures, 60) seconds.
func backoffDelay(failures int) time.Duration {
	if failures > 5 {
		return maxBackoff
	}
	d := time.Duration(1<<uint(failures)) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// sleepCtx waits for the given duration, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
