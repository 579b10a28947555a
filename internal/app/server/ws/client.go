package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pulse/internal/core/contracts"
	"pulse/internal/core/domain"
	"pulse/pkg/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one live WebSocket connection. Outbound frames go through a
// bounded buffer drained by a writer goroutine; inbound frames are handed
// over in arrival order on Inbound, which is closed when the peer goes away.
type Client struct {
	id      domain.ConnectionID
	ws      *WebSocket
	log     *slog.Logger
	out     chan []byte
	inbound chan []byte
	done    chan struct{}
	once    sync.Once
}

var _ contracts.Client = (*Client)(nil)

func NewClient(log *slog.Logger, conn *websocket.Conn, opts Options) *Client {
	socket := NewWebSocket(conn, opts)
	id := domain.ConnectionID(uuid.NewString())
	c := &Client{
		id:      id,
		ws:      socket,
		log:     log.With(logging.Connection(id)),
		out:     make(chan []byte, socket.opts.SendBuffer),
		inbound: make(chan []byte, socket.opts.InboundBuffer),
		done:    make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

func (c *Client) ID() domain.ConnectionID { return c.id }

func (c *Client) Inbound() <-chan []byte { return c.inbound }

// Send enqueues data without blocking. out is never closed, so a Send racing
// with Close cannot panic.
func (c *Client) Send(_ context.Context, data []byte) error {
	select {
	case <-c.done:
		return domain.ErrClientClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	default:
		return domain.ErrBufferFull
	}
}

// Close stops the connection. The writer drains queued frames and sends a
// close frame before the socket is released.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) readLoop() {
	defer close(c.inbound)
	defer c.Close()
	c.ws.ReadLoop(c.log, func(data []byte) bool {
		select {
		case c.inbound <- data:
			return true
		case <-c.done:
			return false
		}
	})
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.ws.opts.pingInterval())
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			c.flush()
			_ = c.ws.WriteClose()
			return
		case data := <-c.out:
			if err := c.ws.WriteMessage(data); err != nil {
				c.log.Debug("ws - write - failed", logging.Err(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WritePing(); err != nil {
				c.Close()
				return
			}
		}
	}
}

// flush writes frames that were queued before Close, such as a final error event.
func (c *Client) flush() {
	for {
		select {
		case data := <-c.out:
			if c.ws.WriteMessage(data) != nil {
				return
			}
		default:
			return
		}
	}
}
