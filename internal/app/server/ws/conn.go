package ws

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Options tunes a single connection.
type Options struct {
	WriteWait     time.Duration
	PongWait      time.Duration
	MaxFrameBytes int64
	SendBuffer    int
	InboundBuffer int
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 512 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.InboundBuffer <= 0 {
		o.InboundBuffer = 64
	}
	return o
}

func (o Options) pingInterval() time.Duration {
	return (o.PongWait * 9) / 10
}

type WebSocket struct {
	*websocket.Conn
	opts Options
}

func NewWebSocket(conn *websocket.Conn, opts Options) *WebSocket {
	return &WebSocket{Conn: conn, opts: opts.withDefaults()}
}

func (w *WebSocket) WriteMessage(data []byte) error {
	_ = w.Conn.SetWriteDeadline(time.Now().Add(w.opts.WriteWait))
	return w.Conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocket) WritePing() error {
	return w.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.opts.WriteWait))
}

func (w *WebSocket) WriteClose() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return w.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.opts.WriteWait))
}

// ReadLoop delivers text frames to onMsg until the peer goes away or the
// read deadline passes without a pong.
func (w *WebSocket) ReadLoop(log *slog.Logger, onMsg func([]byte) bool) {
	w.Conn.SetReadLimit(w.opts.MaxFrameBytes)
	_ = w.Conn.SetReadDeadline(time.Now().Add(w.opts.PongWait))
	w.Conn.SetPongHandler(func(string) error {
		return w.Conn.SetReadDeadline(time.Now().Add(w.opts.PongWait))
	})

	for {
		kind, data, err := w.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("ws - read - unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		if kind != websocket.TextMessage || len(data) == 0 {
			continue
		}
		if !onMsg(data) {
			return
		}
	}
}

func (w *WebSocket) Close() {
	_ = w.Conn.Close()
}
