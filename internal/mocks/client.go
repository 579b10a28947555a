// Package mocks provides in-memory doubles of the real-time core's
// collaborators for use in tests.
package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"pulse/internal/core/domain"
)

// Client records every frame it is sent.
type Client struct {
	id domain.ConnectionID

	mu     sync.Mutex
	frames []domain.Envelope
	closed bool
	// Fail makes every Send return domain.ErrBufferFull.
	Fail bool
	// OnClose runs once when Close is first called.
	OnClose func()
}

func NewClient(id string) *Client {
	return &Client{id: domain.ConnectionID(id)}
}

func (c *Client) ID() domain.ConnectionID { return c.id }

func (c *Client) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrClientClosed
	}
	if c.Fail {
		return domain.ErrBufferFull
	}
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	onClose := c.OnClose
	c.mu.Unlock()
	if onClose != nil {
		onClose()
	}
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Frames returns a copy of all received envelopes.
func (c *Client) Frames() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Envelope(nil), c.frames...)
}

// Events returns every received envelope with the given event name.
func (c *Client) Events(event string) []domain.Envelope {
	var out []domain.Envelope
	for _, f := range c.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (c *Client) Count(event string) int {
	return len(c.Events(event))
}

// Decode unmarshals the data of an envelope into T.
func Decode[T any](env domain.Envelope) T {
	var v T
	_ = json.Unmarshal(env.Data, &v)
	return v
}

func (c *Client) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}
