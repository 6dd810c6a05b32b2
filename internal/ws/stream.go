package ws

import (
	"encoding/json"
	"sync"
)

// Stream broadcasts a state value to subscribers. New subscribers receive the latest
// published value first.
type Stream struct {
	hub *Hub

	mu   sync.Mutex
	last []byte
}

func NewStream() *Stream {
	return &Stream{hub: NewHub()}
}

func (s *Stream) Publish(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = data
	s.hub.broadcast(data)
	return nil
}

func (s *Stream) Join(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub.Register(c)
	if s.last != nil {
		c.Deliver(s.last)
	}
}

func (s *Stream) SubscriberCount() int {
	return s.hub.ClientCount()
}
