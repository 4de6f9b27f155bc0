// Package sse keeps track of Server-Sent Events subscribers per post.
package sse

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/debemdeboas/drafthouse/internal/model"
)

const clientBuffer = 8

type Event struct {
	Name string
	Data string
}

// WriteTo writes e in the text/event-stream format.
func (e Event) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	if e.Name != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Name)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

type Client struct {
	Events chan Event
	PostID model.PostID
}

func NewClient(postID model.PostID) *Client {
	return &Client{
		Events: make(chan Event, clientBuffer),
		PostID: postID,
	}
}

type SSEClients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewSSEClients() *SSEClients {
	return &SSEClients{
		clients: make(map[*Client]bool),
	}
}

func (s *SSEClients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *SSEClients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[client] {
		delete(s.clients, client)
		close(client.Events)
	}
}

func (s *SSEClients) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends e to every subscriber of postID. Subscribers that are not
// keeping up miss the event.
func (s *SSEClients) Broadcast(postID model.PostID, e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		if client.PostID == postID {
			select {
			case client.Events <- e:
			default:
			}
		}
	}
}
