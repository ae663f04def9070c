// Package broadcast fans out the demultiplexer's emitted byte stream to any
// number of connected TCP clients, the way the teacher's gateway package
// proxies one upstream to one HTTP client — generalized here to many
// downstream consumers of a single filtered feed, since Drive produces one
// ordered byte stream that several tools (a player, a recorder) may want to
// tap concurrently.
package broadcast

import (
	"log"
	"net"
	"sync"
)

// Hub accepts TCP connections on one listener and writes every buffer
// passed to Write out to each currently connected client. A client whose
// write fails (for example, one that disconnected) is dropped. Writes have
// no deadline and run one client at a time, so a slow client delays the others.
type Hub struct {
	mu      sync.Mutex
	clients map[net.Conn]struct{}
	ln      net.Listener
}

// NewHub starts listening on addr and returns a Hub ready to accept clients.
func NewHub(addr string) (*Hub, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	h := &Hub{clients: make(map[net.Conn]struct{}), ln: ln}
	go h.acceptLoop()
	return h, nil
}

func (h *Hub) acceptLoop() {
	for {
		conn, err := h.ln.Accept()
		if err != nil {
			return // listener closed
		}
		h.mu.Lock()
		h.clients[conn] = struct{}{}
		h.mu.Unlock()
		log.Printf("broadcast: client connected remote=%s total=%d", conn.RemoteAddr(), h.clientCount())
	}
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Write sends buf to every connected client, dropping any that error.
// Matches io.Writer so a Hub can sit wherever a single output sink is
// expected; it never returns an error of its own (a broadcast to zero or
// failing clients is not a failure of the demultiplexer loop).
func (h *Hub) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if _, err := c.Write(buf); err != nil {
			c.Close()
			delete(h.clients, c)
		}
	}
	return len(buf), nil
}

// Close stops accepting new clients and disconnects everyone currently
// connected.
func (h *Hub) Close() error {
	err := h.ln.Close()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
	return err
}
