package diag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/pkg/prof"
	"github.com/ardnew/softtmc/tmc"
)

// DefaultInterval is the websocket broadcast period.
const DefaultInterval = 500 * time.Millisecond

// Source provides counter snapshots. *tmc.Engine implements Source.
type Source interface {
	Stats() tmc.Stats
}

// Frame is the JSON message sent to websocket clients.
type Frame struct {
	Stats tmc.Stats `json:"stats"`
	Stamp int64     `json:"stamp"` // Unix ms
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server publishes diagnostics for one engine.
type Server struct {
	src      Source
	addr     string
	interval time.Duration

	clients      map[*client]struct{}
	clientsMutex sync.RWMutex

	upgrader websocket.Upgrader
}

// New creates a server listening on addr. A zero interval selects
// DefaultInterval.
func New(src Source, addr string, interval time.Duration) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Server{
		src:      src,
		addr:     addr,
		interval: interval,
		clients:  make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes. Profiling builds also serve
// /debug/pprof/.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWS)
	prof.Register(mux)
	return mux
}

// Run serves HTTP and broadcasts snapshots until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go s.Stream(ctx)
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	pkg.LogInfo(pkg.ComponentDiag, "listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stream broadcasts a snapshot every interval until ctx is cancelled.
func (s *Server) Stream(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			if data, err := s.frame(); err == nil {
				s.broadcast(data)
			}
		}
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

func (s *Server) frame() ([]byte, error) {
	return json.Marshal(Frame{
		Stats: s.src.Stats(),
		Stamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := json.Marshal(s.src.Stats())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		pkg.LogWarn(pkg.ComponentDiag, "upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
	}
	if data, err := s.frame(); err == nil {
		c.send <- data
	}

	s.clientsMutex.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.clientsMutex.Unlock()
	pkg.LogDebug(pkg.ComponentDiag, "client connected", "clients", n)

	// Writer
	go func() {
		defer conn.Close()
		for msg := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader; clients send nothing, but reads detect disconnects.
	go func() {
		defer s.drop(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// drop removes c and closes its send channel once.
func (s *Server) drop(c *client) {
	s.clientsMutex.Lock()
	_, ok := s.clients[c]
	if ok {
		delete(s.clients, c)
		close(c.send)
	}
	n := len(s.clients)
	s.clientsMutex.Unlock()
	if ok {
		pkg.LogDebug(pkg.ComponentDiag, "client disconnected", "clients", n)
	}
}

func (s *Server) closeAll() {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// broadcast queues data for every client, skipping clients whose queue is
// full.
func (s *Server) broadcast(data []byte) {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}
