// Package feed serves a live event stream for the daemon.
//
// Clients connect to GET /ws and receive one JSON Message per event:
// sync results, due reminders and store counts. GET /health and
// GET /api/stats answer plain JSON.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/todoee/todoee/internal/db"
)

// MessageType names the event a Message carries.
type MessageType string

const (
	// MessageTypeSync reports a finished or failed sync.
	MessageTypeSync MessageType = "sync"

	// MessageTypeReminder reports a todo whose reminder is due.
	MessageTypeReminder MessageType = "reminder"

	// MessageTypeStats reports store counts.
	MessageTypeStats MessageType = "stats"
)

// Message is one broadcast event.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncData describes a sync pass.
type SyncData struct {
	Uploaded   int    `json:"uploaded"`
	Downloaded int    `json:"downloaded"`
	Removed    int    `json:"removed"`
	Conflicts  int    `json:"conflicts"`
	Rejected   int    `json:"rejected"`
	Deletes    int    `json:"deletes_pushed"`
	Offline    bool   `json:"offline,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// ReminderData describes a due reminder.
type ReminderData struct {
	TodoID     string     `json:"todo_id"`
	Title      string     `json:"title"`
	ReminderAt time.Time  `json:"reminder_at"`
	DueDate    *time.Time `json:"due_date,omitempty"`
}

// StatsData mirrors db.Stats.
type StatsData struct {
	Todos          int `json:"todos"`
	OpenTodos      int `json:"open_todos"`
	Categories     int `json:"categories"`
	Operations     int `json:"operations"`
	Stashed        int `json:"stashed"`
	PendingUploads int `json:"pending_uploads"`
	Tombstones     int `json:"tombstones"`
}

// NewStatsData converts store counts.
func NewStatsData(s *db.Stats) StatsData {
	return StatsData{
		Todos:          s.Todos,
		OpenTodos:      s.OpenTodos,
		Categories:     s.Categories,
		Operations:     s.Operations,
		Stashed:        s.Stashed,
		PendingUploads: s.PendingUploads,
		Tombstones:     s.Tombstones,
	}
}

// StatsFunc reads current store counts.
type StatsFunc func(ctx context.Context) (*db.Stats, error)

// Config holds server configuration.
type Config struct {
	// Addr to listen on, e.g. "127.0.0.1:7420". Port 0 picks a free port.
	Addr string

	// Stats answers /api/stats and the greeting sent to new clients.
	Stats StatsFunc

	// Logger for server activity. Nil discards.
	Logger *logrus.Logger
}

// Server manages WebSocket connections and broadcasts messages.
type Server struct {
	addr     string
	stats    StatsFunc
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *logrus.Entry
}

// NewServer creates a feed server. Call Start to listen.
func NewServer(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	if config.Addr == "" {
		config.Addr = "127.0.0.1:7420"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      config.Addr,
		stats:     config.Stats,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		log:       logger.WithField("component", "feed"),
	}
}

// Handler returns the HTTP routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	return mux
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		s.log.WithField("addr", ln.Addr().String()).Info("feed listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("feed server failed")
		}
	}()
	return nil
}

// Stop closes every client and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("feed shutdown: %w", shutdownErr)
		}
	}

	s.wg.Wait()
	return err
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Publish marshals data and queues it for every client. Messages are
// dropped when the queue is full.
func (s *Server) Publish(typ MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.log.WithError(err).Warn("failed to marshal event")
		return
	}
	msg := Message{Type: typ, Timestamp: time.Now().UTC(), Data: raw}

	select {
	case <-s.ctx.Done():
	case s.broadcast <- msg:
	default:
		s.log.WithField("type", typ).Warn("broadcast queue full, dropping event")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.log.WithError(err).Warn("failed to marshal message")
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := s.write(conn, data); err != nil {
					s.log.WithError(err).Debug("dropping client")
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.log.WithField("clients", count).Debug("client connected")

	// Greet with current counts so a new client has state before the next event.
	if greeting, err := s.statsMessage(r.Context()); err == nil {
		if data, err := json.Marshal(greeting); err == nil {
			_ = s.write(conn, data)
		}
	}

	go s.readLoop(conn)
}

// readLoop discards client frames and notices disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, ok := s.clients[conn]; !ok {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	count := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.log.WithField("clients", count).Debug("client disconnected")
}

func (s *Server) statsMessage(ctx context.Context) (Message, error) {
	msg := Message{Type: MessageTypeStats, Timestamp: time.Now().UTC()}
	if s.stats == nil {
		return msg, nil
	}
	st, err := s.stats(ctx)
	if err != nil {
		return msg, err
	}
	msg.Data, err = json.Marshal(NewStatsData(st))
	return msg, err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stats unavailable"})
		return
	}
	st, err := s.stats(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("failed to read stats")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, NewStatsData(st))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
