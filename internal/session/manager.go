package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/nano-relay/internal/model"
	"github.com/rickgao/nano-relay/internal/queue"
)

// Manager accepts and tracks client sessions.
type Manager struct {
	cfg      Config
	handler  Handler
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[model.ClientID]*session
	closed   bool

	wg sync.WaitGroup
}

// NewManager creates a session manager that dispatches to handler.
func NewManager(cfg Config, handler Handler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	return &Manager{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "sessions"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients connect from any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[model.ClientID]*session),
	}
}

// ServeHTTP upgrades the request and runs the client session.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	count, closed := len(m.sessions), m.closed
	m.mu.RUnlock()

	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	if m.cfg.MaxClients > 0 && count >= m.cfg.MaxClients {
		http.Error(w, "max connections reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := &session{
		id:   model.NewClientID(),
		conn: conn,
		out:  queue.New[[]byte](16, m.cfg.BufferSize),
		done: make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.handler.Connected(s.id)
	m.logger.Info("client connected", "client_id", s.id, "remote", r.RemoteAddr)

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.writeLoop(s)
	}()
	go func() {
		defer m.wg.Done()
		m.readLoop(s)
	}()
	if m.cfg.PingInterval > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.pingLoop(s)
		}()
	}
}

// Deliver queues a frame for one client. A client whose queue is full is
// disconnected.
func (m *Manager) Deliver(id model.ClientID, data []byte) error {
	m.mu.RLock()
	s, ok := m.sessions[id]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}
	if !ok {
		return ErrUnknownClient
	}

	switch err := s.out.Push(data); {
	case errors.Is(err, queue.ErrFull):
		m.logger.Warn("client too slow, disconnecting", "client_id", id, "queued", s.out.Len())
		s.close()
		return ErrClientBufferFull
	case err != nil:
		return ErrUnknownClient
	}
	return nil
}

// Count returns the number of connected clients.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll disconnects every client and waits for their loops to finish.
// New connections are refused afterwards.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		s.close()
	}

	m.wg.Wait()
	m.logger.Info("all clients closed", "count", len(sessions))
}

// readLoop reads control messages until the connection fails, then cleans up.
func (m *Manager) readLoop(s *session) {
	defer func() {
		m.mu.Lock()
		delete(m.sessions, s.id)
		m.mu.Unlock()

		s.close()
		m.handler.Disconnected(s.id)
		m.logger.Info("client disconnected", "client_id", s.id)
	}()

	s.conn.SetReadLimit(m.cfg.MaxMessageSize)
	m.extendDeadline(s)
	s.conn.SetPongHandler(func(string) error {
		m.extendDeadline(s)
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("client read error", "client_id", s.id, "error", err)
			}
			return
		}
		m.extendDeadline(s)
		m.dispatch(s.id, data)
	}
}

// dispatch decodes one control message and hands it to the handler.
func (m *Manager) dispatch(id model.ClientID, data []byte) {
	var req model.ClientRequest
	if err := json.Unmarshal(data, &req); err != nil {
		m.logger.Debug("dropping malformed client message", "client_id", id, "error", err)
		return
	}

	switch req.Action {
	case model.ActionRegisterAccount:
		m.handler.RegisterAccount(id, req.Account)
	case model.ActionUnregisterAccount:
		m.handler.UnregisterAccount(id, req.Account)
	case model.ActionListenAll:
		m.handler.ListenAll(id, true)
	case model.ActionUnlistenAll:
		m.handler.ListenAll(id, false)
	case model.ActionWorkGenerate:
		m.handler.WorkGenerate(id, req.Hash)
	default:
		m.logger.Debug("ignoring unknown action", "client_id", id, "action", req.Action)
	}
}

// writeLoop drains the client's queue onto the socket.
func (m *Manager) writeLoop(s *session) {
	for {
		data, ok := s.out.Pop()
		if !ok {
			return
		}

		if m.cfg.WriteTimeout > 0 {
			s.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			m.logger.Debug("client write failed", "client_id", s.id, "error", err)
			s.close()
			return
		}
	}
}

func (m *Manager) pingLoop(s *session) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(time.Second)
			if m.cfg.WriteTimeout > 0 {
				deadline = time.Now().Add(m.cfg.WriteTimeout)
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				m.logger.Debug("ping failed, closing client", "client_id", s.id, "error", err)
				s.close()
				return
			}
		}
	}
}

func (m *Manager) extendDeadline(s *session) {
	if m.cfg.PingInterval <= 0 {
		return
	}
	s.conn.SetReadDeadline(time.Now().Add(2 * m.cfg.PingInterval))
}

// session is one client connection.
type session struct {
	id   model.ClientID
	conn *websocket.Conn
	out  *queue.Queue[[]byte]
	done chan struct{}

	closeOnce sync.Once
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.out.Close()
		s.conn.Close()
	})
}
