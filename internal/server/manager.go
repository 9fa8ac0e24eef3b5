package server

import (
	"log/slog"
	"sync"
)

// ConnectionManager tracks the connections currently being served.
// It never touches the strategy registry.
type ConnectionManager struct {
	clients map[string]*connection // key: connection ID
	mu      sync.RWMutex
	logger  *slog.Logger
}

func NewConnectionManager(logger *slog.Logger) *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*connection),
		logger:  logger,
	}
}

func (m *ConnectionManager) Add(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
	m.logger.Debug("client_added",
		"client_id", c.ID,
	)
}

func (m *ConnectionManager) Remove(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, c.ID)
	m.logger.Debug("client_removed",
		"client_id", c.ID,
	)
}

func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CloseAll closes every tracked connection. The connection goroutines see
// the closed socket and unregister themselves.
func (m *ConnectionManager) CloseAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, c := range m.clients {
		c.Close()
		m.logger.Info("client_connection_closed",
			"client_id", id,
		)
	}
}
