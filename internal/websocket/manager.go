package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"sheetnotes/internal/logging"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager tracks open sockets per user and fans change notifications out
// to them.
type Manager struct {
	clients        map[string]*Client
	userIndex      map[string]map[string]bool
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	maxConnPerUser int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	logger         logging.Logger
	done           chan struct{}
}

func NewManager(maxConnPerUser int, writeWait, pongWait, pingPeriod time.Duration, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		HandleMessage:  make(chan *ClientMessage),
		maxConnPerUser: maxConnPerUser,
		writeWait:      writeWait,
		pongWait:       pongWait,
		pingPeriod:     pingPeriod,
		logger:         logger,
		done:           make(chan struct{}),
	}
}

// Run serves registrations and inbound messages until ctx is done, then
// closes every client.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)

		case <-ctx.Done():
			close(m.done)
			m.closeAll()
			return
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.userIndex[client.UserID] == nil {
		m.userIndex[client.UserID] = make(map[string]bool)
	}

	if len(m.userIndex[client.UserID]) >= m.maxConnPerUser {
		m.logger.Warn(context.Background(), "max connections reached", "user_id", client.UserID)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.userIndex[client.UserID][client.ID] = true

	m.logger.Debug(context.Background(), "client registered", "client_id", client.ID, "user_id", client.UserID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	m.remove(client)
}

func (m *Manager) remove(client *Client) {
	if _, ok := m.clients[client.ID]; !ok {
		return
	}

	delete(m.clients, client.ID)
	delete(m.userIndex[client.UserID], client.ID)
	if len(m.userIndex[client.UserID]) == 0 {
		delete(m.userIndex, client.UserID)
	}

	close(client.Send)
	m.logger.Debug(context.Background(), "client unregistered", "client_id", client.ID)
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for _, client := range m.clients {
		m.remove(client)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.logger.Debug(context.Background(), "ignoring malformed message", "client_id", clientMsg.Client.ID, "error", err)
		return
	}

	if msg.Type == TypePing {
		if err := m.SendToClient(clientMsg.Client.ID, &Message{Type: TypePong, Timestamp: time.Now()}); err != nil {
			m.logger.Warn(context.Background(), "failed to answer ping", "client_id", clientMsg.Client.ID, "error", err)
		}
	}
}

// BroadcastToUser queues message for every socket of userID. Clients whose
// buffer is full are dropped.
func (m *Manager) BroadcastToUser(userID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var slow []*Client

	m.clientsMutex.RLock()
	for clientID := range m.userIndex[userID] {
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
		default:
			m.logger.Warn(context.Background(), "send buffer full, closing connection", "client_id", clientID)
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	if len(slow) > 0 {
		m.clientsMutex.Lock()
		for _, client := range slow {
			m.remove(client)
		}
		m.clientsMutex.Unlock()
	}

	return nil
}

// NotifyNotesChanged tells every socket of userID to reload.
func (m *Manager) NotifyNotesChanged(userID, reason string) {
	msg, err := NewMessage(TypeNotesChanged, &NotesChangedPayload{Reason: reason})
	if err != nil {
		m.logger.Error(context.Background(), "failed to build change message", "user_id", userID, "error", err)
		return
	}
	if err := m.BroadcastToUser(userID, msg); err != nil {
		m.logger.Error(context.Background(), "failed to broadcast change", "user_id", userID, "error", err)
	}
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.logger.Warn(context.Background(), "send buffer full", "client_id", clientID)
	}

	return nil
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if clients, exists := m.userIndex[userID]; exists {
		return len(clients)
	}
	return 0
}
