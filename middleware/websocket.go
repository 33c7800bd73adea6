package middleware

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrpasztoradam/goadsrt"
)

// WebSocketMessage is the envelope for both directions of the stream.
type WebSocketMessage struct {
	// Type is "subscribe", "unsubscribe", "subscribed", "unsubscribed",
	// "data" or "error".
	Type      string    `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Size      uint32    `json:"size,omitempty"`
	CycleMS   int       `json:"cycle_ms,omitempty"`
	OnChange  bool      `json:"on_change,omitempty"`
	Data      []byte    `json:"data,omitempty"` // base64 in JSON
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// wsSession serializes writes to one WebSocket connection, since gorilla
// permits only one concurrent writer.
type wsSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsSession) writeJSON(msg WebSocketMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// wsSubscription is one live notification forwarded to a WebSocket client.
type wsSubscription struct {
	id     string
	symbol string
	sub    *goadsrt.Subscription
	done   chan struct{}
}

// SubscriptionManager tracks device notifications streamed over WebSocket.
// Each subscription is a real ADS device notification; samples are pushed
// by the PLC, not polled.
type SubscriptionManager struct {
	gateway *Gateway

	mu   sync.Mutex
	subs map[*wsSession]map[string]*wsSubscription
}

// NewSubscriptionManager creates a new subscription manager.
func NewSubscriptionManager(gateway *Gateway) *SubscriptionManager {
	return &SubscriptionManager{
		gateway: gateway,
		subs:    make(map[*wsSession]map[string]*wsSubscription),
	}
}

// Count returns the number of active subscriptions across all connections.
func (sm *SubscriptionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.countLocked()
}

func (sm *SubscriptionManager) countLocked() int {
	n := 0
	for _, conns := range sm.subs {
		n += len(conns)
	}
	return n
}

// subscribe registers a device notification and starts forwarding samples.
func (sm *SubscriptionManager) subscribe(session *wsSession, msg WebSocketMessage) error {
	if msg.Symbol == "" {
		return NewInvalidRequestError("symbol is required")
	}
	if msg.Size == 0 {
		return NewInvalidRequestError("size is required")
	}

	sm.mu.Lock()
	if sm.countLocked() >= sm.gateway.config.Gateway.MaxSubscriptions {
		sm.mu.Unlock()
		return NewSubscriptionLimitError(sm.gateway.config.Gateway.MaxSubscriptions)
	}
	if conns, ok := sm.subs[session]; ok {
		if _, exists := conns[msg.RequestID]; exists {
			sm.mu.Unlock()
			return NewInvalidRequestError("subscription ID already exists")
		}
	}
	sm.mu.Unlock()

	mode := goadsrt.TransServerCycle
	if msg.OnChange {
		mode = goadsrt.TransServerOnChange
	}
	cycle := time.Duration(msg.CycleMS) * time.Millisecond
	if cycle <= 0 {
		cycle = time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), sm.gateway.config.Timeout())
	defer cancel()

	sub, err := sm.gateway.handle(msg.Symbol).Subscribe(ctx, goadsrt.Attributes{
		Length:    msg.Size,
		Mode:      mode,
		CycleTime: cycle,
		Buffer:    sm.gateway.config.Gateway.WebSocketBufferSize,
	})
	if err != nil {
		return FromClientError(msg.Symbol, err)
	}

	ws := &wsSubscription{
		id:     msg.RequestID,
		symbol: msg.Symbol,
		sub:    sub,
		done:   make(chan struct{}),
	}

	sm.mu.Lock()
	conns, ok := sm.subs[session]
	if !ok {
		conns = make(map[string]*wsSubscription)
		sm.subs[session] = conns
	}
	conns[msg.RequestID] = ws
	sm.mu.Unlock()

	go sm.forward(session, ws)
	return nil
}

// forward pushes notification samples to the WebSocket until the
// subscription or the connection ends.
func (sm *SubscriptionManager) forward(session *wsSession, ws *wsSubscription) {
	for {
		select {
		case <-ws.done:
			return
		case n, ok := <-ws.sub.Notifications():
			if !ok {
				return
			}
			msg := WebSocketMessage{
				Type:      "data",
				RequestID: ws.id,
				Symbol:    ws.symbol,
				Data:      n.Data,
				Timestamp: n.Timestamp,
			}
			if err := session.writeJSON(msg); err != nil {
				log.Printf("websocket send failed, dropping subscription %s: %v", ws.id, err)
				sm.remove(session, ws.id)
				return
			}
		}
	}
}

// remove detaches and closes one subscription.
func (sm *SubscriptionManager) remove(session *wsSession, id string) *wsSubscription {
	sm.mu.Lock()
	conns, ok := sm.subs[session]
	if !ok {
		sm.mu.Unlock()
		return nil
	}
	ws, ok := conns[id]
	if !ok {
		sm.mu.Unlock()
		return nil
	}
	delete(conns, id)
	if len(conns) == 0 {
		delete(sm.subs, session)
	}
	sm.mu.Unlock()

	close(ws.done)
	if err := ws.sub.Close(); err != nil {
		log.Printf("failed to delete notification for %s: %v", ws.symbol, err)
	}
	return ws
}

// removeAll closes every subscription of one connection.
func (sm *SubscriptionManager) removeAll(session *wsSession) {
	sm.mu.Lock()
	conns := sm.subs[session]
	delete(sm.subs, session)
	sm.mu.Unlock()

	for _, ws := range conns {
		close(ws.done)
		if err := ws.sub.Close(); err != nil {
			log.Printf("failed to delete notification for %s: %v", ws.symbol, err)
		}
	}
}

// HandleConnection runs the message loop for one WebSocket connection.
func (sm *SubscriptionManager) HandleConnection(conn *websocket.Conn) {
	defer conn.Close()

	session := &wsSession{conn: conn}

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			session.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			session.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	for {
		var msg WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		switch msg.Type {
		case "subscribe":
			if err := sm.subscribe(session, msg); err != nil {
				sm.sendError(session, msg.RequestID, err.Error())
				continue
			}
			session.writeJSON(WebSocketMessage{
				Type:      "subscribed",
				RequestID: msg.RequestID,
				Symbol:    msg.Symbol,
				Timestamp: time.Now().UTC(),
			})

		case "unsubscribe":
			if ws := sm.remove(session, msg.RequestID); ws == nil {
				sm.sendError(session, msg.RequestID, "subscription not found")
				continue
			}
			session.writeJSON(WebSocketMessage{
				Type:      "unsubscribed",
				RequestID: msg.RequestID,
				Timestamp: time.Now().UTC(),
			})

		default:
			sm.sendError(session, msg.RequestID, "unknown message type")
		}
	}

	sm.removeAll(session)
}

// sendError sends an error message via WebSocket.
func (sm *SubscriptionManager) sendError(session *wsSession, requestID, message string) {
	session.writeJSON(WebSocketMessage{
		Type:      "error",
		RequestID: requestID,
		Error:     message,
		Timestamp: time.Now().UTC(),
	})
}
