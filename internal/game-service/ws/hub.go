package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/command"
	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

const writeWait = 5 * time.Second

// BetPlacer aceita apostas em nome do cliente conectado
type BetPlacer interface {
	PlaceBet(ctx context.Context, c command.Caller, option string, amount int64) (command.BetAccepted, error)
}

// SnapshotSource entrega o estado atual da rodada para quem acabou de conectar
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]events.Envelope, error)
}

// client serializa escritas: broadcast e respostas saem de goroutines diferentes
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *client) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(b)
}

// Hub gerencia as conexões WebSocket. Todo cliente recebe todos os eventos da rodada.
type Hub struct {
	upgrader websocket.Upgrader
	bets     BetPlacer
	snapshot SnapshotSource
	identify func(r *http.Request) command.Caller
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	OnConnect    func()
	OnDisconnect func()
}

func NewHub(allowOrigin func(r *http.Request) bool, bets BetPlacer, snapshot SnapshotSource, identify func(r *http.Request) command.Caller, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		bets:     bets,
		snapshot: snapshot,
		identify: identify,
		log:      log,
		clients:  make(map[*client]struct{}),
	}
}

// HandleWS cuida do ciclo de vida da conexão: snapshot inicial, apostas e ping
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	caller := h.identify(r)
	c := &client{conn: conn}
	h.sendSnapshot(r.Context(), c)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.OnConnect != nil {
		h.OnConnect()
	}

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "placeBet":
			acc, err := h.bets.PlaceBet(r.Context(), caller, msg.Option, msg.AmountCents)
			if err != nil {
				_ = c.writeJSON(Reply{Type: "error", Error: command.Reason(err)})
				continue
			}
			_ = c.writeJSON(Reply{Type: "betPlaced", Payload: &acc})
		case "ping":
			_ = c.writeJSON(Reply{Type: "pong"})
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	if h.OnDisconnect != nil {
		h.OnDisconnect()
	}
}

func (h *Hub) sendSnapshot(ctx context.Context, c *client) {
	if h.snapshot == nil {
		return
	}
	envs, err := h.snapshot.Snapshot(ctx)
	if err != nil {
		h.log.Warn("ws snapshot failed", zap.Error(err))
		return
	}
	for _, env := range envs {
		_ = c.writeJSON(env)
	}
}

// Broadcast envia o envelope para todos os clientes conectados
func (h *Hub) Broadcast(env events.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}

	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.write(b)
	}
}

// Clients é o número de conexões ativas
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
