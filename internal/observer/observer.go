// Package observer streams live decision-loop steps to websocket clients,
// so a run can be watched without tailing logs. The hub is a loop StepSink:
// every step becomes one JSON event fanned out to the connected clients.
// Slow clients are dropped rather than allowed to stall the loop.
package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/survival-agent/internal/loop"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
)

// clientBuffer is the per-client event backlog; a client that falls this far
// behind is disconnected.
const clientBuffer = 64

// #region events
// StepEvent is the wire format of one observed step.
type StepEvent struct {
	Step     int      `json:"step"`
	Sensors  []string `json:"sensors"`
	Stimulus string   `json:"stimulus,omitempty"`
	Action   string   `json:"action"`
	Reward   float64  `json:"reward"`
	Health   float64  `json:"health"`
	Hunger   float64  `json:"hunger"`
	Fatigue  float64  `json:"fatigue"`
	Dead     bool     `json:"dead"`
	Hazard   bool     `json:"hazard"`
	Night    bool     `json:"night"`
	Message  string   `json:"message"`
}

// #endregion events

// #region hub
// Hub accepts websocket subscribers on /ws and broadcasts step events.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool
	closed  bool
}

type client struct {
	conn *websocket.Conn
	out  chan []byte
}

// NewHub returns a hub with no clients.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]bool),
	}
}

// Handler returns the /ws upgrade handler.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		c := &client{conn: conn, out: make(chan []byte, clientBuffer)}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.clients[c] = true
		h.mu.Unlock()
		h.logger.Info("observer connected", zap.String("remote", conn.RemoteAddr().String()))

		go h.writePump(c)
		h.readPump(c)
	}
}

// readPump drains client messages until disconnect; observers send nothing
// meaningful, the read is only there to notice the close.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer h.drop(c)
	for msg := range c.out {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
		time.Now().Add(time.Second))
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.out)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// OnStep implements loop.StepSink: marshal the step once and fan it out.
func (h *Hub) OnStep(rec loop.StepRecord) {
	event := StepEvent{
		Step:    rec.Step,
		Action:  nodes.Translate(rec.Action),
		Reward:  rec.Reward,
		Health:  rec.Result.Health,
		Hunger:  rec.Result.Hunger,
		Fatigue: rec.Result.Fatigue,
		Dead:    rec.Result.Dead,
		Hazard:  rec.Result.Hazard,
		Night:   rec.Result.Night,
		Message: rec.Result.Message,
	}
	if rec.Stimulus != 0 {
		event.Stimulus = nodes.Translate(rec.Stimulus)
	}
	for _, s := range rec.Sensors {
		event.Sensors = append(event.Sensors, nodes.Translate(s))
	}

	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("step event not marshalable", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.out <- msg:
		default:
			// backlog full: the client is too slow to keep
			delete(h.clients, c)
			close(c.out)
			h.logger.Warn("observer dropped, backlog full",
				zap.String("remote", c.conn.RemoteAddr().String()))
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.out)
	}
}

// #endregion hub

// #region server
// Serve runs an HTTP server exposing the hub on /ws until ctx is cancelled.
func Serve(ctx context.Context, addr string, hub *Hub, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", hub.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("observer listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// #endregion server
