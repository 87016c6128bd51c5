package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/FinnMacCumail/claude-agentic-netbox/internal/agent"
	"github.com/FinnMacCumail/claude-agentic-netbox/internal/gateway/protocol"
	"github.com/FinnMacCumail/claude-agentic-netbox/internal/gateway/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// slowConsumerTimeout is how long emit blocks trying to hand a chunk
	// to a saturated send queue before giving up on the connection.
	slowConsumerTimeout = 5 * time.Second
)

// connection owns one upgraded WebSocket and the Session bound to it.
// Exactly three goroutines share its lifetime: the inbound reader, the
// outbound writer, and (while a turn is in flight) one event pump.
type connection struct {
	id     string
	conn   *websocket.Conn
	sess   *session.Session
	server *Server
	logger *slog.Logger
	cancel context.CancelFunc

	send     chan []byte
	writeMu  sync.Mutex
	slowOnce sync.Once
}

// handleWebSocket upgrades the request, opens a Session, and drives its
// traffic until the connection closes.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	connID := uuid.New().String()
	logger := s.logger.With("connection_id", connID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scope := agent.DefaultNetboxToolScope()
	factory := agent.Factory(s.cfg, s.registry, scope, logger)

	sess, err := session.New(ctx, connID, s.cfg.DefaultModelID, factory)
	if err != nil {
		logger.Error("failed to open session", "error", err)
		chunk := protocol.NewErrorChunk(protocol.ErrToolBackendUnavailable)
		if data, encErr := chunk.Encode(); encErr == nil {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
		_ = conn.Close()
		return
	}
	s.sessions.Add(sess)
	defer s.sessions.Remove(connID)

	cn := &connection{
		id:     connID,
		conn:   conn,
		sess:   sess,
		server: s,
		logger: logger,
		cancel: cancel,
		send:   make(chan []byte, 64),
	}

	descriptor, _ := s.registry.Lookup(sess.CurrentModelID())
	connected := protocol.StreamChunk{
		Type:    protocol.ChunkConnected,
		Content: fmt.Sprintf("connected to netboxgw, talking to %s", descriptor.Name),
		Metadata: map[string]any{
			"model": map[string]any{
				"id":     descriptor.ID,
				"name":   descriptor.Name,
				"isAuto": descriptor.ID == "auto",
			},
		},
	}
	if data, err := connected.Encode(); err == nil {
		cn.send <- data
	}

	logger.Info("websocket client connected")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cn.writePump(gctx) })
	g.Go(func() error { return cn.readPump(gctx) })

	_ = g.Wait()
	logger.Info("websocket client disconnected")
}

func (cn *connection) readPump(ctx context.Context) error {
	defer cn.conn.Close()

	cn.conn.SetReadDeadline(time.Now().Add(pongWait))
	cn.conn.SetPongHandler(func(string) error {
		cn.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := cn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				cn.logger.Warn("websocket read error", "error", err)
			}
			return nil
		}
		cn.handleFrame(ctx, data)
	}
}

func (cn *connection) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cn.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-cn.send:
			if !ok {
				cn.writeLocked(func() error {
					return cn.conn.WriteMessage(websocket.CloseMessage, []byte{})
				})
				return nil
			}
			if err := cn.writeLocked(func() error {
				return cn.conn.WriteMessage(websocket.TextMessage, data)
			}); err != nil {
				return err
			}
		case <-ticker.C:
			if err := cn.writeLocked(func() error {
				return cn.conn.WriteMessage(websocket.PingMessage, nil)
			}); err != nil {
				return err
			}
		}
	}
}

// writeLocked serializes every write onto the connection: the write
// pump's own traffic and, on a saturated send queue, the slow-consumer
// notification written directly by emit.
func (cn *connection) writeLocked(write func() error) error {
	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()
	cn.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return write()
}

func (cn *connection) handleFrame(ctx context.Context, data []byte) {
	frame, err := protocol.DecodeClientFrame(data)
	if err != nil {
		cn.emit(protocol.NewErrorChunk(protocol.ErrBadFrame))
		return
	}

	switch frame.Kind {
	case protocol.FramePrompt:
		cn.handlePrompt(ctx, frame.Message)
	case protocol.FrameReset:
		cn.handleReset()
	case protocol.FrameModelChange:
		cn.handleModelChange(ctx, frame.Model)
	}
}

func (cn *connection) handlePrompt(ctx context.Context, message string) {
	turnID, busy, err := cn.sess.Prompt(ctx, message)
	if err != nil {
		cn.logger.Error("failed to submit turn", "error", err)
		cn.emit(protocol.NewErrorChunk(protocol.ErrInternal))
		return
	}
	if busy != nil {
		cn.emit(*busy)
		return
	}
	go cn.pumpTurn(turnID, cn.sess.Transport())
}

func (cn *connection) handleReset() {
	chunk, ready := cn.sess.Reset()
	if ready {
		cn.emit(chunk)
	}
	// If not ready, the eventual reset_complete rides the in-flight
	// turn's pump goroutine once the cancelled turn's terminal event
	// arrives.
}

func (cn *connection) handleModelChange(ctx context.Context, modelID string) {
	chunk, err := cn.sess.ModelChange(ctx, modelID, cn.server.registry.Lookup)
	if err != nil {
		cn.logger.Error("model change failed", "error", err, "model", modelID)
	}
	cn.emit(chunk)
}

// pumpTurn reads events off transport until it closes them (one turn's
// worth), translating each into a chunk via the Session's state machine
// and forwarding it to the client. The Session's busy state keeps a new
// turn from starting while one awaits its terminal event; after a model
// switch the previous transport's pump may still be draining, and its
// events are dropped by the turn-id check in HandleEvent.
func (cn *connection) pumpTurn(turnID uint64, transport session.Transport) {
	if transport == nil {
		return
	}
	for ev := range transport.Events() {
		chunk, emit := cn.sess.HandleEvent(turnID, ev)
		if emit {
			cn.emit(chunk)
		}
	}
}

// emit encodes and enqueues a chunk. It blocks on a saturated send
// queue for up to slowConsumerTimeout; if the writer hasn't drained by
// then, the connection is declared a slow consumer: one final
// slow_consumer error is written directly to the socket and the
// connection is torn down rather than queued behind everything else.
func (cn *connection) emit(chunk protocol.StreamChunk) {
	data, err := chunk.Encode()
	if err != nil {
		cn.logger.Error("failed to encode chunk", "error", err, "type", chunk.Type)
		return
	}

	select {
	case cn.send <- data:
		return
	default:
	}

	timer := time.NewTimer(slowConsumerTimeout)
	defer timer.Stop()
	select {
	case cn.send <- data:
	case <-timer.C:
		cn.closeSlowConsumer()
	}
}

func (cn *connection) closeSlowConsumer() {
	cn.slowOnce.Do(func() {
		cn.logger.Warn("slow consumer, closing connection", "connection_id", cn.id)
		chunk := protocol.NewErrorChunk(protocol.ErrSlowConsumer)
		if data, err := chunk.Encode(); err == nil {
			_ = cn.writeLocked(func() error {
				return cn.conn.WriteMessage(websocket.TextMessage, data)
			})
		}
		cn.cancel()
	})
}
