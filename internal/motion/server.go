package motion

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"visual-servo/internal/protocol"
)

// ActionServer speaks the goal protocol on behalf of an Executor: it
// answers each incoming goal with an accept/reject decision and, for
// accepted goals, executes asynchronously and reports the terminal result.
// It backs the standalone simulator binary and the dispatcher tests.
type ActionServer struct {
	exec     Executor
	upgrader websocket.Upgrader
}

// NewActionServer wraps exec in the wire protocol.
func NewActionServer(exec Executor) *ActionServer {
	return &ActionServer{
		exec: exec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local use
			},
		},
	}
}

// actionConn serializes writes: results are reported from per-goal
// goroutines while responses come from the read loop.
type actionConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (a *actionConn) write(msgType string, payload any) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		log.Printf("motionsim: build message: %v", err)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("motionsim: marshal message: %v", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := a.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("motionsim: write: %v", err)
	}
}

func (s *ActionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("motionsim: upgrade: %v", err)
		return
	}
	defer conn.Close()

	ac := &actionConn{conn: conn}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("motionsim: read: %v", err)
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			ac.write(protocol.TypeError, protocol.ErrorPayload{
				Code:    protocol.ErrInvalidMessage,
				Message: "Failed to parse message",
			})
			continue
		}

		switch msg.Type {
		case protocol.TypePing:
			var payload protocol.PingPayload
			if err := msg.ParsePayload(&payload); err != nil {
				continue
			}
			ac.write(protocol.TypePong, protocol.PongPayload{
				ClientTimestamp: payload.Timestamp,
				ServerTimestamp: time.Now().UnixMilli(),
			})

		case protocol.TypeGoal:
			var payload protocol.GoalPayload
			if err := msg.ParsePayload(&payload); err != nil {
				ac.write(protocol.TypeError, protocol.ErrorPayload{
					Code:    protocol.ErrInvalidMessage,
					Message: "Failed to parse goal",
				})
				continue
			}
			s.handleGoal(ac, payload)

		default:
			log.Printf("motionsim: unknown message type: %s", msg.Type)
		}
	}
}

func (s *ActionServer) handleGoal(ac *actionConn, goal protocol.GoalPayload) {
	accepted := s.exec.Accepts(goal.Pose)
	ac.write(protocol.TypeGoalResponse, protocol.GoalResponsePayload{
		ID:       goal.ID,
		Accepted: accepted,
	})
	if !accepted {
		return
	}

	// Execution overlaps with further incoming goals.
	go func() {
		success := s.exec.Execute(goal.Pose)
		ac.write(protocol.TypeGoalResult, protocol.GoalResultPayload{
			ID:      goal.ID,
			Success: success,
		})
	}()
}
