package motion

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"visual-servo/internal/protocol"
)

const (
	redialInterval = 2 * time.Second
	writeTimeout   = 5 * time.Second
	sendQueueSize  = 64
)

// DefaultOrientation is the fixed unit quaternion attached to every goal.
var DefaultOrientation = protocol.Quaternion{W: 1.0}

var errNotConnected = errors.New("motion: not connected")

// Config for the dispatcher client.
type Config struct {
	// URL of the motion-execution service, e.g. "ws://localhost:9090/goals".
	URL string
	// ConnectTimeout bounds how long a send waits for the service to be
	// reachable. On expiry the send is attempted anyway and reported as
	// unavailable if it fails.
	ConnectTimeout time.Duration
}

// Client maintains the connection to the motion-execution service and
// dispatches goals asynchronously. Send never blocks on the network; the
// accept/reject decision and the terminal result are resolved against the
// pending-goal map by the read loop as they arrive. Superseded in-flight
// goals are not cancelled.
type Client struct {
	cfg Config

	sendQ  chan *queued
	stopCh chan struct{}
	once   sync.Once

	mu      sync.Mutex
	conn    *websocket.Conn
	ready   chan struct{} // closed while connected, replaced on disconnect
	pending map[string]*Goal
}

type queued struct {
	goal *Goal
	data []byte
}

// NewClient creates the dispatcher and starts its connection manager. The
// service does not have to be reachable yet.
func NewClient(cfg Config) *Client {
	c := &Client{
		cfg:     cfg,
		sendQ:   make(chan *queued, sendQueueSize),
		stopCh:  make(chan struct{}),
		ready:   make(chan struct{}),
		pending: make(map[string]*Goal),
	}
	go c.run()
	go c.writePump()
	return c
}

// Connected reports whether the service connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send dispatches a pose goal built from the commanded position and the
// fixed default orientation. It returns immediately with the goal handle;
// progress is observed via the handle and reported in the logs.
func (c *Client) Send(x, y, z float64) *Goal {
	g := newGoal(uuid.NewString(), [3]float64{x, y, z})

	payload := protocol.GoalPayload{
		ID: g.ID,
		Pose: protocol.Pose{
			Position:    protocol.Candidate{X: x, Y: y, Z: z},
			Orientation: DefaultOrientation,
		},
	}
	msg, err := protocol.NewMessage(protocol.TypeGoal, payload)
	if err != nil {
		g.resolve(OutcomeFailed)
		return g
	}
	data, err := json.Marshal(msg)
	if err != nil {
		g.resolve(OutcomeFailed)
		return g
	}

	c.mu.Lock()
	c.pending[g.ID] = g
	c.mu.Unlock()

	select {
	case c.sendQ <- &queued{goal: g, data: data}:
	default:
		log.Printf("motion: send queue full, dropping goal %s", g.ID)
		c.fail(g)
	}
	return g
}

// Close shuts the client down. Goals still in flight are left unresolved.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	return nil
}

func (c *Client) fail(g *Goal) {
	c.mu.Lock()
	delete(c.pending, g.ID)
	c.mu.Unlock()
	g.resolve(OutcomeFailed)
}

// run dials the service and keeps the connection alive, re-dialing with a
// fixed backoff after any failure.
func (c *Client) run() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
		conn, _, err := dialer.Dial(c.cfg.URL, nil)
		if err != nil {
			log.Printf("motion: connect %s: %v", c.cfg.URL, err)
			select {
			case <-c.stopCh:
				return
			case <-time.After(redialInterval):
			}
			continue
		}

		log.Printf("motion: connected to %s", c.cfg.URL)
		c.setConn(conn)
		c.readLoop(conn)
		c.clearConn(conn)
		conn.Close()
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	close(c.ready)
	c.mu.Unlock()
}

func (c *Client) clearConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.ready = make(chan struct{})
	}
	c.mu.Unlock()
}

// waitReady blocks until the connection is up, the timeout expires, or the
// client is closed. The send proceeds regardless of the wait's outcome.
func (c *Client) waitReady() {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()

	select {
	case <-ready:
	case <-time.After(c.cfg.ConnectTimeout):
	case <-c.stopCh:
	}
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.stopCh:
			return
		case q := <-c.sendQ:
			c.waitReady()

			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			err := errNotConnected
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				err = conn.WriteMessage(websocket.TextMessage, q.data)
			}
			if err != nil {
				log.Printf("motion: service unavailable, goal %s failed: %v", q.goal.ID, err)
				c.fail(q.goal)
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
			default:
				log.Printf("motion: connection lost: %v", err)
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("motion: malformed message: %v", err)
			continue
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeGoalResponse:
		var payload protocol.GoalResponsePayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		g := c.lookup(payload.ID)
		if g == nil {
			return
		}
		if payload.Accepted {
			if g.resolve(OutcomeAccepted) {
				log.Printf("motion: goal %s accepted", g.ID)
			}
		} else {
			c.remove(payload.ID)
			if g.resolve(OutcomeRejected) {
				log.Printf("motion: goal %s rejected", g.ID)
			}
		}

	case protocol.TypeGoalResult:
		var payload protocol.GoalResultPayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		g := c.lookup(payload.ID)
		if g == nil {
			return
		}
		c.remove(payload.ID)
		if payload.Success {
			if g.resolve(OutcomeSucceeded) {
				log.Printf("motion: goal %s succeeded", g.ID)
			}
		} else {
			if g.resolve(OutcomeFailed) {
				log.Printf("motion: goal %s failed", g.ID)
			}
		}
	}
}

func (c *Client) lookup(id string) *Goal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[id]
}

func (c *Client) remove(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
