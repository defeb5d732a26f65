package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/num/quat"

	"visual-servo/internal/config"
	"visual-servo/internal/motion"
	"visual-servo/internal/pid"
	"visual-servo/internal/protocol"
	"visual-servo/internal/servo"
	"visual-servo/internal/transform"
)

// Server is the tracking node: perception clients connect over WebSocket
// and stream target detections; the server transforms them into the world
// frame, feeds the servo loop, broadcasts the commanded position once per
// tick, and dispatches each tick's pose to the motion-execution service.
type Server struct {
	cfg        *config.Config
	clients    map[*Client]bool
	clientsMu  sync.RWMutex
	loop       *servo.Loop
	transforms *transform.Buffer
	motion     *motion.Client
	upgrader   websocket.Upgrader
	httpSrv    *http.Server
}

// Client represents a connected WebSocket client
type Client struct {
	conn   *websocket.Conn
	server *Server
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	s := &Server{
		cfg:     cfg,
		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local use
			},
		},
	}

	cam := servo.NewCamera(servo.Config{
		Gains: pid.Config{
			Kp:           cfg.Control.Kp,
			Ki:           cfg.Control.Ki,
			Kd:           cfg.Control.Kd,
			SamplePeriod: cfg.Control.SamplePeriod(),
		},
		ClipValue:       cfg.Control.ClipValue,
		PlanarThreshold: cfg.Control.PlanarThreshold,
		DepthThreshold:  cfg.Control.DepthThreshold,
	})
	s.transforms = transform.NewBuffer(cfg.Frames.Validity())
	s.loop = servo.NewLoop(cam, s.broadcastPosition, s.dispatchGoal)

	return s
}

// Start connects the backends and serves until the listener is closed.
func (s *Server) Start() error {
	s.startBackends()

	s.httpSrv = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
	}
	log.Printf("Server starting on %s", s.cfg.ListenAddr)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) startBackends() {
	if s.cfg.Motion.URL != "" {
		s.motion = motion.NewClient(motion.Config{
			URL:            s.cfg.Motion.URL,
			ConnectTimeout: s.cfg.Motion.ConnectTimeout(),
		})
	} else {
		log.Printf("Warning: no motion service configured, goals will not be dispatched")
	}
	s.loop.Start()
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Stop stops the server
func (s *Server) Stop() {
	// Stop ticking before tearing clients down so no broadcast races a
	// closing send channel.
	s.loop.Stop()
	if s.motion != nil {
		s.motion.Close()
	}

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()
	if s.httpSrv != nil {
		s.httpSrv.Shutdown(context.Background())
	}
}

// Loop exposes the control loop, e.g. for status queries.
func (s *Server) Loop() *servo.Loop {
	return s.loop
}

// dispatchGoal forwards the commanded position to the motion service. The
// send is fire-and-forget from the loop's perspective; the dispatcher
// reports acceptance and results as they arrive.
func (s *Server) dispatchGoal(p servo.Position) {
	if s.motion == nil {
		return
	}
	s.motion.Send(p.X, p.Y, p.Z)
}

// broadcastPosition publishes the commanded position to all clients.
func (s *Server) broadcastPosition(p servo.Position) {
	msg, err := protocol.NewMessage(protocol.TypePosition, protocol.PositionPayload{
		Data: [3]float64{p.X, p.Y, p.Z},
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	for client := range s.clients {
		client.enqueue(data)
	}
	s.clientsMu.RUnlock()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:   conn,
		server: s,
		send:   make(chan []byte, 256),
	}

	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	// Send initial status
	client.sendStatus()
}

func (c *Client) sendStatus() {
	status := protocol.StatusPayload{
		MotionConnected: c.server.motion != nil && c.server.motion.Connected(),
		MotionURL:       c.server.cfg.Motion.URL,
		SourceFrame:     c.server.cfg.Frames.Source,
		WorldFrame:      c.server.cfg.Frames.World,
	}
	c.sendMessage(protocol.TypeStatus, status)
}

func (c *Client) sendMessage(msgType string, payload any) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		log.Printf("Failed to create message: %v", err)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return
	}

	if !c.enqueue(data) {
		log.Printf("Client send buffer full, dropping message")
	}
}

// enqueue queues data for the write pump without blocking. A slow or closed
// client must not stall the control tick, so the message is dropped instead.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.server.clientsMu.Lock()
		delete(c.server.clients, c)
		c.server.clientsMu.Unlock()
		c.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendMessage(protocol.TypeError, protocol.ErrorPayload{
			Code:    protocol.ErrInvalidMessage,
			Message: "Failed to parse message",
		})
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		var payload protocol.PingPayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		c.sendMessage(protocol.TypePong, protocol.PongPayload{
			ClientTimestamp: payload.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
		})

	case protocol.TypeDetection:
		var payload protocol.DetectionPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendMessage(protocol.TypeError, protocol.ErrorPayload{
				Code:    protocol.ErrInvalidMessage,
				Message: "Failed to parse detection",
			})
			return
		}
		c.handleDetection(payload)

	case protocol.TypeTransform:
		var payload protocol.TransformPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendMessage(protocol.TypeError, protocol.ErrorPayload{
				Code:    protocol.ErrInvalidMessage,
				Message: "Failed to parse transform",
			})
			return
		}
		c.handleTransform(payload)

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// handleDetection consumes the first candidate of a detection, resolves it
// into the world frame, and retargets the servo loop. A transform failure
// drops this detection only; an already-running loop is unaffected.
func (c *Client) handleDetection(det protocol.DetectionPayload) {
	if len(det.Candidates) == 0 {
		c.sendMessage(protocol.TypeError, protocol.ErrorPayload{
			Code:    protocol.ErrEmptyDetection,
			Message: "Detection carried no candidates",
		})
		return
	}
	first := det.Candidates[0]

	frame := det.Frame
	if frame == "" {
		frame = c.server.cfg.Frames.Source
	}
	at := time.Now()
	if det.StampMs != 0 {
		at = time.UnixMilli(det.StampMs)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.server.cfg.Frames.LookupTimeout())
	defer cancel()

	world, err := c.server.transforms.Transform(ctx,
		transform.Point{X: first.X, Y: first.Y, Z: first.Z},
		frame, c.server.cfg.Frames.World, at)
	if err != nil {
		log.Printf("Could not transform point: %v", err)
		c.sendMessage(protocol.TypeError, protocol.ErrorPayload{
			Code:    protocol.ErrTransform,
			Message: err.Error(),
		})
		return
	}

	log.Printf("Received target position: [x: %v, y: %v, z: %v]", world.X, world.Y, world.Z)
	c.server.loop.SetTarget(servo.Position{X: world.X, Y: world.Y, Z: world.Z})
}

func (c *Client) handleTransform(tr protocol.TransformPayload) {
	stamp := time.Now()
	if tr.StampMs != 0 {
		stamp = time.UnixMilli(tr.StampMs)
	}
	c.server.transforms.Set(tr.From, tr.To, transform.Transform{
		Translation: transform.Point{X: tr.Translation.X, Y: tr.Translation.Y, Z: tr.Translation.Z},
		Rotation: quat.Number{
			Real: tr.Rotation.W,
			Imag: tr.Rotation.X,
			Jmag: tr.Rotation.Y,
			Kmag: tr.Rotation.Z,
		},
		Stamp: stamp,
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	close(c.send)
}
