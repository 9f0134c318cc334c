// Package control exposes the pipeline on a local websocket.
//
// Clients send JSON requests and receive one response per request:
//
//	→ {"op": "status"}
//	← {"ok": true, "status": {"state": "running", "stats": {...}}}
//
// Supported ops are start, stop, interrupt and status. Every connected
// client also receives the pipeline's feedback events as they happen. A slow
// client loses events rather than stalling the pipeline.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voxprivate/internal/pipeline"
)

// Ops accepted in [Request.Op].
const (
	OpStart     = "start"
	OpStop      = "stop"
	OpInterrupt = "interrupt"
	OpStatus    = "status"
)

const (
	defaultStopTimeout = 15 * time.Second
	defaultBuffer      = 16
	writeTimeout       = 5 * time.Second
)

// Pipeline is the part of [pipeline.Coordinator] the control socket drives.
type Pipeline interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Interrupt()
	State() pipeline.State
	Stats() pipeline.Stats
}

// Request is a client message.
type Request struct {
	ID string `json:"id,omitempty"`
	Op string `json:"op"`
}

// Status describes the pipeline.
type Status struct {
	State string         `json:"state"`
	Stats pipeline.Stats `json:"stats"`
}

// Response answers one [Request].
type Response struct {
	ID      string  `json:"id,omitempty"`
	OK      bool    `json:"ok"`
	Message string  `json:"message,omitempty"`
	Status  *Status `json:"status,omitempty"`
}

// Option configures a [Server].
type Option func(*Server)

// WithStopTimeout bounds how long a stop request waits for pending
// utterances to drain.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Server) { s.stopTimeout = d }
}

// WithBuffer sets the per-client event buffer.
func WithBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.buffer = n
		}
	}
}

type client struct {
	out chan any
}

// Server is an [http.Handler] serving the control websocket. It also
// implements [pipeline.Feedback] to push events to clients.
type Server struct {
	pipe        Pipeline
	base        context.Context
	stopTimeout time.Duration
	buffer      int

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New creates a Server. base bounds pipelines started through the socket;
// it is typically the application's run context.
func New(base context.Context, pipe Pipeline, opts ...Option) *Server {
	s := &Server{
		pipe:        pipe,
		base:        base,
		stopTimeout: defaultStopTimeout,
		buffer:      defaultBuffer,
		clients:     make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Publish implements [pipeline.Feedback]. Events are dropped for clients
// whose buffer is full.
func (s *Server) Publish(_ context.Context, ev pipeline.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cl := range s.clients {
		select {
		case cl.out <- ev:
		default:
			slog.Debug("control: client too slow, dropping event", "event", ev.Type)
		}
	}
}

// ServeHTTP upgrades the connection and serves requests until the client
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("control: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cl := &client{out: make(chan any, s.buffer)}
	s.mu.Lock()
	s.clients[cl] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, cl)
		s.mu.Unlock()
	}()
	slog.Debug("control: client connected", "remote", r.RemoteAddr)

	go func() {
		defer cancel()
		s.writeLoop(ctx, conn, cl)
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				slog.Debug("control: read failed", "err", err)
			}
			return
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(data, &req); err != nil {
			resp = Response{Message: "invalid request: " + err.Error()}
		} else {
			resp = s.Handle(ctx, req)
		}

		select {
		case cl.out <- resp:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, cl *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-cl.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				slog.Debug("control: write failed", "err", err)
				return
			}
		}
	}
}

// Handle executes one request.
func (s *Server) Handle(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID, OK: true}

	switch req.Op {
	case OpStart:
		if err := s.pipe.Start(s.base); err != nil {
			resp.OK, resp.Message = false, err.Error()
			if errors.Is(err, pipeline.ErrAlreadyRunning) {
				resp.Message = "already running"
			}
		} else {
			resp.Message = "started"
		}
	case OpStop:
		stopCtx, cancel := context.WithTimeout(ctx, s.stopTimeout)
		err := s.pipe.Stop(stopCtx)
		cancel()
		if err != nil {
			resp.OK, resp.Message = false, err.Error()
		} else {
			resp.Message = "stopped"
		}
	case OpInterrupt:
		s.pipe.Interrupt()
		resp.Message = "interrupted"
	case OpStatus:
	default:
		resp.OK, resp.Message = false, "unknown op: "+req.Op
	}

	slog.Info("control: request", "op", req.Op, "ok", resp.OK)
	resp.Status = &Status{State: s.pipe.State().String(), Stats: s.pipe.Stats()}
	return resp
}

var _ pipeline.Feedback = (*Server)(nil)
