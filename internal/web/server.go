// Package web serves the to-do list to browsers. The page holds one add form
// and one list container; the server pushes freshly rendered rows over a
// websocket after every snapshot and turns browser events into controller
// writes.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/idilsaglam/livetodo/internal/app"
	"github.com/idilsaglam/livetodo/internal/logging"
	"github.com/idilsaglam/livetodo/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Actions sent by the page.
const (
	actionAdd    = "add"
	actionToggle = "toggle"
	actionDelete = "delete"
)

type clientMessage struct {
	Action  string `json:"action"`
	Content string `json:"content"`
	ID      string `json:"id"`
	Checked bool   `json:"checked"`
	Target  string `json:"target"`
}

// Server wires the controller to HTTP.
type Server struct {
	ctrl     *app.Controller
	hub      *Hub
	logger   *log.Logger
	metrics  *metrics.Recorder
	upgrader websocket.Upgrader

	// writes outlive the websocket that asked for them
	baseCtx context.Context
}

// New returns a server for ctrl. logger and m may be nil.
func New(ctrl *app.Controller, logger *log.Logger, m *metrics.Recorder) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		ctrl:    ctrl,
		hub:     newHub(logger, m),
		logger:  logger,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		baseCtx: context.Background(),
	}
}

// Handlers feeds controller events to connected browsers.
func (s *Server) Handlers() app.Handlers {
	return app.Handlers{
		OnChange: s.hub.Broadcast,
		OnError: func(err error) {
			s.hub.BroadcastError("sync error: " + err.Error())
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// Run bootstraps the controller, then serves addr until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.baseCtx = ctx
	sub, err := s.ctrl.Start(ctx, s.Handlers())
	if err != nil {
		return err
	}
	defer sub.Stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr, "collection", s.ctrl.Collection())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderPage(w, s.ctrl.Collection(), s.ctrl.Items()); err != nil {
		s.logger.Error("render page", "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "err", err)
		return
	}
	c := newClient()
	s.hub.register(c, s.ctrl.Items())
	s.logger.Debug("client connected", "remote", r.RemoteAddr)

	go s.writePump(conn, c)
	s.readPump(conn, c)
}

// readPump dispatches browser actions until the connection closes.
func (s *Server) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		s.hub.unregister(c)
		conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read", "err", err)
			}
			return
		}
		s.dispatch(c, msg)
	}
}

func (s *Server) dispatch(c *client, msg clientMessage) {
	var wr *app.Write
	switch msg.Action {
	case actionAdd:
		wr = s.ctrl.Add(s.baseCtx, msg.Content)
	case actionToggle:
		wr = s.ctrl.Toggle(s.baseCtx, msg.ID, msg.Checked)
	case actionDelete:
		wr = s.ctrl.Delete(s.baseCtx, msg.Target)
	default:
		s.logger.Debug("unknown action", "action", msg.Action)
		return
	}
	go func() {
		<-wr.Done()
		if err := wr.Err(); err != nil {
			s.hub.sendError(c, fmt.Sprintf("%s failed: %v", wr.Op, err))
		}
	}()
}

// writePump drains the client's queue and keeps the connection alive.
func (s *Server) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
