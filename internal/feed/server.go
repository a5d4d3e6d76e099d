// Package feed serves the aggregated friend state over WebSocket and
// accepts social commands from connected clients.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/earshot-fm/earshot/internal/config"
	"github.com/earshot-fm/earshot/internal/ops"
	"github.com/earshot-fm/earshot/internal/social"
	"github.com/earshot-fm/earshot/internal/sync"
)

// FriendSource provides the current aggregated friend state.
type FriendSource interface {
	Friends() []sync.FriendRecord
}

// Server pushes friend state updates to WebSocket clients and routes
// their commands to the social service.
type Server struct {
	cfg    *config.Feed
	source FriendSource
	social *social.Service
	log    *ops.Logger

	httpSrv  *http.Server
	listener net.Listener

	mu    stdsync.Mutex
	conns map[string]*conn
}

// conn is a single WebSocket client. Outgoing friend snapshots go
// through a coalescing channel so a slow client only ever lags, never
// blocks the engine.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []sync.FriendRecord
}

type command struct {
	Op       string              `json:"op"`
	FriendID string              `json:"friendId,omitempty"`
	Reaction string              `json:"reaction,omitempty"`
	Email    string              `json:"email,omitempty"`
	Track    *sync.TrackSnapshot `json:"track,omitempty"`
}

type friendsMessage struct {
	Type    string              `json:"type"`
	Friends []sync.FriendRecord `json:"friends"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Op    string `json:"op,omitempty"`
	Error string `json:"error"`
}

// New creates a feed server.
func New(cfg *config.Feed, source FriendSource, soc *social.Service, log *ops.Logger) *Server {
	return &Server{
		cfg:    cfg,
		source: source,
		social: soc,
		log:    log.WithComponent("feed"),
		conns:  make(map[string]*conn),
	}
}

// Start begins listening and serving in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start feed server: %w", err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{Handler: s}

	s.log.Info("feed server listening", "addr", addr)

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("feed server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts down the server and closes all client connections.
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(ctx)

	s.mu.Lock()
	for _, c := range s.conns {
		c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
	s.conns = make(map[string]*conn)
	s.mu.Unlock()

	return err
}

// Addr returns the listen address, useful when the port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Broadcast fans the friend snapshot out to every connected client.
// It never blocks; stale snapshots queued for slow clients are
// replaced by newer ones.
func (s *Server) Broadcast(friends []sync.FriendRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		select {
		case c.send <- friends:
		default:
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- friends:
			default:
			}
		}
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Loopback-only server, browser clients connect from file:// or
		// localhost dev origins.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}

	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []sync.FriendRecord, 1),
	}

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	s.log.Debug("client connected", "conn", c.id, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Seed the client with current state before any broadcasts arrive.
	if err := writeJSON(ctx, ws, friendsMessage{Type: "friends", Friends: s.source.Friends()}); err != nil {
		s.removeConn(c)
		ws.Close(websocket.StatusInternalError, "initial state write failed")
		return
	}

	go s.writeLoop(ctx, c)

	s.readLoop(ctx, c)

	s.removeConn(c)
	cancel()
	ws.Close(websocket.StatusNormalClosure, "")
	s.log.Debug("client disconnected", "conn", c.id)
}

func (s *Server) writeLoop(ctx context.Context, c *conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case friends := <-c.send:
			if err := writeJSON(ctx, c.ws, friendsMessage{Type: "friends", Friends: friends}); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.replyError(ctx, c, "", "invalid command payload")
			continue
		}

		if err := s.dispatch(ctx, cmd); err != nil {
			s.log.Debug("command failed", "conn", c.id, "op", cmd.Op, "error", err)
			s.replyError(ctx, c, cmd.Op, err.Error())
		}
	}
}

func (s *Server) dispatch(ctx context.Context, cmd command) error {
	switch cmd.Op {
	case "react":
		if cmd.FriendID == "" {
			return errors.New("react requires friendId")
		}
		return s.social.React(ctx, cmd.FriendID, sync.ParseReaction(cmd.Reaction))
	case "add_friend":
		if cmd.Email == "" {
			return errors.New("add_friend requires email")
		}
		return s.social.AddFriend(ctx, cmd.Email)
	case "remove_friend":
		if cmd.FriendID == "" {
			return errors.New("remove_friend requires friendId")
		}
		return s.social.RemoveFriend(ctx, cmd.FriendID)
	case "favorite":
		if cmd.Track == nil {
			return errors.New("favorite requires track")
		}
		return s.social.Favorite(ctx, *cmd.Track)
	default:
		return fmt.Errorf("unknown op %q", cmd.Op)
	}
}

func (s *Server) replyError(ctx context.Context, c *conn, op, msg string) {
	if err := writeJSON(ctx, c.ws, errorMessage{Type: "error", Op: op, Error: msg}); err != nil {
		s.log.Debug("error reply failed", "conn", c.id, "error", err)
	}
}

func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, data)
}
