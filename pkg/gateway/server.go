package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/orchid/pkg/orchestrator"
	"github.com/rs/zerolog"
)

// Server exposes the orchestrator over websocket. Each connection carries
// its own clarification and plan-review channels, so a turn started on a
// connection suspends and resumes on that same connection.
type Server struct {
	host         string
	port         int
	orchestrator *orchestrator.Orchestrator
	authHandler  *AuthHandler
	upgrader     websocket.Upgrader
	logger       zerolog.Logger

	server *http.Server

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	Orchestrator *orchestrator.Orchestrator
	Logger       zerolog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}

	return &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		orchestrator: cfg.Orchestrator,
		authHandler:  NewAuthHandler(cfg.SharedSecret),
		logger:       cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Info().Str("addr", addr).Msg("Gateway server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight turns.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timed out waiting for in-flight turns")
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	shuttingDown := s.isShuttingDown
	s.shutdownMu.RUnlock()
	if shuttingDown {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	if !s.authHandler.Authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := newClient(conn)
	defer func() {
		client.close()
		conn.Close()
	}()

	// Turns started on this connection are bound to its lifetime.
	connCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Client connected")

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("Client read error")
			}
			return
		}

		switch msg.Type {
		case msgTurn:
			s.handleTurn(connCtx, client, msg)
		case msgReply:
			if !client.deliverReply(msg) {
				s.sendError(client, msg.ID, "no pending prompt for id")
			}
		case msgCancel:
			if err := s.orchestrator.CancelSession(msg.SessionID); err != nil {
				s.sendError(client, msg.ID, err.Error())
			}
		default:
			s.sendError(client, msg.ID, fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

func (s *Server) handleTurn(ctx context.Context, client *Client, msg Message) {
	if msg.Text == "" {
		s.sendError(client, msg.ID, "turn text cannot be empty")
		return
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		session, err := s.orchestrator.CreateSession(ctx, orchestrator.Mode(msg.Mode))
		if err != nil {
			s.sendError(client, msg.ID, err.Error())
			return
		}
		sessionID = session.ID

		if err := client.send(Message{
			Type:      msgSession,
			ID:        msg.ID,
			SessionID: session.ID,
			Mode:      string(session.Mode()),
		}); err != nil {
			return
		}
	}

	s.inFlightReqs.Add(1)
	go func() {
		defer s.inFlightReqs.Done()

		turnIO := orchestrator.TurnIO{
			Asker:    &clientAsker{client: client},
			Feedback: &clientFeedback{client: client},
		}

		started := time.Now()
		result, err := s.orchestrator.RunTurn(ctx, sessionID, msg.Text, turnIO)
		if err != nil {
			s.sendError(client, msg.ID, err.Error())
			return
		}

		s.logger.Debug().
			Str("session_id", sessionID).
			Str("outcome", string(result.Outcome)).
			Dur("elapsed", time.Since(started)).
			Msg("Gateway turn finished")

		out := Message{
			Type:                msgResult,
			ID:                  msg.ID,
			SessionID:           sessionID,
			Outcome:             string(result.Outcome),
			Answer:              result.Answer,
			Intent:              result.Intent,
			Agent:               result.Agent,
			Iterations:          result.Iterations,
			ClarificationRounds: result.ClarificationRounds,
		}
		if result.Err != nil {
			out.Error = result.Err.Error()
		}
		if err := client.send(out); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to send turn result")
		}
	}()
}

func (s *Server) sendError(client *Client, id, message string) {
	if err := client.send(Message{Type: msgError, ID: id, Error: message}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send error message")
	}
}
