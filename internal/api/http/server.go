package apihttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"castgate/internal/domain"
	"castgate/internal/domain/ports"
	"castgate/internal/metrics"
)

const (
	defaultBlockSize   = 1 << 20
	defaultGoneTimeout = 2 * time.Minute
	messageCacheTTL    = 5 * time.Minute
)

// Server is the streaming gateway. It owns the authorized-token set, the
// per-token downloaded-block accounting and one idle debounce per token;
// the three are created and destroyed together under mu.
type Server struct {
	backend ports.MediaBackend
	history ports.StreamHistory
	msgs    ports.MessageCache

	blockSize     int64
	goneTimeout   time.Duration
	publicBaseURL string

	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub

	// onClosed cascades an idle reap into the session registry. Set after
	// construction because the registry needs the server first.
	onClosed func(ctx context.Context, token domain.Token, remaining float64)

	mu       sync.Mutex
	tokens   map[domain.Token]struct{}
	blocks   map[domain.Token]map[int64]struct{}
	debounce map[domain.Token]*streamDebounce
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func WithStreamHistory(history ports.StreamHistory) ServerOption {
	return func(s *Server) { s.history = history }
}

func WithMessageCache(cache ports.MessageCache) ServerOption {
	return func(s *Server) { s.msgs = cache }
}

func WithBlockSize(size int64) ServerOption {
	return func(s *Server) {
		if size > 0 {
			s.blockSize = size
		}
	}
}

func WithGoneTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		if timeout > 0 {
			s.goneTimeout = timeout
		}
	}
}

func WithPublicBaseURL(base string) ServerOption {
	return func(s *Server) { s.publicBaseURL = base }
}

// WithAllowedOrigins configures the CORS allowed-origins whitelist. When
// empty (default), any origin is permitted.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

func NewServer(backend ports.MediaBackend, opts ...ServerOption) *Server {
	s := &Server{
		backend:       backend,
		blockSize:     defaultBlockSize,
		goneTimeout:   defaultGoneTimeout,
		publicBaseURL: "http://localhost:8080",
		tokens:        make(map[domain.Token]struct{}),
		blocks:        make(map[domain.Token]map[int64]struct{}),
		debounce:      make(map[domain.Token]*streamDebounce),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/stream/", s.handleStream)
	mux.HandleFunc("/healthcheck", s.handleHealthCheck)
	mux.HandleFunc("/history", s.handleHistory)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "castgate",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/healthcheck"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// SetOnStreamClosed installs the idle-reap cascade target.
func (s *Server) SetOnStreamClosed(fn func(ctx context.Context, token domain.Token, remaining float64)) {
	s.mu.Lock()
	s.onClosed = fn
	s.mu.Unlock()
}

// Authorize registers a (message, partial token) pair as streamable and
// returns the stream URL together with the derived token. Idempotent for
// the same inputs.
func (s *Server) Authorize(messageID int64, partial uint32) (string, domain.Token, error) {
	token, err := domain.EncodeToken(messageID, partial)
	if err != nil {
		return "", 0, err
	}

	s.mu.Lock()
	if _, ok := s.tokens[token]; !ok {
		s.tokens[token] = struct{}{}
		s.blocks[token] = make(map[int64]struct{})
		s.debounce[token] = newStreamDebounce(s.goneTimeout, s.handleIdleTimeout)
		metrics.ActiveStreamTokens.Set(float64(len(s.tokens)))
	}
	s.mu.Unlock()

	return fmt.Sprintf("%s/stream/%d/%d", s.publicBaseURL, messageID, partial), token, nil
}

// Revoke invalidates a token and drops its block accounting and debounce.
// Idempotent.
func (s *Server) Revoke(token domain.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropTokenLocked(token)
}

func (s *Server) dropTokenLocked(token domain.Token) {
	if d, ok := s.debounce[token]; ok {
		d.Cancel()
	}
	delete(s.tokens, token)
	delete(s.blocks, token)
	delete(s.debounce, token)
	metrics.ActiveStreamTokens.Set(float64(len(s.tokens)))
}

func (s *Server) tokenAuthorized(token domain.Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	return ok
}

// feedDebounce resets the idle timer for the token and refreshes the
// arguments the reap would fire with. Feeding and reaping are mutually
// exclusive per token via the debounce's own lock.
func (s *Server) feedDebounce(messageID, chatID int64, token domain.Token, size int64) {
	s.mu.Lock()
	d, ok := s.debounce[token]
	if !ok {
		if _, authorized := s.tokens[token]; !authorized {
			s.mu.Unlock()
			return
		}
		d = newStreamDebounce(s.goneTimeout, s.handleIdleTimeout)
		s.debounce[token] = d
	}
	s.mu.Unlock()

	d.Feed(messageID, chatID, token, size)
}

func (s *Server) recordBlock(token domain.Token, offset int64) {
	s.mu.Lock()
	if set, ok := s.blocks[token]; ok {
		set[offset] = struct{}{}
	}
	s.mu.Unlock()
}

// handleIdleTimeout reaps an abandoned stream: it removes the token and its
// accounting, notifies the originating chat with the remaining percentage
// and cascades into closing the playback session.
func (s *Server) handleIdleTimeout(messageID, chatID int64, token domain.Token, size int64) {
	s.mu.Lock()
	if _, ok := s.tokens[token]; !ok {
		s.mu.Unlock()
		return
	}
	downloaded := len(s.blocks[token])
	onClosed := s.onClosed
	s.dropTokenLocked(token)
	s.mu.Unlock()

	total := (size + s.blockSize - 1) / s.blockSize
	if total < 1 {
		total = 1
	}
	remaining := 1 - float64(downloaded)/float64(total)
	if remaining < 0 {
		remaining = 0
	}

	metrics.IdleReapsTotal.Inc()
	s.logger.Info("idle stream reaped",
		slog.String("token", token.String()),
		slog.Int64("messageId", messageID),
		slog.Float64("remaining", remaining),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	text := fmt.Sprintf("download closed, %.2f%% remains", remaining*100)
	if err := s.backend.ReplyMessage(ctx, messageID, chatID, text); err != nil {
		s.logger.Warn("idle reap notification failed",
			slog.Int64("messageId", messageID),
			slog.String("error", err.Error()),
		)
	}

	if s.history != nil {
		closure := domain.StreamClosure{
			Token:     token,
			MessageID: messageID,
			ChatID:    chatID,
			Remaining: remaining,
			Reason:    "idle",
			ClosedAt:  time.Now(),
		}
		if err := s.history.Insert(ctx, closure); err != nil {
			s.logger.Warn("stream history insert failed", slog.String("error", err.Error()))
		}
	}

	if onClosed != nil {
		onClosed(ctx, token, remaining)
	}
}

// resolveMessage looks up the backing media message, going through the
// metadata cache when one is configured.
func (s *Server) resolveMessage(ctx context.Context, messageID int64) (domain.MediaMessage, error) {
	if s.msgs != nil {
		if msg, ok := s.msgs.Get(ctx, messageID); ok {
			return msg, nil
		}
	}
	msg, err := s.backend.GetMessage(ctx, messageID)
	if err != nil {
		return domain.MediaMessage{}, err
	}
	if s.msgs != nil {
		s.msgs.Put(ctx, messageID, msg, messageCacheTTL)
	}
	return msg, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastSessions pushes session snapshots to all WebSocket clients.
func (s *Server) BroadcastSessions(states []domain.PlaybackState) {
	s.wsHub.BroadcastSessions(states)
}

// Close cancels every pending debounce and disconnects the hub clients.
func (s *Server) Close() {
	s.mu.Lock()
	for token := range s.tokens {
		s.dropTokenLocked(token)
	}
	s.mu.Unlock()
	s.wsHub.Close()
}
