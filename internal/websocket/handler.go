package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket upgrader with production-ready settings
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: classroom displays are served from arbitrary school hosts
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// HandlerConfig holds socket timing settings.
type HandlerConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultHandlerConfig returns the heartbeat settings used in production.
// TECHNICAL DISCOVERY: 60-second read deadline with 30-second ping interval
// keeps idle displays alive through school proxies
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: DefaultWriteTimeout,
		BufferSize:   100,
	}
}

// Handler accepts classroom display sockets at /ws/{channel}.
type Handler struct {
	registry *Registry
	auth     *TokenAuthenticator
	config   HandlerConfig
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, auth *TokenAuthenticator, config HandlerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultHandlerConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	return &Handler{
		registry: registry,
		auth:     auth,
		config:   config,
		logger:   logger.Named("websocket"),
	}
}

// HandleWebSocket upgrades the request, authenticates the display token and
// joins the socket to the channel named in the path.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	if channel == "" {
		http.Error(w, "Missing channel", http.StatusBadRequest)
		return
	}
	token := r.URL.Query().Get("token")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("channel", channel), zap.Error(err))
		return
	}

	// FUNCTIONAL DISCOVERY: displays expect the rejection as a close frame with
	// policy-violation status rather than an HTTP error
	if !h.auth.Authenticate(token) {
		h.logger.Info("rejected classroom socket", zap.String("channel", channel))
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.config.WriteTimeout))
		_ = conn.Close()
		return
	}

	wsConn := NewConnection(conn, channel, h.config.WriteTimeout, h.config.BufferSize)
	if err := h.registry.Connect(channel, wsConn); err != nil {
		h.logger.Error("failed to register connection", zap.String("channel", channel), zap.Error(err))
		_ = wsConn.Close()
		return
	}

	h.logger.Info("classroom connected",
		zap.String("channel", channel),
		zap.String("conn_id", wsConn.ID()),
	)

	go h.handleConnection(wsConn, conn)
}

// handleConnection runs the heartbeat and read loop until the socket dies.
func (h *Handler) handleConnection(wsConn *Connection, conn *websocket.Conn) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures resources are released
		// however the read loop exits
		if h.registry.Disconnect(wsConn.Channel(), wsConn) {
			h.logger.Info("classroom disconnected",
				zap.String("channel", wsConn.Channel()),
				zap.String("conn_id", wsConn.ID()),
			)
		}
		_ = wsConn.Close()
	}()

	if err := conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		h.logger.Warn("failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.pingLoop(wsConn)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket error", zap.String("conn_id", wsConn.ID()), zap.Error(err))
			}
			return
		}

		// Displays are receive-only; anything they send is just logged.
		if messageType == websocket.TextMessage {
			h.logger.Debug("classroom frame",
				zap.String("channel", wsConn.Channel()),
				zap.String("conn_id", wsConn.ID()),
				zap.ByteString("payload", data),
			)
		}
	}
}

func (h *Handler) pingLoop(wsConn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := wsConn.Ping(); err != nil {
				_ = wsConn.Close()
				return
			}
		case <-wsConn.Done():
			return
		}
	}
}

// CloseAll closes every registered socket. Their read loops then
// disconnect them from the registry.
func (h *Handler) CloseAll() {
	for _, channel := range h.registry.Channels() {
		for _, conn := range h.registry.Snapshot(channel) {
			_ = conn.Close()
		}
	}
}
