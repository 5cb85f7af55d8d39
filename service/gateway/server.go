package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"PulseChat/global"
	"PulseChat/logger"
	"PulseChat/service/auth"
	"PulseChat/service/hub"
	"PulseChat/service/relay"
	"PulseChat/service/router"
	"PulseChat/service/store"
	"PulseChat/tools/safe"
)

const pongWait = 75 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server owns the HTTP surface: the WebSocket upgrade path, the dev login
// endpoint and the health probe. All chat state lives in the hub; all
// event semantics live in the router.
type Server struct {
	cfg      *global.Config
	hub      *hub.Hub
	router   *router.Router
	relay    *relay.Relay
	mirror   *store.PresenceMirror
	verifier *auth.Verifier
	engine   *gin.Engine
}

func NewServer(cfg *global.Config, h *hub.Hub, rt *router.Router, rl *relay.Relay, mirror *store.PresenceMirror, verifier *auth.Verifier) *Server {
	s := &Server{
		cfg:      cfg,
		hub:      h,
		router:   rt,
		relay:    rl,
		mirror:   mirror,
		verifier: verifier,
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/ws", s.HandleWS)
	engine.POST("/login", s.handleLogin)
	engine.GET("/healthz", s.handleHealth)
	s.engine = engine
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

// Run subscribes the relay (when present) and serves HTTP until the
// listener fails.
func (s *Server) Run() error {
	if s.relay.Enabled() {
		if err := s.relay.Subscribe(s.router.HandleRelayEnvelope); err != nil {
			return err
		}
		logger.Infof("[gateway] relay subscribed origin=%s", s.relay.Origin())
	} else {
		logger.Infof("[gateway] relay disabled, running single-process")
	}
	logger.Infof("[gateway] http listening on %s", s.cfg.Gateway.HTTPAddr)
	return s.engine.Run(s.cfg.Gateway.HTTPAddr)
}

// HandleWS upgrades the connection and runs the read loop. A bearer token
// in the query string is verified up front. Its absence is allowed: the
// connection starts unauthenticated and must join before any room-scoped
// action.
func (s *Server) HandleWS(c *gin.Context) {
	if token := c.Query("token"); token != "" {
		ident, err := s.verifier.Verify(token)
		if err != nil {
			logger.Infof("[gateway] token rejected: %v", err)
			c.String(http.StatusUnauthorized, "invalid token")
			return
		}
		logger.Infof("[gateway] token verified user=%s", ident.UserID)
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[gateway] upgrade failed: %v", err)
		return
	}

	client := s.hub.Accept(ws)
	logger.Infof("[gateway] connected conn=%s remote=%s", client.ConnID, client.Remote)

	safe.Go(client.WritePump)
	s.readLoop(client, ws)
}

func (s *Server) readLoop(client *hub.Client, ws *websocket.Conn) {
	defer func() {
		// Cascade before anything else can run for this connection:
		// rooms, presence, typing, then the write pump.
		s.router.Disconnect(client)
		logger.Infof("[gateway] disconnected conn=%s", client.ConnID)
	}()

	ws.SetReadLimit(s.cfg.Gateway.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		if userID := client.UserID(); userID != "" && s.mirror != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = s.mirror.Refresh(ctx, userID)
		}
		return nil
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[gateway] peer closed conn=%s", client.ConnID)
			} else {
				logger.Infof("[gateway] read err conn=%s err=%v", client.ConnID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.router.Dispatch(client, data)
	}
}

type loginRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Username string `json:"username" binding:"required"`
}

// handleLogin issues a development token so clients can exercise the
// authenticated handshake without a real identity provider.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and username are required"})
		return
	}
	token, expireAt, err := s.verifier.Issue(req.UserID, req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expireAt": expireAt.UnixMilli()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"gateway": s.cfg.Gateway.ID,
		"relay":   s.relay.Enabled(),
		"ts":      time.Now().UnixMilli(),
	})
}
