package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/localsend-session/api/controllers"
	"github.com/moyoez/localsend-session/api/middlewares"
	"github.com/moyoez/localsend-session/api/models"
	"github.com/moyoez/localsend-session/api/notifyhub"
	"github.com/moyoez/localsend-session/notify"
	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/transfer"
	"github.com/moyoez/localsend-session/types"
)

type ServerOptions struct {
	Config   types.AppConfig
	Registry *models.Registry
	// Sender enables the local send endpoints when set.
	Sender *transfer.Sender
	// Hub enables /api/self/v1/notify-ws when set.
	Hub      *notifyhub.Hub
	Observer notify.Observer
	// BaseContext is the parent of background transfers started through the local API.
	BaseContext context.Context
}

// Server represents the HTTP API server peers and local tools talk to.
type Server struct {
	opts   ServerOptions
	engine *gin.Engine
	server *http.Server
	mu     sync.RWMutex
}

func NewServer(opts ServerOptions) *Server {
	if opts.Observer == nil {
		opts.Observer = notify.Nop
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Config.Port <= 0 {
		opts.Config.Port = tool.DefaultPort
	}
	return &Server{opts: opts}
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		engine.Use(gin.Logger())
	}
	// ClientIP must be the socket peer: uploads and cancels are bound to the sender's address.
	if err := engine.SetTrustedProxies(nil); err != nil {
		tool.DefaultLogger.Warnf("[Server] Failed to disable trusted proxies: %v", err)
	}

	cfg := s.opts.Config
	receiveCtrl := controllers.NewReceiveController(s.opts.Registry, s.opts.Observer, cfg.ShowToken, cfg.NegotiationRatePerMinute)
	sessionCtrl := controllers.NewSessionController(s.opts.Registry)

	v1 := engine.Group(tool.APIPrefix)
	{
		v1.GET("/info", controllers.HandleLocalsendV1InfoGet)
		v1.POST("/send-request", receiveCtrl.HandleSendRequest)
		v1.POST("/send", receiveCtrl.HandleSend)
		v1.POST("/cancel", receiveCtrl.HandleCancel)
		v1.POST("/show", receiveCtrl.HandleShow)
	}
	self := engine.Group("/api/self/v1", middlewares.OnlyAllowLocal)
	{
		self.GET("/session", sessionCtrl.UserGetSession)           // Active receive session
		self.GET("/session/:id", sessionCtrl.UserGetRecentSession) // Active or recently ended receive session
		self.POST("/decide", sessionCtrl.UserDecide)               // Accept, rename or decline the pending batch
		self.POST("/close", sessionCtrl.UserClose)                 // Drop the receive session
		self.POST("/auto-accept", sessionCtrl.UserSetAutoAccept)
		self.GET("/create-qr-code", controllers.GenerateQRCode(func() string {
			return tool.SelfURL(models.GetSelfDevice())
		}))
		if s.opts.Sender != nil {
			sendCtrl := controllers.NewSendController(s.opts.BaseContext, s.opts.Sender)
			self.POST("/send", sendCtrl.UserSend)              // Start an outgoing transfer
			self.GET("/send", sendCtrl.UserSendStatus)         // Outgoing transfer state
			self.POST("/send/cancel", sendCtrl.UserSendCancel) // Cancel the outgoing transfer
		}
		if s.opts.Hub != nil {
			self.GET("/notify-ws", notifyhub.HandleNotifyWS(s.opts.Hub))
		}
	}
	return engine
}

// Handler builds the routes once and returns them.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = s.setupRoutes()
	}
	return s.engine
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	handler := s.Handler()
	cfg := s.opts.Config

	s.mu.Lock()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	address := fmt.Sprintf("%s://0.0.0.0:%d", cfg.Protocol, cfg.Port)
	tool.DefaultLogger.Infof("Starting API server on %s", address)

	var err error
	if cfg.Protocol == "https" {
		cert, certErr := tool.LoadServerCertificate(&cfg)
		if certErr != nil {
			return fmt.Errorf("failed to load TLS certificate: %w", certErr)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
		tool.DefaultLogger.Infof("TLS certificate configured for HTTPS")
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for handlers until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
