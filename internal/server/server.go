package server

import (
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"realtime-whiteboard/internal/auth"
	"realtime-whiteboard/internal/config"
	"realtime-whiteboard/internal/handler"
	"realtime-whiteboard/internal/middleware"
	"realtime-whiteboard/internal/repository"
)

// Deps are the server's storage dependencies.
type Deps struct {
	Objects repository.ObjectRepositoryInterface
	// Roster may be nil; presence then stays local to this instance.
	Roster handler.Roster

	DatabaseCheck handler.CheckFunc
	RedisCheck    handler.CheckFunc
}

// Server Fiber 서버 래퍼
type Server struct {
	app           *fiber.App
	cfg           *config.Config
	logger        *zap.Logger
	objectHandler *handler.ObjectHandler
	healthHandler *handler.HealthHandler
	hub           *handler.BoardHub
	jwtManager    *auth.JWTManager
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "Realtime Whiteboard Relay",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		BodyLimit:             1024 * 1024,
		DisableStartupMessage: true,
	})

	hubSettings := handler.DefaultHubSettings()
	hubSettings.WriteTimeout = cfg.WebSocket.WriteTimeout
	hubSettings.ReadTimeout = cfg.WebSocket.ReadTimeout

	return &Server{
		app:           app,
		cfg:           cfg,
		logger:        log,
		objectHandler: handler.NewObjectHandler(deps.Objects, log),
		healthHandler: handler.NewHealthHandler(deps.DatabaseCheck, deps.RedisCheck),
		hub:           handler.NewBoardHub(deps.Roster, hubSettings, log),
		jwtManager:    auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry),
	}
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub 보드 허브
func (s *Server) Hub() *handler.BoardHub {
	return s.hub
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORS.AllowOrigins,
		AllowHeaders: s.cfg.CORS.AllowHeaders,
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// 사용자별 요청 제한 (드래그 중 PATCH 폭주 방지)
	apiLimiter := limiter.New(limiter.Config{
		Max:        1200,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals(auth.LocalUserID).(string); ok {
				return userID
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	api := s.app.Group("/api", auth.AuthMiddleware(s.jwtManager), apiLimiter)
	board := middleware.RequireBoard()
	object := middleware.RequireObjectID()
	api.Get("/boards/:boardId/objects", board, s.objectHandler.ListObjects)
	api.Post("/boards/:boardId/objects", board, s.objectHandler.CreateObject)
	api.Get("/boards/:boardId/presence", board, s.hub.ListPresence)
	api.Patch("/objects/:id", object, s.objectHandler.UpdateObject)
	api.Delete("/objects/:id", object, s.objectHandler.DeleteObject)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// 보드 채널 (토큰은 ?token= 쿼리)
	s.app.Get("/ws/boards/:boardId", auth.AuthMiddleware(s.jwtManager), board, websocket.New(s.hub.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Listener serves on an existing listener until Shutdown.
func (s *Server) Listener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.logger.Info("shutting down server")
		if err := s.Shutdown(); err != nil {
			s.logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	s.logger.Info("relay starting",
		zap.String("addr", s.cfg.Server.Port),
		zap.String("websocket", "ws://localhost"+s.cfg.Server.Port+"/ws/boards/:boardId"),
	)
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
