package main

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"realtime-whiteboard/internal/config"
	"realtime-whiteboard/internal/database"
	"realtime-whiteboard/internal/presence"
	"realtime-whiteboard/internal/repository"
	"realtime-whiteboard/internal/server"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	// 데이터베이스 연결
	db, err := database.ConnectDB(database.LoadConfig(), logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close(db)

	if err := database.Ping(context.Background(), db); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("database connected")

	deps := server.Deps{
		Objects: repository.NewObjectRepository(db),
		DatabaseCheck: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
	}

	// Redis 연결 (선택)
	if cfg.Redis.Addr != "" {
		client, err := presence.Connect(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, presence stays local", zap.Error(err))
		} else {
			defer client.Close()
			roster := presence.NewRoster(client, cfg.Server.ServerID)
			deps.Roster = roster
			deps.RedisCheck = roster.Ping
			logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
		}
	}

	logVersion(db, logger)

	// 서버 생성 및 설정
	srv := server.New(cfg, deps, logger)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
}

// logVersion DB 버전 확인
func logVersion(db *gorm.DB, logger *zap.Logger) {
	var version string
	if err := db.Raw("SELECT version()").Scan(&version).Error; err != nil {
		logger.Warn("version query failed", zap.Error(err))
		return
	}
	logger.Info("postgres", zap.String("version", version))
}
