package main

import (
	"log"
	"os"
	"time"

	"zufan/internal/api"
	"zufan/internal/auth"
	"zufan/internal/config"
	"zufan/internal/redis"
	"zufan/internal/service"
	"zufan/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("ZUFAN_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("ZUFAN_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// token validation works without the cache, just slower
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, auth cache disabled: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	tokenTTL := 24 * time.Hour
	if cfg.BasicConfig.TokenTTLHours > 0 {
		tokenTTL = time.Duration(cfg.BasicConfig.TokenTTLHours) * time.Hour
	}
	authService := auth.NewService(db, rdb, tokenTTL)
	sessions := service.NewSessions(db)
	handlers := api.NewHandler(sessions, authService)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
