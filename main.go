package main

import (
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	cfg := LoadConfig()

	// 1) DB
	db, err := OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// 2) Catalog from the static exam files
	exams, err := LoadCatalog(cfg.DataDir)
	if err != nil {
		log.Printf("catalog: %v; serving what is already stored", err)
	} else if err := SyncCatalog(db, exams); err != nil {
		log.Fatalf("sync catalog: %v", err)
	}
	if n, err := CountExams(db); err == nil {
		log.Printf("Catalog has %d exams", n)
	}

	// 3) Events (optional)
	var pub Publisher
	if cfg.RabbitURL != "" {
		ep, err := NewEventPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer ep.Close()
		pub = ep
	} else {
		log.Println("RabbitMQ not configured, attempt events will not be published")
	}

	// 4) Router
	r := gin.Default()
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	setupRoutes(r, db, pub, cfg)

	log.Printf("Listening on :%s (SecureCookies=%v, DataDir=%s)", cfg.Port, cfg.SecureCookies, cfg.DataDir)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("run: %v", err)
	}
}

// corsConfig allows the configured origins plus any http://localhost:PORT during development.
func corsConfig(origins []string) cors.Config {
	allowed := map[string]bool{}
	for _, o := range origins {
		allowed[o] = true
	}
	return cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowed[origin] || strings.HasPrefix(origin, "http://localhost:")
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", publicIDHeader},
		ExposeHeaders:    []string{publicIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func setupRoutes(r *gin.Engine, db *gorm.DB, pub Publisher, cfg Config) {
	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })
	r.Static("/img", filepath.Join(cfg.DataDir, "img"))

	api := r.Group("/api/v1")
	api.Use(EnsureUser(db, cfg.SecureCookies))
	{
		// Catalog
		api.GET("/exams", ListExams(db))
		api.GET("/exams/:id", GetExam(db))

		// Self-quiz
		api.POST("/exams/:id/attempts", StartAttempt(db, pub))
		api.GET("/attempts", ListMyAttempts(db))
		api.GET("/attempts/:id", GetAttempt(db))
		api.POST("/attempts/:id/answers", AnswerQuestion(db, pub))
		api.POST("/attempts/:id/finish", FinishAttempt(db, pub))
		api.POST("/attempts/:id/restart", RestartAttempt(db, pub))

		// Anonymous identity
		api.GET("/me", GetMe(db))
		api.PUT("/me", UpdateMe(db))
		api.POST("/me/restore", RestoreAccount(db, cfg.SecureCookies))

		api.GET("/stats", Stats(db))
	}
}
