package main

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	DataDir string

	DBDriver string // sqlite | postgres
	DBDSN    string

	SecureCookies bool
	CORSOrigins   []string

	RabbitURL      string
	RabbitExchange string
}

// LoadConfig reads an optional .env file, then the process environment.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system env")
	}
	return Config{
		Port:           envOr("PORT", "8080"),
		DataDir:        envOr("DATA_DIR", "data"),
		DBDriver:       envOr("DB_DRIVER", "sqlite"),
		DBDSN:          envOr("DB_DSN", ""),
		SecureCookies:  envBool("SECURE_COOKIES", false),
		CORSOrigins:    csvOr("CORS_ORIGINS", ""),
		RabbitURL:      os.Getenv("RABBITMQ_URI"),
		RabbitExchange: envOr("RABBITMQ_EXCHANGE", "provas"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
