package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything read from the environment. A .env file, if
// present, is loaded by cmd/server before Load runs.
type Config struct {
	Port        string
	PublicURL   string
	CORSOrigins []string

	// Phase timers handed to the leader's client.
	SelectionTimer time.Duration
	AnswerTimer    time.Duration
	GuessTimer     time.Duration

	// Resilience delays.
	DisconnectGrace time.Duration
	InactiveAfter   time.Duration
	LeaderSkip      time.Duration
	KickBlock       time.Duration
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		PublicURL:   getEnv("PUBLIC_URL", "http://localhost:5173"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "localhost:*")),

		SelectionTimer: getSeconds("SELECTION_TIMER_SEC", 30),
		AnswerTimer:    getSeconds("ANSWER_TIMER_SEC", 60),
		GuessTimer:     getSeconds("GUESS_TIMER_SEC", 90),

		DisconnectGrace: getSeconds("DISCONNECT_GRACE_SEC", 60),
		InactiveAfter:   getSeconds("INACTIVE_AFTER_SEC", 15),
		LeaderSkip:      getSeconds("LEADER_SKIP_SEC", 30),
		KickBlock:       getSeconds("KICK_BLOCK_SEC", 300),
	}
}

func getEnv(keyName, defaultValue string) string {
	if value := os.Getenv(keyName); value != "" {
		return value
	}
	return defaultValue
}

func getSeconds(keyName string, defaultSec int) time.Duration {
	if value := os.Getenv(keyName); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(defaultSec) * time.Second
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
