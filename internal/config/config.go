package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrDiscordTokenNotSet  = errors.New("DISCORD_TOKEN is not set")
	ErrStreamerTokenNotSet = errors.New("STREAMER_TOKEN is not set")
	ErrPlaylistURLNotSet   = errors.New("PLAYLIST_URL is not set")
)

type Config struct {
	DiscordToken  string
	StreamerToken string
	OwnerID       string

	PlaylistURL     string
	GuideURL        string
	CachePath       string
	RefreshInterval time.Duration

	IdleTimeout time.Duration
	MetricsAddr string
	Debug       bool
}

func LoadConfig() (*Config, error) {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:    os.Getenv("DISCORD_TOKEN"),
		StreamerToken:   os.Getenv("STREAMER_TOKEN"),
		OwnerID:         os.Getenv("BOT_OWNER_ID"),
		PlaylistURL:     os.Getenv("PLAYLIST_URL"),
		GuideURL:        os.Getenv("XMLTV_URL"),
		CachePath:       getEnv("CACHE_PATH", "iptv.db"),
		RefreshInterval: time.Duration(getEnvInt("REFRESH_INTERVAL_HOURS", 12)) * time.Hour,
		IdleTimeout:     time.Duration(getEnvInt("IDLE_TIMEOUT_MINUTES", 5)) * time.Minute,
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		Debug:           os.Getenv("DEBUG") == "true",
	}

	if cfg.DiscordToken == "" {
		return nil, ErrDiscordTokenNotSet
	}
	if cfg.StreamerToken == "" {
		return nil, ErrStreamerTokenNotSet
	}
	if cfg.PlaylistURL == "" {
		return nil, ErrPlaylistURLNotSet
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
