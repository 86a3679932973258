package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                int    `yaml:"port"`
	Symbol              string `yaml:"symbol"`
	BinanceWSURL        string `yaml:"binance_ws_url"`
	FeedBuffer          int    `yaml:"feed_buffer"`
	ReconnectMaxSeconds int    `yaml:"reconnect_max_seconds"`
	LogLevel            string `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		Port:                8087,
		Symbol:              "BNBUSDT",
		BinanceWSURL:        "wss://stream.binance.com:9443",
		FeedBuffer:          1024,
		ReconnectMaxSeconds: 30,
		LogLevel:            "info",
	}
}

func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	// Validation & normalization
	cfg.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Symbol))
	if cfg.Symbol == "" {
		return cfg, errors.New("symbol must not be empty")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, errors.New("invalid port")
	}
	if !strings.HasPrefix(cfg.BinanceWSURL, "ws://") && !strings.HasPrefix(cfg.BinanceWSURL, "wss://") {
		return cfg, errors.New("binance_ws_url must be a ws:// or wss:// URL")
	}
	if cfg.FeedBuffer < 1 {
		return cfg, errors.New("feed_buffer must be >=1")
	}
	if cfg.ReconnectMaxSeconds < 1 {
		return cfg, errors.New("reconnect_max_seconds must be >=1")
	}
	return cfg, nil
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
