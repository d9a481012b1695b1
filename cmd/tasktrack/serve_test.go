package main

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tasktrack/internal/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestServeReleasesListenerOnScheduleError(t *testing.T) {
	addr := freeAddr(t)
	cfg := config.Config{
		DatabaseDriver: "sqlite",
		DatabaseURL:    filepath.Join(t.TempDir(), "tasks.db"),
		HTTPAddr:       addr,
		JWTSecret:      "secret",
		TokenTTL:       time.Hour,
		TelegramToken:  "token",
		ReportAt:       "25:99",
		ReportInterval: time.Hour,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := serve(ctx, cfg)
	if err == nil || !strings.Contains(err.Error(), "schedule reports") {
		t.Fatalf("expected schedule error, got %v", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("address still in use after serve returned: %v", err)
	}
	ln.Close()
}
