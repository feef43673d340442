package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.BlockSize != 1<<20 {
		t.Fatalf("BlockSize = %d", cfg.BlockSize)
	}
	if cfg.StreamGoneTimeout != 120*time.Second {
		t.Fatalf("StreamGoneTimeout = %v", cfg.StreamGoneTimeout)
	}
	if cfg.MongoURI != "" {
		t.Fatalf("MongoURI = %q, want empty (history disabled by default)", cfg.MongoURI)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BLOCK_SIZE", "65536")
	t.Setenv("STREAM_GONE_TIMEOUT_SECONDS", "30")
	t.Setenv("PUBLIC_BASE_URL", "https://cast.example.org/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := LoadConfig()

	if cfg.BlockSize != 65536 {
		t.Fatalf("BlockSize = %d", cfg.BlockSize)
	}
	if cfg.StreamGoneTimeout != 30*time.Second {
		t.Fatalf("StreamGoneTimeout = %v", cfg.StreamGoneTimeout)
	}
	if cfg.PublicBaseURL != "https://cast.example.org" {
		t.Fatalf("PublicBaseURL = %q, want trailing slash trimmed", cfg.PublicBaseURL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("BLOCK_SIZE", "-1")
	t.Setenv("STREAM_GONE_TIMEOUT_SECONDS", "nope")

	cfg := LoadConfig()

	if cfg.BlockSize != 1<<20 {
		t.Fatalf("BlockSize = %d, want default", cfg.BlockSize)
	}
	if cfg.StreamGoneTimeout != 120*time.Second {
		t.Fatalf("StreamGoneTimeout = %v, want default", cfg.StreamGoneTimeout)
	}
}
