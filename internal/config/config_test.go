package config

import (
	"testing"
	"time"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Addr != "127.0.0.1:8790" || cfg.PrefsPath != "./data/prefs.db" || cfg.CORSOrigin != "*" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StaleAfter != 5*time.Minute || cfg.FetchRetries != 3 || cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("unexpected sync defaults: %+v", cfg)
	}
	if cfg.HTTPTimeout != 15*time.Second {
		t.Fatalf("HTTPTimeout = %s", cfg.HTTPTimeout)
	}
	if cfg.Backup.Bucket != "cvrd-preferences" || cfg.Backup.Endpoint != "" {
		t.Fatalf("unexpected backup defaults: %+v", cfg.Backup)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"CVRD_ADDR":              ":9000",
		"REDIS_URL":              "redis://cache:6379/1",
		"CVRD_STALE_AFTER":       "30s",
		"CVRD_FETCH_RETRIES":     "0",
		"CVRD_BACKUP_ENDPOINT":   "minio:9000",
		"CVRD_BACKUP_SECURE":     "true",
		"CVRD_BACKUP_ACCESS_KEY": "key",
	})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Addr != ":9000" || cfg.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.StaleAfter != 30*time.Second || cfg.FetchRetries != 0 {
		t.Fatalf("sync overrides not applied: %+v", cfg)
	}
	if cfg.Backup.Endpoint != "minio:9000" || !cfg.Backup.Secure || cfg.Backup.AccessKey != "key" {
		t.Fatalf("backup overrides not applied: %+v", cfg.Backup)
	}
}

func TestLoadFromRejectsMalformed(t *testing.T) {
	if _, err := LoadFrom(map[string]string{"CVRD_STALE_AFTER": "soon"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	t.Setenv("CVRD_FETCH_RETRIES", "many")
	cfg := Load()
	if cfg.FetchRetries != 3 {
		t.Fatalf("FetchRetries = %d, want default 3", cfg.FetchRetries)
	}
}

func TestParseEnv(t *testing.T) {
	t.Setenv("CVRD_DEVICE_ID", "pixel-7")
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("ParseEnv() error = %v", err)
	}
	if cfg.DeviceID != "pixel-7" {
		t.Fatalf("DeviceID = %q", cfg.DeviceID)
	}
}
