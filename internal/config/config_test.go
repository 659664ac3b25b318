package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.SearchRadiusKm != 10 || cfg.CancelCutoff != 2*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PGDSN != "" || cfg.RedisAddr != "" || len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("infrastructure should default to in-process: %+v", cfg)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("CANCEL_CUTOFF", "30m")
	t.Setenv("DEFAULT_SEARCH_RADIUS_KM", "2.5")
	t.Setenv("MIGRATE", "TRUE")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.CancelCutoff != 30*time.Minute || cfg.SearchRadiusKm != 2.5 || !cfg.RunMigrations || cfg.LogLevel != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadServerConfigJoinsErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	t.Setenv("DEFAULT_SEARCH_RADIUS_KM", "-1")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"JWT_SECRET", "HTTP_READ_TIMEOUT", "DEFAULT_SEARCH_RADIUS_KM"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadConsumerConfig(t *testing.T) {
	t.Setenv("KAFKA_GROUP_ID", "geo-2")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GroupID != "geo-2" || cfg.Topic != "mechanic-locations" || cfg.RedisGeoKey != "mechanics_geo" {
		t.Fatalf("unexpected consumer config: %+v", cfg)
	}
}
