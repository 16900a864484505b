package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress || cfg.StoreDriver != StoreDriverDynamoDB || cfg.StoreTable != defaultStoreTable {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TokenTTL != time.Hour || cfg.PollerInterval != time.Minute || cfg.PollerStationLimit != 100 {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if cfg.CoolismUsername != "coolism" || cfg.FetcherTimeout != 5*time.Second {
		t.Fatalf("unexpected fetcher defaults %+v", cfg)
	}
	if err := cfg.RequireSigningSecret(); err == nil {
		t.Fatalf("expected missing signing secret to be reported")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("RADIOJOURNAL_STORE_DRIVER", "SQLite")
	t.Setenv("RADIOJOURNAL_STORE_SQLITE_PATH", "/tmp/journal.db")
	t.Setenv("RADIOJOURNAL_AUTH_SIGNING_SECRET", "secret")
	t.Setenv("RADIOJOURNAL_POLLER_INTERVAL", "30s")
	t.Setenv("RADIOJOURNAL_FETCHERS_COOLISM_PASSWORD", "hunter2")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreDriver != StoreDriverSQLite || cfg.SQLitePath != "/tmp/journal.db" {
		t.Fatalf("expected sqlite store from env, got %+v", cfg)
	}
	if cfg.PollerInterval != 30*time.Second || cfg.CoolismPassword != "hunter2" {
		t.Fatalf("unexpected env values %+v", cfg)
	}
	if err := cfg.RequireSigningSecret(); err != nil {
		t.Fatalf("unexpected signing secret error: %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		key     string
		value   any
		message string
	}{
		{key: "store.driver", value: "postgres", message: "store.driver"},
		{key: "store.table", value: " ", message: "store.table"},
		{key: "log.format", value: "xml", message: "log.format"},
		{key: "aws.access_key_id", value: "AKIA", message: "aws.access_key_id"},
		{key: "auth.token_ttl_minutes", value: 0, message: "auth.token_ttl_minutes"},
		{key: "poller.interval", value: "0s", message: "poller.interval"},
		{key: "poller.station_limit", value: 5000, message: "poller.station_limit"},
		{key: "fetchers.timeout", value: "-1s", message: "fetchers.timeout"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.key, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set(testCase.key, testCase.value)
			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), testCase.message) {
				t.Fatalf("expected error mentioning %s, got %v", testCase.message, err)
			}
		})
	}
}
