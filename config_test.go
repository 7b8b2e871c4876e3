package main

import (
	"strings"
	"testing"
	"time"
)

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestLoadConfigHTTPStoreLocalAuth(t *testing.T) {
	cfg, err := loadConfig(env(map[string]string{
		"ENTITY_STORE_URL":         "http://store:3000",
		"LOCAL_AUTH_MODE":          "HS256",
		"LOCAL_AUTH_SHARED_SECRET": "s3cret",
		"CACHE_TTL":                "90s",
		"DEBUG":                    "true",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.UseTables() {
		t.Fatalf("expected HTTP store")
	}
	if cfg.LocalAuthMode != "hs256" || !cfg.Debug {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.CacheTTL != 90*time.Second || cfg.AdvanceGuardTTL != 30*time.Second {
		t.Fatalf("unexpected durations %v %v", cfg.CacheTTL, cfg.AdvanceGuardTTL)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
}

func TestLoadConfigFunctionsPort(t *testing.T) {
	cfg, err := loadConfig(env(map[string]string{
		"ENTITY_STORE_URL":             "http://store",
		"AUTH0_DOMAIN":                 "tenant.auth0.com",
		"AUTH0_AUDIENCE":               "api://board",
		"FUNCTIONS_CUSTOMHANDLER_PORT": "7071",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":7071" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
}

func TestLoadConfigReportsEveryProblem(t *testing.T) {
	_, err := loadConfig(env(map[string]string{
		"CACHE_TTL":       "-1s",
		"DEBUG":           "maybe",
		"LOCAL_AUTH_MODE": "hs256",
		"ACTIVITY_QUEUE":  "activity",
	}))
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{
		"invalid CACHE_TTL",
		"invalid DEBUG",
		"missing entity store config",
		"ACTIVITY_QUEUE requires STORAGE_CONNECTION_STRING",
		"LOCAL_AUTH_SHARED_SECRET must be set",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestLoadConfigTables(t *testing.T) {
	cfg, err := loadConfig(env(map[string]string{
		"STORAGE_CONNECTION_STRING": "UseDevelopmentStorage=true",
		"TASKS_TABLE":               "tasks",
		"USERS_TABLE":               "users",
		"PROJECTS_TABLE":            "projects",
		"ACTIVITY_QUEUE":            "activity",
		"LOCAL_AUTH_MODE":           "hs256",
		"LOCAL_AUTH_SHARED_SECRET":  "x",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.UseTables() || cfg.ActivityQueue != "activity" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestParseRedisOptions(t *testing.T) {
	opts, err := parseRedisOptions("redis://:pw@localhost:6379/2")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected url options %+v", opts)
	}

	opts, err = parseRedisOptions("cache.redis.cache.windows.net:6380,password=abc=,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("azure: %v", err)
	}
	if opts.Addr != "cache.redis.cache.windows.net:6380" || opts.Password != "abc=" || opts.TLSConfig == nil {
		t.Fatalf("unexpected azure options %+v", opts)
	}

	if _, err := parseRedisOptions("password=abc"); err == nil {
		t.Fatalf("expected error without host")
	}
}
