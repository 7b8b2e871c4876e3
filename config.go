package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is read from the environment at startup.
type Config struct {
	ListenAddr string
	Debug      bool

	EntityStoreURL   string
	EntityStoreToken string

	StorageConnectionString string
	TasksTable              string
	UsersTable              string
	ProjectsTable           string
	ActivityQueue           string

	RedisConnectionString string
	CacheTTL              time.Duration
	AdvanceGuardTTL       time.Duration
	SessionIdle           time.Duration

	Auth0Domain     string
	Auth0Audience   string
	LocalAuthMode   string
	LocalAuthSecret string
	JWKSCacheTTL    time.Duration
}

// UseTables reports whether Azure Table storage backs the entity store.
func (c Config) UseTables() bool { return c.EntityStoreURL == "" }

func loadConfig(getenv func(string) string) (Config, error) {
	cfg := Config{
		ListenAddr:              ":8080",
		EntityStoreURL:          getenv("ENTITY_STORE_URL"),
		EntityStoreToken:        getenv("ENTITY_STORE_TOKEN"),
		StorageConnectionString: getenv("STORAGE_CONNECTION_STRING"),
		TasksTable:              getenv("TASKS_TABLE"),
		UsersTable:              getenv("USERS_TABLE"),
		ProjectsTable:           getenv("PROJECTS_TABLE"),
		ActivityQueue:           getenv("ACTIVITY_QUEUE"),
		RedisConnectionString:   getenv("REDIS_CONNECTION_STRING"),
		Auth0Domain:             getenv("AUTH0_DOMAIN"),
		Auth0Audience:           getenv("AUTH0_AUDIENCE"),
		LocalAuthMode:           strings.ToLower(getenv("LOCAL_AUTH_MODE")),
		LocalAuthSecret:         getenv("LOCAL_AUTH_SHARED_SECRET"),
	}
	var errs []error

	if v := getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	} else if port := getenv("FUNCTIONS_CUSTOMHANDLER_PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}
	if v := getenv("DEBUG"); v != "" {
		dbg, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid DEBUG: %w", err))
		}
		cfg.Debug = dbg
	}

	durations := []struct {
		name string
		dst  *time.Duration
		def  time.Duration
	}{
		{"CACHE_TTL", &cfg.CacheTTL, 5 * time.Minute},
		{"ADVANCE_GUARD_TTL", &cfg.AdvanceGuardTTL, 30 * time.Second},
		{"SESSION_IDLE_TIMEOUT", &cfg.SessionIdle, 30 * time.Minute},
		{"JWKS_CACHE_TTL", &cfg.JWKSCacheTTL, 15 * time.Minute},
	}
	for _, d := range durations {
		*d.dst = d.def
		v := getenv(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s: must be a positive duration", d.name))
			continue
		}
		*d.dst = parsed
	}

	if cfg.UseTables() {
		if cfg.StorageConnectionString == "" || cfg.TasksTable == "" || cfg.UsersTable == "" || cfg.ProjectsTable == "" {
			errs = append(errs, errors.New("missing entity store config: set ENTITY_STORE_URL or STORAGE_CONNECTION_STRING with TASKS_TABLE, USERS_TABLE and PROJECTS_TABLE"))
		}
	}
	if cfg.ActivityQueue != "" && cfg.StorageConnectionString == "" {
		errs = append(errs, errors.New("ACTIVITY_QUEUE requires STORAGE_CONNECTION_STRING"))
	}

	switch cfg.LocalAuthMode {
	case "":
		if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
			errs = append(errs, errors.New("missing Auth0 config"))
		}
	case "hs256":
		if cfg.LocalAuthSecret == "" {
			errs = append(errs, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LOCAL_AUTH_MODE %q", cfg.LocalAuthMode))
	}

	if cfg.RedisConnectionString != "" {
		if _, err := parseRedisOptions(cfg.RedisConnectionString); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseRedisOptions accepts a redis:// URL or the Azure style
// "host:port,password=...,ssl=true" connection string.
func parseRedisOptions(conn string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.TrimSpace(parts[0]) == "" || strings.Contains(parts[0], "=") {
		return nil, fmt.Errorf("invalid REDIS_CONNECTION_STRING: missing host")
	}
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "password":
			opts.Password = v
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(v), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
