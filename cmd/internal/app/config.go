package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// DatabaseURL enables the Postgres audit sink when set. Empty keeps the
	// process fully in-memory.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// CORS policy for browser clients. A trailing ":*" in an allowed origin
	// matches any port.
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// AuditLogPath enables the JSONL audit file sink when set.
	AuditLogPath string

	// SeedDemoUsers loads the fixed development accounts at startup.
	SeedDemoUsers bool

	// HeartbeatInterval is the websocket liveness sweep interval.
	HeartbeatInterval time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("FLEETDECK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("FLEETDECK_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("FLEETDECK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("FLEETDECK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("FLEETDECK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("FLEETDECK_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("FLEETDECK_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("FLEETDECK_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("FLEETDECK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("FLEETDECK_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("FLEETDECK_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   EnvCSV("FLEETDECK_CORS_ALLOWED_ORIGINS", "http://localhost:*,http://127.0.0.1:*"),
		CORSAllowCredentials: EnvBool("FLEETDECK_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("FLEETDECK_CORS_MAX_AGE_SECONDS", 600),

		AuditLogPath: EnvString("FLEETDECK_AUDIT_LOG", ""),

		SeedDemoUsers: EnvBool("FLEETDECK_SEED_DEMO_USERS", true),

		HeartbeatInterval: EnvDuration("FLEETDECK_WS_HEARTBEAT_INTERVAL", 30*time.Second),
	}
}
