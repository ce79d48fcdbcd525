package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Keys; each is read from the upper-cased environment variable.
const (
	KeyDatabaseURL     = "database_url"
	KeySchemaName      = "schema_name"
	KeyHost            = "host"
	KeyPort            = "port"
	KeyJWTSecret       = "jwt_secret"
	KeyJWTAudience     = "jwt_audience"
	KeyUserIDClaim     = "jwt_user_id_claim"
	KeyGraphiQL        = "graphiql"
	KeyGraphiQLRoute   = "graphiql_route"
	KeyGraphQLRoute    = "graphql_route"
	KeyMetricsRoute    = "metrics_route"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyMigrationsDir   = "migrations_dir"
	KeyShutdownTimeout = "shutdown_timeout"
)

// Config holds all settings for serve and migrate.
type Config struct {
	DSN             string
	Schema          string
	Host            string
	Port            int
	JWTSecret       string
	JWTAudience     string
	UserIDClaim     string
	GraphiQL        bool
	GraphiQLRoute   string
	GraphQLRoute    string
	MetricsRoute    string
	LogLevel        string
	LogFormat       string
	MigrationsDir   string
	ShutdownTimeout time.Duration
}

// New returns a viper instance with defaults set and environment binding
// enabled. envFiles are loaded with godotenv first; missing files are fine.
func New(envFiles ...string) *viper.Viper {
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.SetDefault(KeySchemaName, "public")
	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyPort, 6543)
	v.SetDefault(KeyUserIDClaim, "user_id")
	v.SetDefault(KeyGraphiQL, true)
	v.SetDefault(KeyGraphiQLRoute, "/")
	v.SetDefault(KeyGraphQLRoute, "/graphql")
	v.SetDefault(KeyMetricsRoute, "/metrics")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyMigrationsDir, "migrations")
	v.SetDefault(KeyShutdownTimeout, 10*time.Second)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads a Config out of v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DSN:             v.GetString(KeyDatabaseURL),
		Schema:          v.GetString(KeySchemaName),
		Host:            v.GetString(KeyHost),
		Port:            v.GetInt(KeyPort),
		JWTSecret:       v.GetString(KeyJWTSecret),
		JWTAudience:     v.GetString(KeyJWTAudience),
		UserIDClaim:     v.GetString(KeyUserIDClaim),
		GraphiQL:        v.GetBool(KeyGraphiQL),
		GraphiQLRoute:   v.GetString(KeyGraphiQLRoute),
		GraphQLRoute:    v.GetString(KeyGraphQLRoute),
		MetricsRoute:    v.GetString(KeyMetricsRoute),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		MigrationsDir:   v.GetString(KeyMigrationsDir),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, errors.Errorf("invalid port %d", cfg.Port)
	}
	for name, route := range map[string]string{
		KeyGraphiQLRoute: cfg.GraphiQLRoute,
		KeyGraphQLRoute:  cfg.GraphQLRoute,
		KeyMetricsRoute:  cfg.MetricsRoute,
	} {
		if !strings.HasPrefix(route, "/") {
			return nil, errors.Errorf("%s must start with /, got %q", name, route)
		}
	}
	if cfg.GraphQLRoute == cfg.MetricsRoute {
		return nil, errors.Errorf("graphql and metrics routes collide on %s", cfg.GraphQLRoute)
	}
	// GraphiQL sharing the graphql route is allowed; the API handler wins.
	if cfg.GraphiQL && cfg.GraphiQLRoute == cfg.MetricsRoute {
		return nil, errors.Errorf("graphiql and metrics routes collide on %s", cfg.MetricsRoute)
	}
	return cfg, nil
}

// RequireDSN fails when no database url is configured.
func (c *Config) RequireDSN() error {
	if c.DSN == "" {
		return errors.New("DATABASE_URL is not set")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
