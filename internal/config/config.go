package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// ResultBackend selects where locked lesson results live.
type ResultBackend string

const (
	ResultsSQL    ResultBackend = "sql"
	ResultsMemory ResultBackend = "memory"
	ResultsRedis  ResultBackend = "redis"
)

type Config struct {
	Mode           Mode
	HTTPAddr       string
	PublicURL      string
	RequestTimeout time.Duration

	DBDriver string
	DBDSN    string
	SiteID   string // tags event_log rows

	ResultStore   ResultBackend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	AuthHMACSecret string

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	PassPercent   int
	GradeParallel bool

	LogMode string
	LogFile string

	OTelEnabled     bool
	OTelSampleRatio float64
	ServiceName     string
}

// CORSOrigins returns the origin list for the current mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func defaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeOffline))
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("public_url", "")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "")
	v.SetDefault("site_id", "local")
	v.SetDefault("result_store", string(ResultsSQL))
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_prefix", "lesson_result")
	v.SetDefault("auth_hmac_secret", "supersecret-dev-key")
	v.SetDefault("cors_origins_online", "https://lms.mindengage.ai")
	v.SetDefault("cors_origins_offline", "http://localhost:3000,http://localhost:3010,http://localhost:3020")
	v.SetDefault("pass_percent", 60)
	v.SetDefault("grade_parallel", false)
	v.SetDefault("log_mode", "")
	v.SetDefault("log_file", "")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_sample_ratio", 1.0)
	v.SetDefault("service_name", "lessond")
}

// Load reads config.yaml from path (when present) and lets environment
// variables override it. Keys map to upper-case env names, e.g. http_addr
// is HTTP_ADDR.
func Load(path string) (Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.AddConfigPath(path)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	mode := Mode(strings.ToLower(v.GetString("mode")))
	if mode != ModeOnline {
		mode = ModeOffline
	}
	logMode := v.GetString("log_mode")
	if logMode == "" {
		logMode = "dev"
		if mode == ModeOnline {
			logMode = "prod"
		}
	}

	cfg := Config{
		Mode:           mode,
		HTTPAddr:       v.GetString("http_addr"),
		PublicURL:      v.GetString("public_url"),
		RequestTimeout: v.GetDuration("request_timeout"),

		DBDriver: v.GetString("db_driver"),
		DBDSN:    v.GetString("db_dsn"),
		SiteID:   v.GetString("site_id"),

		ResultStore:   ResultBackend(strings.ToLower(v.GetString("result_store"))),
		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),
		RedisPrefix:   v.GetString("redis_prefix"),

		AuthHMACSecret: v.GetString("auth_hmac_secret"),

		CORSOriginsOnline:  list(v, "cors_origins_online"),
		CORSOriginsOffline: list(v, "cors_origins_offline"),

		PassPercent:   v.GetInt("pass_percent"),
		GradeParallel: v.GetBool("grade_parallel"),

		LogMode: logMode,
		LogFile: v.GetString("log_file"),

		OTelEnabled:     v.GetBool("otel_enabled"),
		OTelSampleRatio: v.GetFloat64("otel_sample_ratio"),
		ServiceName:     v.GetString("service_name"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.ResultStore {
	case ResultsSQL, ResultsMemory, ResultsRedis:
	default:
		return fmt.Errorf("config: unknown result_store %q", c.ResultStore)
	}
	if c.PassPercent < 0 || c.PassPercent > 100 {
		return fmt.Errorf("config: pass_percent %d out of range", c.PassPercent)
	}
	if c.Mode == ModeOnline && c.AuthHMACSecret == "supersecret-dev-key" {
		return errors.New("config: AUTH_HMAC_SECRET must be set in online mode")
	}
	return nil
}

// list accepts either a YAML sequence or a comma separated string, which is
// how the env vars carry lists.
func list(v *viper.Viper, key string) []string {
	if _, ok := v.Get(key).([]any); ok {
		return v.GetStringSlice(key)
	}
	parts := strings.Split(v.GetString(key), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
