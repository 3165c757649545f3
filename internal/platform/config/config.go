package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"clinic-appointments/internal/domain/appointments"
	"clinic-appointments/internal/platform/logger"

	"github.com/spf13/viper"
)

// Config agrupa toda la configuración del servicio.
// Se lee de env (mismos nombres que antes: PORT, DB_DSN, LOG_LEVEL...) y,
// opcionalmente, de un archivo (yaml/toml/json) cuyas keys son las mismas en minúscula.
type Config struct {
	Port  string
	DBDSN string

	Log       LogConfig
	Reconcile ReconcileConfig
	Odin      UpstreamConfig
	Plans     UpstreamConfig

	AllowAllCapabilities bool
}

type LogConfig struct {
	Level  string
	Format string
	App    string
	File   string
}

type ReconcileConfig struct {
	// ClinicID fijo para el resolver estático. Si está vacío se intenta Odin.
	ClinicID string
	Timezone string

	SweepInterval   time.Duration
	OverdueGrace    time.Duration
	ResolveInterval time.Duration
}

type UpstreamConfig struct {
	BaseURL      string
	APIKey       string
	ServiceToken string
	Timeout      time.Duration
}

var ErrInvalidConfig = errors.New("invalid config")

// Load lee la config. path es opcional.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Port:  v.GetString("port"),
		DBDSN: v.GetString("db_dsn"),
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
			App:    v.GetString("app_name"),
			File:   v.GetString("log_file"),
		},
		Reconcile: ReconcileConfig{
			ClinicID:        strings.TrimSpace(v.GetString("clinic_id")),
			Timezone:        v.GetString("clinic_timezone"),
			SweepInterval:   v.GetDuration("sweep_interval"),
			OverdueGrace:    v.GetDuration("overdue_grace"),
			ResolveInterval: v.GetDuration("session_resolve_interval"),
		},
		Odin: UpstreamConfig{
			BaseURL:      v.GetString("odin_base_url"),
			APIKey:       v.GetString("odin_api_key"),
			ServiceToken: v.GetString("odin_service_token"),
			Timeout:      v.GetDuration("odin_timeout"),
		},
		Plans: UpstreamConfig{
			BaseURL: v.GetString("plans_base_url"),
			APIKey:  v.GetString("plans_api_key"),
			Timeout: v.GetDuration("plans_timeout"),
		},
		AllowAllCapabilities: v.GetBool("allow_all_capabilities"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_dsn", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("app_name", "clinic-appointments")
	v.SetDefault("log_file", "")
	v.SetDefault("clinic_id", "")
	v.SetDefault("clinic_timezone", "Local")
	v.SetDefault("sweep_interval", 300*time.Second)
	v.SetDefault("overdue_grace", appointments.DefaultOverdueGrace)
	v.SetDefault("session_resolve_interval", 30*time.Second)
	v.SetDefault("odin_base_url", "")
	v.SetDefault("odin_api_key", "")
	v.SetDefault("odin_service_token", "")
	v.SetDefault("odin_timeout", 5*time.Second)
	v.SetDefault("plans_base_url", "")
	v.SetDefault("plans_api_key", "")
	v.SetDefault("plans_timeout", 5*time.Second)
	v.SetDefault("allow_all_capabilities", false)
}

func (c Config) validate() error {
	if c.Reconcile.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep_interval must be > 0", ErrInvalidConfig)
	}
	if c.Reconcile.OverdueGrace <= 0 {
		return fmt.Errorf("%w: overdue_grace must be > 0", ErrInvalidConfig)
	}
	if c.Reconcile.ResolveInterval <= 0 {
		return fmt.Errorf("%w: session_resolve_interval must be > 0", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resuelve la zona horaria de la clínica.
func (c Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Reconcile.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: clinic_timezone %q: %v", ErrInvalidConfig, tz, err)
	}
	return loc, nil
}

// Addr es la dirección de escucha HTTP.
func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
}

func (c Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:  logger.ParseLevel(c.Log.Level),
		Format: logger.ParseFormat(c.Log.Format),
		App:    c.Log.App,
		File:   c.Log.File,
	}
}
