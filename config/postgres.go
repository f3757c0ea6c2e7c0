package config

import (
	"context"
	"fmt"
	"time"
)

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	// Parameter Store names that override Host, User and Password when set.
	HostParam     string `mapstructure:"host_param"`
	UserParam     string `mapstructure:"user_param"`
	PasswordParam string `mapstructure:"password_param"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the connection string of the configured database. With a
// non-nil params reader the *_param names are resolved through it.
func (cfg PostgresConfig) DSN(ctx context.Context, params ParameterReader) (string, error) {
	return cfg.dsn(ctx, params, cfg.DBName)
}

// AdminDSN is DSN against the "postgres" maintenance database.
func (cfg PostgresConfig) AdminDSN(ctx context.Context, params ParameterReader) (string, error) {
	return cfg.dsn(ctx, params, "postgres")
}

func (cfg PostgresConfig) dsn(ctx context.Context, params ParameterReader, dbName string) (string, error) {
	host, err := resolve(ctx, params, cfg.HostParam, cfg.Host)
	if err != nil {
		return "", err
	}
	user, err := resolve(ctx, params, cfg.UserParam, cfg.User)
	if err != nil {
		return "", err
	}
	password, err := resolve(ctx, params, cfg.PasswordParam, cfg.Password)
	if err != nil {
		return "", err
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, dbName, cfg.SSLMode,
	)
	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}
	return dsn, nil
}
