package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/tracing"
	"github.com/mailstash/mailstash/services/logins"
	"github.com/mailstash/mailstash/services/sink"
)

type AppConfig struct {
	APIPort string `env:"PORT" envDefault:"12222"`
}

// MailConfig is the per-deployment mailbox sync configuration. All accounts
// of one process share protocol, server and tuning; credentials come from the
// static user lists or from LDAP.
type MailConfig struct {
	Protocol string `env:"MAIL_PROTOCOL" envDefault:"imap"`
	Host     string `env:"MAIL_HOST,required"`
	Port     int    `env:"MAIL_PORT" envDefault:"993"`
	TLS      bool   `env:"MAIL_TLS" envDefault:"true"`

	Users     []string `env:"MAIL_USERS" envSeparator:","`
	Passwords []string `env:"MAIL_PASSWORDS" envSeparator:","`

	// "static" or "ldap"
	UserSource string `env:"MAIL_USER_SOURCE" envDefault:"static"`

	Threads        int    `env:"MAIL_THREADS" envDefault:"5"`
	WithFlagSync   bool   `env:"MAIL_WITH_FLAG_SYNC" envDefault:"true"`
	DeleteExpunged bool   `env:"MAIL_DELETE_EXPUNGED" envDefault:"true"`
	FolderPattern  string `env:"MAIL_FOLDER_PATTERN"`

	// Trigger modes are mutually exclusive: a six-field cron schedule or a
	// fixed interval.
	Schedule string        `env:"MAIL_SCHEDULE"`
	Interval time.Duration `env:"MAIL_INTERVAL"`
}

// CronSpec resolves the trigger mode into one cron spec.
func (c *MailConfig) CronSpec() (string, error) {
	switch {
	case c.Schedule != "" && c.Interval > 0:
		return "", fmt.Errorf("MAIL_SCHEDULE and MAIL_INTERVAL are mutually exclusive")
	case c.Schedule != "":
		return c.Schedule, nil
	case c.Interval > 0:
		return fmt.Sprintf("@every %s", c.Interval), nil
	default:
		return "", fmt.Errorf("one of MAIL_SCHEDULE or MAIL_INTERVAL is required")
	}
}

// CompilePattern compiles the folder filter, nil when unset.
func (c *MailConfig) CompilePattern() (*regexp.Regexp, error) {
	if c.FolderPattern == "" {
		return nil, nil
	}
	pattern, err := regexp.Compile(c.FolderPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid MAIL_FOLDER_PATTERN: %w", err)
	}
	return pattern, nil
}

func (c *MailConfig) Validate() error {
	switch c.Protocol {
	case "imap", "imaps", "pop3", "pop3s":
	default:
		return fmt.Errorf("unsupported MAIL_PROTOCOL %q", c.Protocol)
	}
	if c.UserSource != "static" && c.UserSource != "ldap" {
		return fmt.Errorf("unsupported MAIL_USER_SOURCE %q", c.UserSource)
	}
	if _, err := c.CronSpec(); err != nil {
		return err
	}
	if _, err := c.CompilePattern(); err != nil {
		return err
	}
	return nil
}

// IsPop reports whether the configured protocol is POP3.
func (c *MailConfig) IsPop() bool {
	return c.Protocol == "pop3" || c.Protocol == "pop3s"
}

type DatabaseConfig struct {
	Host            string `env:"POSTGRES_HOST,required"`
	Port            string `env:"POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"POSTGRES_USER,required"`
	DBName          string `env:"POSTGRES_DB_NAME,required"`
	Password        string `env:"POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
}

type Config struct {
	AppConfig *AppConfig
	Mail      *MailConfig
	Ldap      *logins.LdapConfig
	Sink      *sink.Config
	Logger    *logger.Config
	Tracing   *tracing.JaegerConfig
	Database  *DatabaseConfig
}
