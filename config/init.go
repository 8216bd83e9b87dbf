package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/tracing"
	"github.com/mailstash/mailstash/services/logins"
	"github.com/mailstash/mailstash/services/sink"
)

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig: &AppConfig{},
		Mail:      &MailConfig{},
		Ldap:      &logins.LdapConfig{},
		Sink:      &sink.Config{},
		Logger:    &logger.Config{},
		Tracing:   &tracing.JaegerConfig{},
		Database:  &DatabaseConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	if err := env.Parse(config); err != nil {
		return nil, err
	}

	if err := config.Mail.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
