package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/mailstash/mailstash/config"
	"github.com/mailstash/mailstash/internal/database"
	"github.com/mailstash/mailstash/internal/repository"
	"github.com/mailstash/mailstash/server"
)

func main() {
	app := &cli.App{
		Name:  "mailstash",
		Usage: "incremental IMAP/POP3 mailbox to document-store synchronization",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(c *cli.Context) error {
					db, _, err := setup()
					if err != nil {
						return err
					}
					if err := repository.MigrateDB(db); err != nil {
						return err
					}
					log.Println("Database migration completed successfully")
					return nil
				},
			},
			{
				Name:  "server",
				Usage: "Start the sync scheduler and HTTP API",
				Action: func(c *cli.Context) error {
					srv, err := buildServer()
					if err != nil {
						return err
					}
					return srv.Run(context.Background())
				},
			},
			{
				Name:  "once",
				Usage: "Run a single poll cycle for every account and exit",
				Action: func(c *cli.Context) error {
					srv, err := buildServer()
					if err != nil {
						return err
					}
					return srv.RunOnce(context.Background())
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (db *gorm.DB, cfg *config.Config, err error) {
	cfg, err = config.InitConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err = database.NewConnection(&database.DatabaseConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		DBName:          cfg.Database.DBName,
		Password:        cfg.Database.Password,
		MaxConn:         cfg.Database.MaxConn,
		MaxIdleConn:     cfg.Database.MaxIdleConn,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
		SSLMode:         cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}

func buildServer() (*server.Server, error) {
	db, cfg, err := setup()
	if err != nil {
		return nil, err
	}
	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return nil, err
	}
	if err := srv.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return srv, nil
}
