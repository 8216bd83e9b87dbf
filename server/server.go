package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailstash/mailstash/api"
	"github.com/mailstash/mailstash/config"
	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/cron"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/repository"
	"github.com/mailstash/mailstash/internal/tracing"
	imapservice "github.com/mailstash/mailstash/services/imap"
	"github.com/mailstash/mailstash/services/logins"
	"github.com/mailstash/mailstash/services/pop3"
	"github.com/mailstash/mailstash/services/sink"
	"github.com/mailstash/mailstash/services/state"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	repositories *repository.Repositories
	cronManager  *cron.CronManager
	loginSource  interfaces.LoginSource
	accounts     []cron.Account
	sinks        []*sink.DocumentSink
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, db *gorm.DB) (*Server, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, fmt.Errorf("could not initialize jaeger tracer: %w", err)
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(db)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		repositories: repos,
		cronManager:  cron.NewCronManager(appLogger),
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

// Initialize builds one mail source and sink per login and registers the poll
// jobs.
func (s *Server) Initialize(ctx context.Context) error {
	mailCfg := s.config.Mail

	pattern, err := mailCfg.CompilePattern()
	if err != nil {
		return err
	}
	spec, err := mailCfg.CronSpec()
	if err != nil {
		return err
	}

	if mailCfg.UserSource == "ldap" {
		s.loginSource = logins.NewLdapLoginSource(*s.config.Ldap, s.log)
	} else {
		s.loginSource = logins.NewStaticLoginSource(mailCfg.Users, mailCfg.Passwords)
	}

	stateStore := state.NewStateStore(s.log, s.repositories.SyncStateRepository, s.repositories.SyncErrorRepository)

	accountLogins := s.loginSource.Logins()
	if len(accountLogins) == 0 {
		return fmt.Errorf("no mailbox logins available from %s", s.loginSource.Name())
	}

	for _, login := range accountLogins {
		accountSink := sink.NewDocumentSink(*s.config.Sink, s.log, s.repositories.DocumentRepository)
		s.sinks = append(s.sinks, accountSink)

		var source interfaces.MailSource
		if mailCfg.IsPop() {
			factory := pop3.NewSessionFactory(pop3.ClientConfig{
				Host:     mailCfg.Host,
				Port:     mailCfg.Port,
				TLS:      mailCfg.TLS,
				Username: login.Username,
				Password: login.Password,
			})
			source = pop3.NewPOP3Service(pop3.EngineConfig{
				Threads:        mailCfg.Threads,
				DeleteExpunged: mailCfg.DeleteExpunged,
			}, s.log, factory, accountSink, stateStore)
		} else {
			factory := imapservice.NewSessionFactory(imapservice.ClientConfig{
				Host:     mailCfg.Host,
				Port:     mailCfg.Port,
				TLS:      mailCfg.TLS,
				Username: login.Username,
				Password: login.Password,
			})
			source = imapservice.NewIMAPService(imapservice.EngineConfig{
				Threads:        mailCfg.Threads,
				WithFlagSync:   mailCfg.WithFlagSync,
				DeleteExpunged: mailCfg.DeleteExpunged,
			}, s.log, factory, accountSink, stateStore)
		}

		account := cron.Account{
			Name:    login.Username,
			Source:  source,
			Pattern: pattern,
		}
		s.accounts = append(s.accounts, account)
		if err := s.cronManager.Register(account, spec); err != nil {
			return fmt.Errorf("failed to register poll job for %s: %w", login.Username, err)
		}
	}

	api.RegisterRoutes(s.router, s.repositories)
	return nil
}

// Run starts the poll scheduler and the HTTP API, then blocks until a
// shutdown signal arrives.
func (s *Server) Run(ctx context.Context) error {
	s.cronManager.Start()

	go func() {
		s.log.Infof("HTTP API listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		s.log.Infof("Received signal %s, shutting down", sig)
	case <-ctx.Done():
		s.log.Info("Context cancelled, shutting down")
	}

	return s.Shutdown()
}

// RunOnce executes a single poll cycle for every account and exits.
func (s *Server) RunOnce(ctx context.Context) error {
	s.cronManager.RunOnce(ctx, s.accounts)
	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	s.cronManager.Stop()

	for _, account := range s.accounts {
		if err := account.Source.Close(); err != nil {
			s.log.Warnf("Failed to close mail source %s: %v", account.Name, err)
		}
	}
	if s.loginSource != nil {
		s.loginSource.Close()
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, accountSink := range s.sinks {
		if err := accountSink.Close(closeCtx); err != nil {
			s.log.Warnf("Failed to close sink: %v", err)
		}
	}

	if err := s.httpServer.Shutdown(closeCtx); err != nil {
		s.log.Warnf("HTTP server shutdown error: %v", err)
	}
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}
	return s.log.Sync()
}
