package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/launchkit/launchkit/internal/config"
	"github.com/launchkit/launchkit/internal/es"
	"github.com/launchkit/launchkit/internal/handlers"
	"github.com/launchkit/launchkit/internal/logging"
	"github.com/launchkit/launchkit/internal/mailer"
	authmw "github.com/launchkit/launchkit/internal/middleware/auth"
	logmw "github.com/launchkit/launchkit/internal/middleware/logging"
	"github.com/launchkit/launchkit/internal/mykafka"
	"github.com/launchkit/launchkit/internal/session"
	"github.com/launchkit/launchkit/internal/token"
	httpserver "github.com/launchkit/launchkit/internal/transport/http"
)

const postsIndex = "posts"

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	var prod *mykafka.Producer
	if configuration.KAFKA_ADDRESS != "" {
		prod = mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
	} else {
		logger.Warn("KAFKA_ADDRESS not set, events disabled")
	}

	var esClient *elasticsearch.Client
	if configuration.ES_URL != "" {
		esClient, err = es.NewClient(configuration)
		if err != nil {
			log.Fatalf("elasticsearch init error: %v", err)
		}
	} else {
		logger.Warn("ES_URL not set, search disabled")
	}

	var mail mailer.Mailer
	if configuration.SMTP_ADDR != "" {
		mail = mailer.NewSMTP(
			configuration.SMTP_ADDR,
			configuration.SMTP_FROM,
			configuration.SMTP_USER,
			configuration.SMTP_PASSWORD,
			configuration.SMTP_HOST,
		)
	} else {
		logger.Warn("SMTP_ADDR not set, mail goes to the log")
		mail = &mailer.LogMailer{Logger: logger}
	}

	tokens := token.NewStore(db)
	sessions := session.NewManager(db, tokens, mail, configuration.APP_BASE_URL)
	gate := authmw.NewGate(sessions)

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), logmw.RequestLogger(logger))

	deps := httpserver.Deps{
		DB:   db,
		Gate: gate,
		AuthHandler: &handlers.AuthHandler{
			DB: db, Sessions: sessions, Producer: prod,
		},
		UserHandler: &handlers.UserHandler{
			DB: db, Sessions: sessions, Producer: prod,
		},
		PostHandler: &handlers.PostHandler{
			DB: db, Producer: prod, ES: esClient, Index: postsIndex,
		},
		ContactHandler: &handlers.ContactHandler{
			DB: db, Mail: mail, Recipient: configuration.CONTACT_RECIPIENT,
		},
		NewsletterHandler: &handlers.NewsletterHandler{
			DB: db, Mail: mail, Producer: prod,
			Secret:  []byte(configuration.NEWSLETTER_SECRET),
			BaseURL: configuration.APP_BASE_URL,
		},
		SearchHandler: &handlers.SearchHandler{ES: esClient, Index: postsIndex},
	}
	httpserver.Register(e, &deps)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweepLoop(sweepCtx, tokens, sessions)

	srv := &http.Server{
		Addr:         configuration.HTTP_ADDR,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	logger.Info("listening", "addr", configuration.HTTP_ADDR)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}

	if err := prod.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// sweepLoop periodically clears expired sessions and verification tokens.
// Both are also rejected (and removed) lazily when presented, so the sweep
// only keeps the tables from growing.
func sweepLoop(ctx context.Context, tokens *token.Store, sessions *session.Manager) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l := logging.FromContext(ctx)
			if n, err := tokens.SweepExpired(ctx); err != nil {
				l.Error("token sweep error", "error", err)
			} else if n > 0 {
				l.Info("token sweep", "removed", n)
			}
			if n, err := sessions.SweepExpired(ctx); err != nil {
				l.Error("session sweep error", "error", err)
			} else if n > 0 {
				l.Info("session sweep", "removed", n)
			}
		}
	}
}
