package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/internal/ai"
	"github.com/evan/mailpilot/internal/cache"
	"github.com/evan/mailpilot/internal/config"
	"github.com/evan/mailpilot/internal/mailbox"
	"github.com/evan/mailpilot/internal/pipeline"
	"github.com/evan/mailpilot/internal/session"
	"github.com/evan/mailpilot/internal/syncer"
)

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
	oneShot     = flag.String("q", "", "Resolve a single query and exit (non-interactive, no mutation)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mailpilot version %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	logger.SetOutput(os.Stderr)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Initialize the local cache
	msgCache, err := cache.NewCache(cfg.CachePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize cache")
	}
	defer msgCache.Close()

	store := cache.NewStore(msgCache, logger)

	selector := ai.NewSelector(cfg, logger)
	logger.WithField("backends", selector.BackendNames()).Debug("AI backend order")

	newMailbox := func() pipeline.Mailbox {
		return mailbox.NewClient(cfg, store, logger)
	}

	sync := syncer.New(cfg, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *oneShot != "" {
		p := pipeline.New(store, newMailbox, selector, pipeline.NonInteractive{}, false, nil, logger)
		answer, err := p.HandleConversation(ctx, *oneShot)
		if err != nil {
			logger.WithError(err).Fatal("Query failed")
		}
		fmt.Println(answer)
		return
	}

	sess, err := session.New(cfg, store, newMailbox, selector, sync, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start session")
	}

	if err := sess.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Session error")
	}
}
