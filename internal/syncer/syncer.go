// Package syncer opportunistically refreshes the local cache with recent
// messages. Sync is an optimization, never a correctness requirement:
// every error is swallowed and the cache remains whatever it was.
package syncer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/internal/cache"
	"github.com/evan/mailpilot/internal/config"
	"github.com/evan/mailpilot/internal/mailbox"
)

const fetchLimit = 200

// Syncer downloads recent messages into the local cache. Each sync opens
// and closes its own mailbox session so it never shares a connection
// with user-initiated operations.
type Syncer struct {
	cfg    *config.Config
	store  *cache.Store
	logger *logrus.Logger
}

// New creates a syncer.
func New(cfg *config.Config, store *cache.Store, logger *logrus.Logger) *Syncer {
	return &Syncer{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
}

// Start fires one non-blocking incremental download of recent inbox
// messages. Fired once per session start.
func (s *Syncer) Start(ctx context.Context) {
	go s.sync(ctx, "INBOX")
}

// SyncFolder starts a non-blocking on-demand download of one folder.
func (s *Syncer) SyncFolder(folder string) {
	go s.sync(context.Background(), folder)
}

func (s *Syncer) sync(ctx context.Context, folder string) {
	start := time.Now()
	since := time.Now().AddDate(0, 0, -s.cfg.SyncDays)

	client := mailbox.NewClient(s.cfg, s.store, s.logger)
	if err := client.Connect(); err != nil {
		s.logger.WithError(err).Debug("Background sync skipped, cannot connect")
		return
	}
	defer func() {
		if err := client.Disconnect(); err != nil {
			s.logger.WithError(err).Debug("Background sync disconnect failed")
		}
	}()

	msgs, err := client.FetchSince(folder, since, fetchLimit)
	if err != nil {
		s.logger.WithError(err).WithField("folder", folder).Debug("Background sync fetch failed")
		return
	}

	stored := 0
	for i := range msgs {
		if ctx.Err() != nil {
			return
		}
		if err := s.store.UpsertMessage(&msgs[i]); err != nil {
			s.logger.WithError(err).WithField("uid", msgs[i].UID).Debug("Could not cache message")
			continue
		}
		stored++
	}

	s.logger.WithFields(logrus.Fields{
		"folder":  folder,
		"count":   stored,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("Background sync finished")
}
