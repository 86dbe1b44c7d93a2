// Package session runs the interactive conversation loop: a
// read-line-evaluate loop bound to standard input/output with persisted
// command history and signal-safe shutdown.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	gosync "sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/internal/ai"
	"github.com/evan/mailpilot/internal/cache"
	"github.com/evan/mailpilot/internal/config"
	"github.com/evan/mailpilot/internal/pipeline"
	"github.com/evan/mailpilot/internal/syncer"
	"github.com/evan/mailpilot/pkg/types"
)

const mainPrompt = "mail> "

// Session is one interactive conversation with the engine.
type Session struct {
	cfg        *config.Config
	pipeline   *pipeline.Pipeline
	history    *History
	rl         *readline.Instance
	closeOnce  gosync.Once
	sync       *syncer.Syncer
	transcript []types.ConversationTurn
	logger     *logrus.Logger
}

// New wires up the readline instance, loads persisted history and builds
// an interactive pipeline around the session's prompter.
func New(
	cfg *config.Config,
	store *cache.Store,
	newMailbox func() pipeline.Mailbox,
	selector *ai.Selector,
	sync *syncer.Syncer,
	logger *logrus.Logger,
) (*Session, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 mainPrompt,
		InterruptPrompt:        "^C",
		EOFPrompt:              "exit",
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}

	// History I/O failures are absorbed: the session starts empty.
	history, err := LoadHistory(cfg.HistoryPath)
	if err != nil {
		logger.WithError(err).Warn("Could not load command history")
	}
	for _, entry := range history.Entries() {
		rl.SaveHistory(entry) //nolint:errcheck
	}

	prompter := &readlinePrompter{rl: rl, mainPrompt: mainPrompt}
	p := pipeline.New(store, newMailbox, selector, prompter, true, sync.SyncFolder, logger)

	return &Session{
		cfg:      cfg,
		pipeline: p,
		history:  history,
		rl:       rl,
		sync:     sync,
		logger:   logger,
	}, nil
}

// Run executes the conversation loop until an explicit exit command,
// end-of-input, an interrupt or context cancellation. All exit paths
// flush the history file.
func (s *Session) Run(ctx context.Context) error {
	defer s.shutdown()

	// Background sync is only worth it for a human at a terminal.
	if s.sync != nil && isatty.IsTerminal(os.Stdin.Fd()) {
		s.sync.Start(ctx)
	}

	// Readline does not watch the context, so a signal arriving while a
	// read is blocked would otherwise never reach shutdown. Closing the
	// instance forces the pending Readline to return.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			s.closeReadline()
		case <-watcherDone:
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := s.rl.Readline()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		s.history.Append(line)
		s.rl.SaveHistory(line) //nolint:errcheck

		// The readline loop is effectively suspended while the pipeline
		// runs; nested prompts reuse the same instance so they cannot
		// interleave with line reads.
		answer, err := s.pipeline.HandleConversation(ctx, line)
		if err != nil {
			if errors.Is(err, pipeline.ErrInterrupted) {
				return nil
			}
			answer = fmt.Sprintf("Error: %v", err)
		}

		if answer != "" {
			fmt.Println(answer)
		}

		s.transcript = append(s.transcript, types.ConversationTurn{
			ID:       uuid.NewString(),
			Query:    line,
			Response: answer,
			At:       time.Now(),
		})
	}
}

// Transcript returns the in-memory conversation turns of this session.
func (s *Session) Transcript() []types.ConversationTurn {
	out := make([]types.ConversationTurn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) shutdown() {
	if err := s.history.Flush(s.cfg.HistoryPath); err != nil {
		s.logger.WithError(err).Warn("Could not write command history")
	}
	s.closeReadline()
}

// closeReadline closes the readline instance exactly once; both the
// cancellation watcher and shutdown may race to it.
func (s *Session) closeReadline() {
	s.closeOnce.Do(func() {
		s.rl.Close() //nolint:errcheck
	})
}
