package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/internal/config"
	"github.com/evan/mailpilot/pkg/types"
)

// ErrNoBackend is returned when no AI backend is configured.
var ErrNoBackend = errors.New("no AI backend configured")

const memoSize = 64

// Selector holds the ordered list of backends to try, built once at
// startup so "which backend answered" is inspectable state rather than
// environment inspection scattered through call sites.
type Selector struct {
	backends []Backend
	memo     *lru.Cache[string, string]
	debug    bool
	logger   *logrus.Logger
}

// NewSelector builds the backend order from configuration. When hosted
// API credentials are configured the subprocess backend is preferred
// first with the shorter timeout, falling back to the hosted API; when
// they are absent the subprocess backend runs alone with its full
// default timeout.
func NewSelector(cfg *config.Config, logger *logrus.Logger) *Selector {
	var backends []Backend

	if strings.TrimSpace(cfg.AICommand) != "" {
		timeout := cfg.AICommandTimeout
		if cfg.HasHostedAI() {
			// Waiting less before falling over is strictly better when
			// an alternative exists.
			timeout = cfg.AIShortTimeout
		}
		backends = append(backends, NewSubprocess(cfg.AICommand, timeout, logger))
	}

	if cfg.HasHostedAI() {
		backends = append(backends, NewAnthropic(cfg.AnthropicAPIKey, cfg.AIModel, cfg.AIAPITimeout, logger))
	}

	memo, _ := lru.New[string, string](memoSize)

	return &Selector{
		backends: backends,
		memo:     memo,
		debug:    cfg.AIDebug,
		logger:   logger,
	}
}

// newSelectorWithBackends is the test seam for injecting fake backends.
func newSelectorWithBackends(backends []Backend, logger *logrus.Logger) *Selector {
	memo, _ := lru.New[string, string](memoSize)
	return &Selector{backends: backends, memo: memo, logger: logger}
}

// Available reports whether at least one backend is configured.
func (s *Selector) Available() bool {
	return len(s.backends) > 0
}

// BackendNames returns the configured backend order, first-tried first.
func (s *Selector) BackendNames() []string {
	names := make([]string, len(s.backends))
	for i, b := range s.backends {
		names[i] = b.Name()
	}
	return names
}

// Ask tries each backend in order and returns the first answer. If every
// backend fails the combined error names each failure reason. Identical
// prompts within a session are memoized.
func (s *Selector) Ask(ctx context.Context, system, prompt string) (string, error) {
	if len(s.backends) == 0 {
		return "", ErrNoBackend
	}

	key := system + "\x00" + prompt
	if answer, ok := s.memo.Get(key); ok {
		return answer, nil
	}

	var failures []string
	for _, b := range s.backends {
		answer, err := b.Ask(ctx, system, prompt)
		if err == nil {
			s.memo.Add(key, answer)
			return answer, nil
		}

		s.logger.WithError(err).WithField("backend", b.Name()).Debug("AI backend failed")
		failures = append(failures, fmt.Sprintf("%s: %v", b.Name(), err))
	}

	return "", fmt.Errorf("all AI backends failed: %s", strings.Join(failures, "; "))
}

const filterSystemPrompt = "You select items from a list. " +
	"Answer with a JSON array of the ids of matching items and nothing else, " +
	"for example [1,4,7]. Answer [] when nothing matches."

// Filter asks a backend which of the given messages match the
// natural-language query and returns that subset. Any parse failure of
// the response returns the original unfiltered list: filtering is an
// enhancement, never a hard dependency. A backend failure is returned to
// the caller so the pipeline can fall through to its next stage.
func (s *Selector) Filter(ctx context.Context, items []types.CachedMessage, query, itemType string) ([]types.CachedMessage, error) {
	if len(items) == 0 {
		return items, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Which of these %s match: %q\n\n", itemType, query)
	for _, m := range items {
		fmt.Fprintf(&sb, "id=%d from=%s subject=%s date=%s\n",
			m.ID, m.SenderEmail, m.Subject, m.Date.Format("2006-01-02"))
	}

	if s.debug {
		s.logger.WithFields(logrus.Fields{
			"query": query,
			"items": len(items),
		}).Info("AI filter input")
		s.logger.Debug(sb.String())
	}

	resp, err := s.Ask(ctx, filterSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	if s.debug {
		s.logger.WithField("response", resp).Info("AI filter output")
	}

	ids, ok := parseIDArray(resp)
	if !ok {
		s.logger.Debug("AI filter response was not a JSON id array, returning unfiltered list")
		return items, nil
	}

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var subset []types.CachedMessage
	for _, m := range items {
		if wanted[m.ID] {
			subset = append(subset, m)
		}
	}

	return subset, nil
}

// parseIDArray extracts a JSON integer array embedded anywhere in the
// response text.
func parseIDArray(resp string) ([]int64, bool) {
	start := strings.Index(resp, "[")
	end := strings.LastIndex(resp, "]")
	if start < 0 || end <= start {
		return nil, false
	}

	var ids []int64
	if err := json.Unmarshal([]byte(resp[start:end+1]), &ids); err != nil {
		return nil, false
	}

	return ids, true
}
