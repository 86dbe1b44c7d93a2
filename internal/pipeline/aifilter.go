package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/internal/ai"
	"github.com/evan/mailpilot/internal/cache"
	"github.com/evan/mailpilot/pkg/types"
)

const filterCandidateLimit = 50

// searchKeywords flag a query as search-flavored enough to be worth an
// AI filtering pass.
var searchKeywords = []string{"show", "find", "search", "list", "personal", "important", "from", "about"}

// aiFilterStage fetches a bounded candidate set from the cache using a
// rough time-window guess and asks the AI backend to narrow it. A
// backend failure falls through to the classification stage.
type aiFilterStage struct {
	store    *cache.Store
	selector *ai.Selector
	logger   *logrus.Logger
}

func (s *aiFilterStage) Name() string { return "AI filtering" }

func (s *aiFilterStage) TryResolve(ctx context.Context, query string) (*Result, error) {
	if !s.selector.Available() {
		return nil, nil
	}

	lower := strings.ToLower(query)
	if !containsAny(lower, searchKeywords) {
		return nil, nil
	}

	candidates, err := s.store.Search(typesFilterForWindow(guessWindow(lower)))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		// Nothing to narrow; let the later stages interpret the query.
		return nil, nil
	}

	filtered, err := s.selector.Filter(ctx, candidates, query, "emails")
	if err != nil {
		return nil, err
	}
	if len(filtered) == 0 {
		return &Result{Text: "No matching messages found."}, nil
	}

	return &Result{
		Text: fmt.Sprintf("%d message(s) match:\n%s", len(filtered), renderMessages(filtered)),
	}, nil
}

// typesFilterForWindow bounds the candidate set: recent messages only,
// trash and junk excluded.
func typesFilterForWindow(since time.Time) types.Filter {
	return types.Filter{
		Since:          since,
		Limit:          filterCandidateLimit,
		ExcludeFolders: []string{"Trash", "Junk"},
	}
}

// guessWindow extracts a rough time window from words like "today",
// "yesterday" and "week".
func guessWindow(lower string) time.Time {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case strings.Contains(lower, "today"):
		return midnight
	case strings.Contains(lower, "yesterday"):
		return midnight.AddDate(0, 0, -1)
	case strings.Contains(lower, "week"):
		return now.AddDate(0, 0, -7)
	default:
		return now.AddDate(0, 0, -30)
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
