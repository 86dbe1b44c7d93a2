package pipeline

import (
	"context"
	"strings"

	"github.com/evan/mailpilot/pkg/types"
)

// keywordStage is the deterministic, no-AI terminal stage. It cannot
// fail and always produces some intent for any non-empty input.
type keywordStage struct{}

func (keywordStage) Name() string { return "keyword fallback" }

func (keywordStage) TryResolve(_ context.Context, query string) (*Result, error) {
	lower := strings.ToLower(query)

	intent := &types.Intent{Kind: types.IntentSearch, Filter: types.Filter{Content: query}}

	switch {
	case strings.Contains(lower, "delete") || strings.Contains(lower, "remove") || strings.Contains(lower, "trash"):
		intent = &types.Intent{Kind: types.IntentDelete, Filter: types.Filter{Content: query}}
	case strings.Contains(lower, "move"):
		intent = &types.Intent{Kind: types.IntentMove, Filter: types.Filter{Content: query}}
	case strings.Contains(lower, "count") || strings.Contains(lower, "how many"):
		intent = &types.Intent{Kind: types.IntentCount}
	case strings.Contains(lower, "folder"):
		intent = &types.Intent{Kind: types.IntentListFolders}
	case strings.Contains(lower, "summar"):
		intent = &types.Intent{Kind: types.IntentSummarize}
	}

	return &Result{Intent: intent}, nil
}
