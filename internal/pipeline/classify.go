package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/internal/ai"
	"github.com/evan/mailpilot/pkg/types"
)

const classifySystemPrompt = `You classify a mailbox request into a structured intent.
Answer with a single JSON object and nothing else:
{"intent":"search|delete|move|count|list_folders|list_folder_contents|summarize",
 "sender":"", "subject":"", "content":"", "folder":"", "target_folder":"", "days":0}
Leave fields empty when the request does not constrain them. "days" bounds
how far back to look, 0 for no bound.`

// classifyStage asks a backend for a structured classification of the
// query. Any parse failure of the response is absorbed and control falls
// through to the keyword stage.
type classifyStage struct {
	selector *ai.Selector
	logger   *logrus.Logger
}

type classification struct {
	Intent       string `json:"intent"`
	Sender       string `json:"sender"`
	Subject      string `json:"subject"`
	Content      string `json:"content"`
	Folder       string `json:"folder"`
	TargetFolder string `json:"target_folder"`
	Days         int    `json:"days"`
}

func (s *classifyStage) Name() string { return "intent classification" }

func (s *classifyStage) TryResolve(ctx context.Context, query string) (*Result, error) {
	if !s.selector.Available() {
		return nil, nil
	}

	resp, err := s.selector.Ask(ctx, classifySystemPrompt, query)
	if err != nil {
		return nil, err
	}

	intent, ok := parseClassification(resp)
	if !ok {
		s.logger.WithField("response", truncate(resp, 120)).Debug("Classification response was not parseable")
		return nil, nil
	}

	return &Result{Intent: intent}, nil
}

// parseClassification extracts the JSON object embedded in the model's
// response text and converts it into an Intent.
func parseClassification(resp string) (*types.Intent, bool) {
	start := strings.Index(resp, "{")
	end := strings.LastIndex(resp, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var c classification
	if err := json.Unmarshal([]byte(resp[start:end+1]), &c); err != nil {
		return nil, false
	}

	kind, ok := intentKind(c.Intent)
	if !ok {
		return nil, false
	}

	return &types.Intent{
		Kind: kind,
		Filter: types.Filter{
			Sender:  c.Sender,
			Subject: c.Subject,
			Content: c.Content,
			Folder:  c.Folder,
			Since:   sinceDays(c.Days),
		},
		TargetFolder: c.TargetFolder,
	}, true
}

func intentKind(s string) (types.IntentKind, bool) {
	switch types.IntentKind(strings.ToLower(strings.TrimSpace(s))) {
	case types.IntentSearch:
		return types.IntentSearch, true
	case types.IntentDelete:
		return types.IntentDelete, true
	case types.IntentMove:
		return types.IntentMove, true
	case types.IntentCount:
		return types.IntentCount, true
	case types.IntentListFolders:
		return types.IntentListFolders, true
	case types.IntentListFolderContents:
		return types.IntentListFolderContents, true
	case types.IntentSummarize:
		return types.IntentSummarize, true
	default:
		return "", false
	}
}
