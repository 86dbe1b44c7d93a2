// Package pipeline turns one line of free text into a concrete mailbox
// action or a result set. Strategies are tried in a fixed priority order,
// each strictly more general and strictly less precise than the one
// before it; the ordering guarantees the cheapest, most literal
// interpretation wins when applicable, and guarantees termination even
// with no network access and no AI backend configured.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/internal/ai"
	"github.com/evan/mailpilot/internal/cache"
	"github.com/evan/mailpilot/pkg/types"
)

// Mailbox is the protocol surface the pipeline needs. *mailbox.Client
// satisfies it; tests substitute fakes.
type Mailbox interface {
	Connect() error
	Disconnect() error
	ListFolders() ([]types.Folder, error)
	MoveMessages(uids []uint32, sourceFolder, targetFolder string) error
	DeleteMessages(uids []uint32, sourceFolder string) error
}

// Result is what a strategy produces: either final response text, or an
// Intent for the dispatcher to execute.
type Result struct {
	Text   string
	Intent *types.Intent
}

// Strategy attempts to resolve a query. A nil Result means "not
// applicable, try the next stage"; an error means the stage was
// applicable but failed, which also falls through.
type Strategy interface {
	Name() string
	TryResolve(ctx context.Context, query string) (*Result, error)
}

// Pipeline is the ordered strategy chain plus the intent dispatcher.
type Pipeline struct {
	stages     []Strategy
	dispatcher *dispatcher
	logger     *logrus.Logger
}

// New builds the pipeline. prompter mediates confirmations and
// selections; interactive false replaces all mutation UI with direct
// display of results. syncFolder, when non-nil, starts an on-demand
// background download of a folder.
func New(
	store *cache.Store,
	newMailbox func() Mailbox,
	selector *ai.Selector,
	prompter Prompter,
	interactive bool,
	syncFolder func(folder string),
	logger *logrus.Logger,
) *Pipeline {
	d := &dispatcher{
		store:       store,
		newMailbox:  newMailbox,
		selector:    selector,
		prompter:    prompter,
		interactive: interactive,
		syncFolder:  syncFolder,
		logger:      logger,
	}

	return &Pipeline{
		stages: []Strategy{
			&literalStage{d: d, logger: logger},
			&aiFilterStage{store: store, selector: selector, logger: logger},
			&classifyStage{selector: selector, logger: logger},
			&keywordStage{},
		},
		dispatcher: d,
		logger:     logger,
	}
}

// StageNames returns the strategy order, first-tried first.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// HandleConversation resolves one query and returns the response text.
// Stage failures degrade to the next stage with a brief notice; the
// keyword stage guarantees some interpretation is always produced.
func (p *Pipeline) HandleConversation(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}

	start := time.Now()
	var notices []string

	for _, stage := range p.stages {
		res, err := stage.TryResolve(ctx, query)
		if err != nil {
			// A user interrupt cancels the whole resolution; it must never
			// degrade into a fall-through answer.
			if errors.Is(err, ErrInterrupted) {
				return "", err
			}
			p.logger.WithError(err).WithField("stage", stage.Name()).Debug("Stage failed, falling through")
			notices = append(notices, fmt.Sprintf("(%s unavailable, falling back to a simpler interpretation)", stage.Name()))
			continue
		}
		if res == nil {
			continue
		}

		p.logger.WithFields(logrus.Fields{
			"stage":   stage.Name(),
			"elapsed": time.Since(start).Round(time.Millisecond),
		}).Debug("Query resolved")

		text := res.Text
		if res.Intent != nil {
			text, err = p.dispatcher.execute(ctx, res.Intent)
			if err != nil {
				return withNotices(notices, ""), err
			}
		}

		return withNotices(notices, text), nil
	}

	// Unreachable: the keyword stage never declines.
	return withNotices(notices, "I could not work out what to do with that request."), nil
}

func withNotices(notices []string, text string) string {
	if len(notices) == 0 {
		return text
	}
	joined := strings.Join(notices, "\n")
	if text == "" {
		return joined
	}
	return joined + "\n" + text
}
