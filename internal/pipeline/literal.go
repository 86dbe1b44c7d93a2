package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/pkg/types"
)

// literalStage recognizes a small set of extremely common phrasings
// directly, performing its own cache query, confirmation and protocol
// action without consulting any AI backend.
type literalStage struct {
	d      *dispatcher
	logger *logrus.Logger
}

var (
	reCount       = regexp.MustCompile(`(?i)^how many (?:e-?mails?|messages?)\b`)
	reCountFolder = regexp.MustCompile(`(?i)\bin (?:the )?([A-Za-z0-9_\[\]/.-]+?)\??$`)
	reFromClause  = regexp.MustCompile(`(?i)\bfrom\s+(.+?)\??$`)
	reArchive     = regexp.MustCompile(`(?i)^archive (?:(?:e-?mails?|messages?|mail)\s+)?from\s+(.+?)\??$`)
	reDeleteThese = regexp.MustCompile(`(?i)^delete these:?\s+(.+)$`)
	reSubjects    = regexp.MustCompile(`(?i)^(?:show|list) (?:me )?subjects(?:\s+from\s+(.+?))?\??$`)
	reFromOnly    = regexp.MustCompile(`(?i)^(?:e-?mails?|messages?|mail)\s+from\s+(.+?)\??$`)
)

func (s *literalStage) Name() string { return "literal matcher" }

func (s *literalStage) TryResolve(ctx context.Context, query string) (*Result, error) {
	lower := strings.ToLower(query)

	switch {
	case reCount.MatchString(query):
		return s.count(query)
	case reArchive.MatchString(query):
		return s.archiveFrom(reArchive.FindStringSubmatch(query)[1])
	case reDeleteThese.MatchString(query):
		return s.deleteThese(reDeleteThese.FindStringSubmatch(query)[1])
	case reSubjects.MatchString(query):
		return s.showSubjects(reSubjects.FindStringSubmatch(query)[1])
	case strings.Contains(lower, "most messages") || strings.Contains(lower, "top senders"):
		return s.topSenders()
	case strings.Contains(lower, "unique senders"):
		return s.uniqueSenders()
	case reFromOnly.MatchString(query):
		return s.fromSender(ctx, reFromOnly.FindStringSubmatch(query)[1])
	}

	return nil, nil
}

// count answers "how many ..." queries. Without a from/with/contain
// clause this is the literal count of cached INBOX messages, unfiltered
// by any other criterion.
func (s *literalStage) count(query string) (*Result, error) {
	filter := types.Filter{Folder: "INBOX"}

	if m := reFromClause.FindStringSubmatch(query); m != nil {
		filter = types.Filter{Sender: strings.TrimSpace(m[1])}
	} else if strings.Contains(strings.ToLower(query), "with") || strings.Contains(strings.ToLower(query), "contain") {
		// Too vague to match literally, let a later stage interpret it.
		return nil, nil
	} else if m := reCountFolder.FindStringSubmatch(query); m != nil {
		filter = types.Filter{Folder: m[1]}
	}

	count, err := s.d.store.Count(filter)
	if err != nil {
		return nil, err
	}

	switch {
	case filter.Sender != "":
		return &Result{Text: fmt.Sprintf("%d message(s) from %s.", count, filter.Sender)}, nil
	default:
		return &Result{Text: fmt.Sprintf("%d message(s) in %s.", count, filter.Folder)}, nil
	}
}

// archiveFrom moves every cached INBOX message from the sender into the
// archive folder after confirmation.
func (s *literalStage) archiveFrom(sender string) (*Result, error) {
	// The whole backlog for the sender, not just the default search page.
	msgs, err := s.d.store.Search(types.Filter{Sender: sender, Folder: "INBOX", Limit: 1000})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return &Result{Text: fmt.Sprintf("No messages from %s in INBOX.", sender)}, nil
	}

	ok, err := s.d.prompter.Confirm(fmt.Sprintf("Archive %d message(s) from %s?", len(msgs), sender))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{Text: "Cancelled, nothing was archived."}, nil
	}

	target := "Archive"
	moved := 0
	var failures []string

	err = s.d.withMailbox(func(m Mailbox) error {
		folders, err := m.ListFolders()
		if err == nil {
			for _, f := range folders {
				if f.SpecialUse == types.UseArchive {
					target = f.Path
					break
				}
			}
		}

		parts := partitionByFolder(msgs)
		for _, folder := range sortedFolders(parts) {
			uids := parts[folder]
			if err := m.MoveMessages(uids, folder, target); err != nil {
				s.logger.WithError(err).WithField("folder", folder).Warn("Archive move failed for folder")
				failures = append(failures, fmt.Sprintf("%s: %v", folder, err))
				continue
			}
			moved += len(uids)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{Text: moveSummary(moved, target, failures)}, nil
}

// deleteThese matches explicit, comma-separated subject lines and deletes
// the messages they name after confirmation.
func (s *literalStage) deleteThese(list string) (*Result, error) {
	var subjects []string
	for _, part := range strings.Split(list, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			subjects = append(subjects, trimmed)
		}
	}
	if len(subjects) == 0 {
		return nil, nil
	}

	intent := &types.Intent{Kind: types.IntentDelete, Subjects: subjects}
	msgs, err := s.d.matchIntent(intent)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return &Result{Text: "No messages matched those subjects."}, nil
	}

	text, err := s.d.confirmAndDelete(msgs)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}

func (s *literalStage) showSubjects(sender string) (*Result, error) {
	filter := types.Filter{Limit: 50}
	if sender != "" {
		filter.Sender = strings.TrimSpace(sender)
	}

	msgs, err := s.d.store.Search(filter)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return &Result{Text: "No matching messages found."}, nil
	}

	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "- %s\n", m.Subject)
	}
	return &Result{Text: strings.TrimRight(sb.String(), "\n")}, nil
}

func (s *literalStage) topSenders() (*Result, error) {
	counts, err := s.d.store.TopSenders(10)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return &Result{Text: "The local cache is empty."}, nil
	}
	return &Result{Text: renderSenderCounts(counts)}, nil
}

func (s *literalStage) uniqueSenders() (*Result, error) {
	senders, err := s.d.store.UniqueSenders()
	if err != nil {
		return nil, err
	}
	if len(senders) == 0 {
		return &Result{Text: "The local cache is empty."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d unique sender(s):\n", len(senders))
	for _, sender := range senders {
		fmt.Fprintf(&sb, "- %s\n", sender)
	}
	return &Result{Text: strings.TrimRight(sb.String(), "\n")}, nil
}

func (s *literalStage) fromSender(ctx context.Context, sender string) (*Result, error) {
	intent := &types.Intent{
		Kind:   types.IntentSearch,
		Filter: types.Filter{Sender: strings.TrimSpace(sender)},
	}

	text, err := s.d.executeSearch(ctx, intent)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}
