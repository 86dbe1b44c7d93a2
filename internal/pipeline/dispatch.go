package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/internal/ai"
	"github.com/evan/mailpilot/internal/cache"
	"github.com/evan/mailpilot/pkg/types"
)

const summaryCandidateLimit = 25

// dispatcher executes resolved intents. Mutating intents require an
// explicit confirmation before any protocol call; every mutation opens
// its own connect/disconnect cycle.
type dispatcher struct {
	store       *cache.Store
	newMailbox  func() Mailbox
	selector    *ai.Selector
	prompter    Prompter
	interactive bool
	syncFolder  func(folder string)
	logger      *logrus.Logger
}

func (d *dispatcher) execute(ctx context.Context, intent *types.Intent) (string, error) {
	switch intent.Kind {
	case types.IntentSearch:
		return d.executeSearch(ctx, intent)
	case types.IntentDelete:
		return d.executeDelete(intent)
	case types.IntentMove:
		return d.executeMove(intent)
	case types.IntentCount:
		return d.executeCount(intent)
	case types.IntentListFolders:
		return d.executeListFolders()
	case types.IntentListFolderContents:
		return d.executeListFolderContents(intent)
	case types.IntentSummarize:
		return d.executeSummarize(ctx)
	default:
		return "", fmt.Errorf("unknown intent: %s", intent.Kind)
	}
}

// withMailbox runs fn against a freshly connected mailbox session and
// always disconnects afterwards.
func (d *dispatcher) withMailbox(fn func(Mailbox) error) error {
	m := d.newMailbox()
	if err := m.Connect(); err != nil {
		return err
	}
	defer func() {
		if err := m.Disconnect(); err != nil {
			d.logger.WithError(err).Debug("Mailbox disconnect failed")
		}
	}()

	return fn(m)
}

// matchIntent resolves the intent's parameter bag against the cache.
// Explicit subject lines take precedence over the filter.
func (d *dispatcher) matchIntent(intent *types.Intent) ([]types.CachedMessage, error) {
	if len(intent.Subjects) > 0 {
		var matched []types.CachedMessage
		seen := make(map[string]bool)
		for _, subject := range intent.Subjects {
			msgs, err := d.store.Search(types.Filter{Subject: strings.TrimSpace(subject)})
			if err != nil {
				return nil, err
			}
			for _, m := range msgs {
				key := fmt.Sprintf("%s\x00%d", m.Folder, m.UID)
				if !seen[key] {
					seen[key] = true
					matched = append(matched, m)
				}
			}
		}
		return matched, nil
	}

	return d.store.Search(intent.Filter)
}

// partitionByFolder groups uids by the folder each message was fetched
// from. A uid is only ever valid on the folder recorded on its
// CachedMessage.
func partitionByFolder(msgs []types.CachedMessage) map[string][]uint32 {
	parts := make(map[string][]uint32)
	for _, m := range msgs {
		parts[m.Folder] = append(parts[m.Folder], m.UID)
	}
	return parts
}

func sortedFolders(parts map[string][]uint32) []string {
	folders := make([]string, 0, len(parts))
	for folder := range parts {
		folders = append(folders, folder)
	}
	sort.Strings(folders)
	return folders
}

// deletePartitions issues one delete per source folder. A failure in one
// partition does not prevent attempted processing of the others.
func (d *dispatcher) deletePartitions(parts map[string][]uint32) (int, []string) {
	deleted := 0
	var failures []string

	err := d.withMailbox(func(m Mailbox) error {
		for _, folder := range sortedFolders(parts) {
			uids := parts[folder]
			if err := m.DeleteMessages(uids, folder); err != nil {
				d.logger.WithError(err).WithField("folder", folder).Warn("Delete failed for folder")
				failures = append(failures, fmt.Sprintf("%s: %v", folder, err))
				continue
			}
			deleted += len(uids)
		}
		return nil
	})
	if err != nil {
		failures = append(failures, err.Error())
	}

	return deleted, failures
}

// movePartitions issues one move per source folder, same failure
// isolation as deletePartitions.
func (d *dispatcher) movePartitions(parts map[string][]uint32, target string) (int, []string) {
	moved := 0
	var failures []string

	err := d.withMailbox(func(m Mailbox) error {
		for _, folder := range sortedFolders(parts) {
			uids := parts[folder]
			if err := m.MoveMessages(uids, folder, target); err != nil {
				d.logger.WithError(err).WithField("folder", folder).Warn("Move failed for folder")
				failures = append(failures, fmt.Sprintf("%s: %v", folder, err))
				continue
			}
			moved += len(uids)
		}
		return nil
	})
	if err != nil {
		failures = append(failures, err.Error())
	}

	return moved, failures
}

func (d *dispatcher) executeSearch(ctx context.Context, intent *types.Intent) (string, error) {
	msgs, err := d.store.Search(intent.Filter)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "No matching messages found.", nil
	}

	listing := renderMessages(msgs)

	if !d.interactive {
		return listing, nil
	}

	// Offer follow-up actions on the result set, grouped by source folder.
	choice, err := d.prompter.Select(
		fmt.Sprintf("%d message(s) found. What next?", len(msgs)),
		[]string{"view", "delete", "move", "nothing"},
	)
	if err != nil {
		if errors.Is(err, ErrInterrupted) {
			return "", err
		}
		return listing, nil
	}

	switch choice {
	case 0:
		return listing, nil
	case 1:
		return d.confirmAndDelete(msgs)
	case 2:
		target, err := d.prompter.Input("Move to which folder?")
		if err != nil {
			if errors.Is(err, ErrInterrupted) {
				return "", err
			}
			return "Cancelled, nothing was moved.", nil
		}
		if strings.TrimSpace(target) == "" {
			return "Cancelled, nothing was moved.", nil
		}
		return d.confirmAndMove(msgs, strings.TrimSpace(target))
	default:
		return listing, nil
	}
}

func (d *dispatcher) executeDelete(intent *types.Intent) (string, error) {
	msgs, err := d.matchIntent(intent)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "No matching messages found.", nil
	}

	return d.confirmAndDelete(msgs)
}

func (d *dispatcher) confirmAndDelete(msgs []types.CachedMessage) (string, error) {
	fmt.Println(renderMessages(msgs))

	ok, err := d.prompter.Confirm(fmt.Sprintf("Delete %d message(s)?", len(msgs)))
	if err != nil {
		return "", err
	}
	if !ok {
		return "Cancelled, nothing was deleted.", nil
	}

	deleted, failures := d.deletePartitions(partitionByFolder(msgs))
	return deleteSummary(deleted, failures), nil
}

func (d *dispatcher) executeMove(intent *types.Intent) (string, error) {
	if intent.TargetFolder == "" {
		return "Tell me which folder to move the messages to.", nil
	}

	msgs, err := d.matchIntent(intent)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "No matching messages found.", nil
	}

	return d.confirmAndMove(msgs, intent.TargetFolder)
}

func (d *dispatcher) confirmAndMove(msgs []types.CachedMessage, target string) (string, error) {
	fmt.Println(renderMessages(msgs))

	ok, err := d.prompter.Confirm(fmt.Sprintf("Move %d message(s) to %q?", len(msgs), target))
	if err != nil {
		return "", err
	}
	if !ok {
		return "Cancelled, nothing was moved.", nil
	}

	moved, failures := d.movePartitions(partitionByFolder(msgs), target)
	return moveSummary(moved, target, failures), nil
}

func (d *dispatcher) executeCount(intent *types.Intent) (string, error) {
	filter := intent.Filter
	if filter.Folder == "" && filter.Sender == "" && filter.Subject == "" && filter.Content == "" {
		filter.Folder = "INBOX"
	}

	count, err := d.store.Count(filter)
	if err != nil {
		return "", err
	}

	where := filter.Folder
	if where == "" {
		where = "the cache"
	}
	return fmt.Sprintf("%d message(s) in %s.", count, where), nil
}

func (d *dispatcher) executeListFolders() (string, error) {
	var folders []types.Folder
	err := d.withMailbox(func(m Mailbox) error {
		var listErr error
		folders, listErr = m.ListFolders()
		return listErr
	})
	if err != nil {
		return "", err
	}

	return renderFolders(folders), nil
}

func (d *dispatcher) executeListFolderContents(intent *types.Intent) (string, error) {
	folder := intent.Filter.Folder
	if folder == "" {
		return "Tell me which folder to list.", nil
	}

	filter := intent.Filter
	if filter.Limit == 0 {
		filter.Limit = 20
	}

	msgs, err := d.store.Search(filter)
	if err != nil {
		return "", err
	}

	if len(msgs) > 0 {
		return renderMessages(msgs), nil
	}

	if d.interactive && d.syncFolder != nil {
		ok, err := d.prompter.Confirm(fmt.Sprintf("No cached messages for %q. Download them in the background?", folder))
		if err != nil {
			if errors.Is(err, ErrInterrupted) {
				return "", err
			}
		} else if ok {
			d.syncFolder(folder)
			return fmt.Sprintf("Downloading %q in the background; ask again in a moment.", folder), nil
		}
	}

	return fmt.Sprintf("No cached messages for %q.", folder), nil
}

func (d *dispatcher) executeSummarize(ctx context.Context) (string, error) {
	msgs, err := d.store.Search(types.Filter{Limit: summaryCandidateLimit})
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "Nothing in the local cache to summarize.", nil
	}

	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "- %s | %s | %s\n", m.Date.Format("2006-01-02"), m.SenderEmail, m.Subject)
	}

	digest, err := d.selector.Ask(ctx,
		"You summarize a mailbox. Write a short prose digest of these recent messages: what stands out, who wrote, anything that looks like it needs action.",
		sb.String(),
	)
	if err != nil {
		d.logger.WithError(err).Debug("AI summary failed, listing recent messages instead")
		return "(AI summary unavailable, showing recent messages instead)\n" + renderMessages(msgs), nil
	}

	return digest, nil
}

func deleteSummary(deleted int, failures []string) string {
	if len(failures) == 0 {
		return fmt.Sprintf("Deleted %d message(s).", deleted)
	}
	return fmt.Sprintf("Deleted %d message(s); some folders failed: %s", deleted, strings.Join(failures, "; "))
}

func moveSummary(moved int, target string, failures []string) string {
	if len(failures) == 0 {
		return fmt.Sprintf("Moved %d message(s) to %q.", moved, target)
	}
	return fmt.Sprintf("Moved %d message(s) to %q; some folders failed: %s", moved, target, strings.Join(failures, "; "))
}

// sinceDays converts a day count into a Since timestamp, zero when the
// count is not positive.
func sinceDays(days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return time.Now().AddDate(0, 0, -days)
}
