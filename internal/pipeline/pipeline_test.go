package pipeline

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evan/mailpilot/internal/ai"
	"github.com/evan/mailpilot/internal/cache"
	"github.com/evan/mailpilot/internal/config"
	"github.com/evan/mailpilot/pkg/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()

	logger := testLogger()
	msgCache, err := cache.NewCache(filepath.Join(t.TempDir(), "cache.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { msgCache.Close() })
	return cache.NewStore(msgCache, logger)
}

func noAI(t *testing.T) *ai.Selector {
	t.Helper()
	return ai.NewSelector(&config.Config{}, testLogger())
}

type mbMove struct {
	uids   []uint32
	source string
	target string
}

type mbDelete struct {
	uids   []uint32
	folder string
}

// fakeMailbox records protocol calls issued by the dispatcher. When
// store is set, moves reassign the cached folder like the real client.
type fakeMailbox struct {
	store       *cache.Store
	folders     []types.Folder
	listErr     error
	moves       []mbMove
	moveErr     map[string]error
	deletes     []mbDelete
	deleteErr   map[string]error
	connects    int
	disconnects int
}

func (f *fakeMailbox) Connect() error    { f.connects++; return nil }
func (f *fakeMailbox) Disconnect() error { f.disconnects++; return nil }

func (f *fakeMailbox) ListFolders() ([]types.Folder, error) {
	return f.folders, f.listErr
}

func (f *fakeMailbox) MoveMessages(uids []uint32, sourceFolder, targetFolder string) error {
	if err := f.moveErr[sourceFolder]; err != nil {
		return err
	}
	f.moves = append(f.moves, mbMove{uids: uids, source: sourceFolder, target: targetFolder})
	if f.store != nil {
		if err := f.store.ReassignFolder(uids, sourceFolder, targetFolder); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMailbox) DeleteMessages(uids []uint32, sourceFolder string) error {
	if err := f.deleteErr[sourceFolder]; err != nil {
		return err
	}
	f.deletes = append(f.deletes, mbDelete{uids: uids, folder: sourceFolder})
	return nil
}

type fakePrompter struct {
	confirm   bool
	confirms  []string
	selectIdx int
	input     string
}

func (p *fakePrompter) Confirm(question string) (bool, error) {
	p.confirms = append(p.confirms, question)
	return p.confirm, nil
}

func (p *fakePrompter) Select(string, []string) (int, error) { return p.selectIdx, nil }
func (p *fakePrompter) Input(string) (string, error)         { return p.input, nil }

// interruptingPrompter simulates a ^C at every nested prompt.
type interruptingPrompter struct{}

func (interruptingPrompter) Confirm(string) (bool, error)         { return false, ErrInterrupted }
func (interruptingPrompter) Select(string, []string) (int, error) { return -1, ErrInterrupted }
func (interruptingPrompter) Input(string) (string, error)         { return "", ErrInterrupted }

func seedInbox(t *testing.T, store *cache.Store) {
	t.Helper()

	base := time.Now().Add(-2 * time.Hour)
	msgs := []types.CachedMessage{
		{UID: 1, Folder: "INBOX", SenderEmail: "alice@example.com", SenderName: "Alice", Subject: "Quarterly report", Date: base},
		{UID: 2, Folder: "INBOX", SenderEmail: "notifications@foo.com", SenderName: "Foo Alerts", Subject: "Invoice #1", Date: base.Add(time.Minute)},
		{UID: 3, Folder: "INBOX", SenderEmail: "notifications@foo.com", SenderName: "Foo Alerts", Subject: "Invoice #2", Date: base.Add(2 * time.Minute)},
		{UID: 4, Folder: "INBOX", SenderEmail: "notifications@foo.com", SenderName: "Foo Alerts", Subject: "Build failed", Date: base.Add(3 * time.Minute)},
		{UID: 5, Folder: "Archive", SenderEmail: "bob@example.com", SenderName: "Bob", Subject: "Lunch plans", Date: base.Add(4 * time.Minute)},
	}
	for i := range msgs {
		require.NoError(t, store.UpsertMessage(&msgs[i]))
	}
}

func newTestPipeline(t *testing.T, store *cache.Store, mb *fakeMailbox, prompter Prompter) *Pipeline {
	t.Helper()
	if prompter == nil {
		prompter = NonInteractive{}
	}
	return New(store, func() Mailbox { return mb }, noAI(t), prompter, true, nil, testLogger())
}

func TestHandleConversation_EmptyQuery(t *testing.T) {
	p := newTestPipeline(t, newTestStore(t), &fakeMailbox{}, nil)

	answer, err := p.HandleConversation(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, "", answer)
}

func TestHandleConversation_BareCount(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)
	p := newTestPipeline(t, store, &fakeMailbox{}, nil)

	answer, err := p.HandleConversation(context.Background(), "how many emails do I have?")
	require.NoError(t, err)
	assert.Equal(t, "4 message(s) in INBOX.", answer)
}

func TestHandleConversation_CountFromSender(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)
	p := newTestPipeline(t, store, &fakeMailbox{}, nil)

	answer, err := p.HandleConversation(context.Background(), "how many emails from notifications@foo.com")
	require.NoError(t, err)
	assert.Equal(t, "3 message(s) from notifications@foo.com.", answer)
}

func TestHandleConversation_ArchiveFromSender(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)

	mb := &fakeMailbox{store: store, folders: []types.Folder{
		{Name: "INBOX", Path: "INBOX", SpecialUse: types.UseInbox},
		{Name: "All Mail", Path: "All Mail", SpecialUse: types.UseArchive},
	}}
	prompter := &fakePrompter{confirm: true}
	p := newTestPipeline(t, store, mb, prompter)

	answer, err := p.HandleConversation(context.Background(), "archive from notifications@foo.com")
	require.NoError(t, err)
	assert.Equal(t, `Moved 3 message(s) to "All Mail".`, answer)

	require.Len(t, mb.moves, 1)
	assert.Equal(t, "INBOX", mb.moves[0].source)
	assert.Equal(t, "All Mail", mb.moves[0].target)
	assert.ElementsMatch(t, []uint32{2, 3, 4}, mb.moves[0].uids)
	assert.Equal(t, 1, mb.connects)
	assert.Equal(t, 1, mb.disconnects)
	require.Len(t, prompter.confirms, 1)
	assert.Contains(t, prompter.confirms[0], "Archive 3 message(s)")

	// Nothing from that sender is still attributed to INBOX afterwards.
	count, err := store.Count(types.Filter{Sender: "notifications@foo.com", Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHandleConversation_ArchiveDeclined(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)

	mb := &fakeMailbox{}
	p := newTestPipeline(t, store, mb, &fakePrompter{confirm: false})

	answer, err := p.HandleConversation(context.Background(), "archive from notifications@foo.com")
	require.NoError(t, err)
	assert.Equal(t, "Cancelled, nothing was archived.", answer)
	assert.Empty(t, mb.moves)
	assert.Equal(t, 0, mb.connects)
}

func TestHandleConversation_ArchiveDefaultsTargetWithoutSpecialUse(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)

	mb := &fakeMailbox{folders: []types.Folder{{Name: "INBOX", Path: "INBOX", SpecialUse: types.UseInbox}}}
	p := newTestPipeline(t, store, mb, &fakePrompter{confirm: true})

	_, err := p.HandleConversation(context.Background(), "archive emails from alice@example.com")
	require.NoError(t, err)
	require.Len(t, mb.moves, 1)
	assert.Equal(t, "Archive", mb.moves[0].target)
}

func TestHandleConversation_DeleteTheseConfirmed(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)

	mb := &fakeMailbox{}
	p := newTestPipeline(t, store, mb, &fakePrompter{confirm: true})

	answer, err := p.HandleConversation(context.Background(), "delete these: Invoice #1, Invoice #2")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 2 message(s).", answer)

	require.Len(t, mb.deletes, 1)
	assert.Equal(t, "INBOX", mb.deletes[0].folder)
	assert.ElementsMatch(t, []uint32{2, 3}, mb.deletes[0].uids)
}

func TestHandleConversation_DeleteTheseDeclined(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)

	mb := &fakeMailbox{}
	p := newTestPipeline(t, store, mb, &fakePrompter{confirm: false})

	answer, err := p.HandleConversation(context.Background(), "delete these: Invoice #1, Invoice #2")
	require.NoError(t, err)
	assert.Equal(t, "Cancelled, nothing was deleted.", answer)
	assert.Empty(t, mb.deletes)
	assert.Equal(t, 0, mb.connects)
}

func TestHandleConversation_InterruptAtConfirmationCancels(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)

	mb := &fakeMailbox{}
	p := newTestPipeline(t, store, mb, interruptingPrompter{})

	// The interrupt must surface as an error, not degrade into a
	// fall-through interpretation by a later stage.
	answer, err := p.HandleConversation(context.Background(), "delete these: Invoice #1, Invoice #2")
	require.ErrorIs(t, err, ErrInterrupted)
	assert.Empty(t, answer)
	assert.Empty(t, mb.deletes)
	assert.Equal(t, 0, mb.connects)
}

func TestHandleConversation_InterruptAtArchiveConfirmCancels(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)

	mb := &fakeMailbox{}
	p := newTestPipeline(t, store, mb, interruptingPrompter{})

	_, err := p.HandleConversation(context.Background(), "archive from notifications@foo.com")
	require.ErrorIs(t, err, ErrInterrupted)
	assert.Empty(t, mb.moves)
}

func TestDispatcher_InterruptAtSelectPropagates(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)

	d := &dispatcher{
		store:       store,
		prompter:    interruptingPrompter{},
		interactive: true,
		logger:      testLogger(),
	}

	_, err := d.executeSearch(context.Background(), &types.Intent{
		Kind:   types.IntentSearch,
		Filter: types.Filter{Folder: "INBOX"},
	})
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestHandleConversation_NoAIStillAnswers(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)
	p := newTestPipeline(t, store, &fakeMailbox{}, nil)

	// No literal match and no AI backend: the keyword stage must still
	// produce something.
	answer, err := p.HandleConversation(context.Background(), "show me anything interesting please")
	require.NoError(t, err)
	assert.Equal(t, "No matching messages found.", answer)
}

func TestHandleConversation_ListFolders(t *testing.T) {
	mb := &fakeMailbox{folders: []types.Folder{
		{Name: "INBOX", Path: "INBOX", SpecialUse: types.UseInbox},
		{Name: "Receipts", Path: "Receipts"},
	}}
	p := newTestPipeline(t, newTestStore(t), mb, nil)

	answer, err := p.HandleConversation(context.Background(), "what folders do I have")
	require.NoError(t, err)
	assert.Contains(t, answer, "INBOX")
	assert.Contains(t, answer, "Receipts")
}

func TestHandleConversation_SummarizeWithoutAI(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)
	p := newTestPipeline(t, store, &fakeMailbox{}, nil)

	answer, err := p.HandleConversation(context.Background(), "summarize my inbox")
	require.NoError(t, err)
	assert.Contains(t, answer, "(AI summary unavailable")
	assert.Contains(t, answer, "Quarterly report")
}

func TestHandleConversation_FailedStagesAddNotices(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)

	// A subprocess backend pointing at a missing binary makes every AI
	// stage fail, exercising the fall-through path end to end.
	cfg := &config.Config{
		AICommand:        "definitely-not-a-real-binary-xyz",
		AICommandTimeout: 2 * time.Second,
	}
	selector := ai.NewSelector(cfg, testLogger())
	p := New(store, func() Mailbox { return &fakeMailbox{} }, selector, NonInteractive{}, true, nil, testLogger())

	answer, err := p.HandleConversation(context.Background(), "show me mail about dinner plans")
	require.NoError(t, err)
	assert.Contains(t, answer, "AI filtering unavailable")
	assert.Contains(t, answer, "intent classification unavailable")
	assert.Contains(t, answer, "No matching messages found.")
}

func TestStageNames_Order(t *testing.T) {
	p := newTestPipeline(t, newTestStore(t), &fakeMailbox{}, nil)
	assert.Equal(t, []string{
		"literal matcher",
		"AI filtering",
		"intent classification",
		"keyword fallback",
	}, p.StageNames())
}

func TestDispatcher_DeletePartitionFailureIsolated(t *testing.T) {
	mb := &fakeMailbox{deleteErr: map[string]error{"INBOX": errors.New("NO")}}
	d := &dispatcher{
		newMailbox: func() Mailbox { return mb },
		logger:     testLogger(),
	}

	deleted, failures := d.deletePartitions(map[string][]uint32{
		"INBOX":   {1, 2},
		"Archive": {5},
	})

	assert.Equal(t, 1, deleted)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "INBOX")
	require.Len(t, mb.deletes, 1)
	assert.Equal(t, "Archive", mb.deletes[0].folder)
}

func TestDispatcher_CountDefaultsToInbox(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)
	d := &dispatcher{store: store, logger: testLogger()}

	answer, err := d.executeCount(&types.Intent{Kind: types.IntentCount})
	require.NoError(t, err)
	assert.Equal(t, "4 message(s) in INBOX.", answer)
}

func TestDispatcher_ListFolderContentsOffersDownload(t *testing.T) {
	store := newTestStore(t)

	var synced string
	d := &dispatcher{
		store:       store,
		prompter:    &fakePrompter{confirm: true},
		interactive: true,
		syncFolder:  func(folder string) { synced = folder },
		logger:      testLogger(),
	}

	answer, err := d.executeListFolderContents(&types.Intent{
		Kind:   types.IntentListFolderContents,
		Filter: types.Filter{Folder: "Receipts"},
	})
	require.NoError(t, err)
	assert.Contains(t, answer, "Downloading")
	assert.Equal(t, "Receipts", synced)
}

func TestDispatcher_ListFolderContentsFromCache(t *testing.T) {
	store := newTestStore(t)
	seedInbox(t, store)
	d := &dispatcher{store: store, logger: testLogger()}

	answer, err := d.executeListFolderContents(&types.Intent{
		Kind:   types.IntentListFolderContents,
		Filter: types.Filter{Folder: "Archive"},
	})
	require.NoError(t, err)
	assert.Contains(t, answer, "Lunch plans")
}

func TestPartitionByFolder(t *testing.T) {
	parts := partitionByFolder([]types.CachedMessage{
		{UID: 1, Folder: "INBOX"},
		{UID: 2, Folder: "Archive"},
		{UID: 3, Folder: "INBOX"},
	})
	assert.Equal(t, map[string][]uint32{"INBOX": {1, 3}, "Archive": {2}}, parts)
	assert.Equal(t, []string{"Archive", "INBOX"}, sortedFolders(parts))
}
