package cache

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evan/mailpilot/pkg/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := testLogger()
	c, err := NewCache(filepath.Join(t.TempDir(), "cache.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return NewStore(c, logger)
}

func seedMessages(t *testing.T, store *Store) {
	t.Helper()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	msgs := []types.CachedMessage{
		{UID: 1, Folder: "INBOX", SenderEmail: "alice@example.com", SenderName: "Alice", Subject: "Quarterly report", Date: base, Snippet: "The quarterly numbers are attached"},
		{UID: 2, Folder: "INBOX", SenderEmail: "notifications@foo.com", SenderName: "Foo Alerts", Subject: "Build failed", Date: base.Add(time.Hour), Snippet: "Pipeline run 42 failed"},
		{UID: 3, Folder: "INBOX", SenderEmail: "notifications@foo.com", SenderName: "Foo Alerts", Subject: "Build recovered", Date: base.Add(2 * time.Hour), Snippet: "Pipeline run 43 passed"},
		{UID: 4, Folder: "Archive", SenderEmail: "bob@example.com", SenderName: "Bob", Subject: "Lunch plans", Date: base.Add(3 * time.Hour), Snippet: "Sushi on Friday?"},
		{UID: 5, Folder: "Junk", SenderEmail: "spam@bad.example", SenderName: "", Subject: "You won", Date: base.Add(4 * time.Hour), Snippet: "Claim your prize"},
	}
	for i := range msgs {
		require.NoError(t, store.UpsertMessage(&msgs[i]))
	}
}

func TestStore_SearchNewestFirst(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	results, err := store.Search(types.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, "You won", results[0].Subject)
	assert.Equal(t, "Quarterly report", results[4].Subject)
}

func TestStore_SearchBySender(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	results, err := store.Search(types.Filter{Sender: "notifications@foo.com"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// Sender matching is substring-based and covers display names too.
	results, err = store.Search(types.Filter{Sender: "Foo Alerts"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = store.Search(types.Filter{Sender: "nobody@nowhere.test"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_SearchBySubjectAndFolder(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	results, err := store.Search(types.Filter{Subject: "Build", Folder: "INBOX"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = store.Search(types.Filter{Subject: "Build", Folder: "Archive"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_SearchExcludesFolders(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	results, err := store.Search(types.Filter{ExcludeFolders: []string{"Junk", "Archive"}})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	for _, msg := range results {
		assert.Equal(t, "INBOX", msg.Folder)
	}
}

func TestStore_SearchSince(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	since := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)
	results, err := store.Search(types.Filter{Since: since})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestStore_SearchFullText(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	results, err := store.Search(types.Filter{Content: "quarterly"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(1), results[0].UID)

	// Quotes in the query must not break the FTS expression.
	results, err = store.Search(types.Filter{Content: `"quoted" phrase`})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_SearchLimit(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	results, err := store.Search(types.Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestStore_Count(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	count, err := store.Count(types.Filter{Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = store.Count(types.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestStore_UpsertReplacesOnFolderUID(t *testing.T) {
	store := newTestStore(t)

	msg := types.CachedMessage{
		UID: 7, Folder: "INBOX",
		SenderEmail: "alice@example.com", Subject: "First draft",
		Date: time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.UpsertMessage(&msg))

	msg.Subject = "Second draft"
	require.NoError(t, store.UpsertMessage(&msg))

	count, err := store.Count(types.Filter{Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := store.Search(types.Filter{Folder: "INBOX"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Second draft", results[0].Subject)
}

func TestStore_ReassignFolder(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	require.NoError(t, store.ReassignFolder([]uint32{2, 3}, "INBOX", "Archive"))

	count, err := store.Count(types.Filter{Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.Count(types.Filter{Folder: "Archive"})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// UIDs that only exist in another folder stay untouched.
	require.NoError(t, store.ReassignFolder([]uint32{5}, "INBOX", "Archive"))
	count, err = store.Count(types.Filter{Folder: "Junk"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_ReassignFolderEmptyIsNoop(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.ReassignFolder(nil, "INBOX", "Archive"))
}

func TestStore_TopSenders(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	top, err := store.TopSenders(2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "notifications@foo.com", top[0].Sender)
	assert.Equal(t, 2, top[0].Count)
}

func TestStore_UniqueSenders(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	senders, err := store.UniqueSenders()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"alice@example.com",
		"bob@example.com",
		"notifications@foo.com",
		"spam@bad.example",
	}, senders)
}

func TestStore_FolderHasMessages(t *testing.T) {
	store := newTestStore(t)
	seedMessages(t, store)

	has, err := store.FolderHasMessages("Archive")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.FolderHasMessages("Drafts")
	require.NoError(t, err)
	assert.False(t, has)
}
