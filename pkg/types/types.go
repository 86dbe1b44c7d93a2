package types

import "time"

// CachedMessage is a local, denormalized snapshot of one server message.
// The engine treats it as read-only input; the only writer path is the
// folder reassignment that follows a successful IMAP move.
type CachedMessage struct {
	ID          int64     `json:"id"`
	UID         uint32    `json:"uid"`
	Folder      string    `json:"folder"`
	SenderEmail string    `json:"sender_email"`
	SenderName  string    `json:"sender_name"`
	Subject     string    `json:"subject"`
	Date        time.Time `json:"date"`
	Snippet     string    `json:"snippet"`
}

// SpecialUse is a folder's declared role as reported by the mail server
// (RFC 6154 SPECIAL-USE attributes).
type SpecialUse string

const (
	UseNone    SpecialUse = ""
	UseInbox   SpecialUse = "inbox"
	UseTrash   SpecialUse = "trash"
	UseSent    SpecialUse = "sent"
	UseDrafts  SpecialUse = "drafts"
	UseJunk    SpecialUse = "junk"
	UseArchive SpecialUse = "archive"
)

// Folder represents an IMAP mailbox. Folders are discovered per-connection
// and never persisted; the server is authoritative.
type Folder struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	SpecialUse SpecialUse `json:"special_use,omitempty"`
}

// Filter is a composable set of predicates used to query the local cache.
// Zero values mean "not constrained". Filters are pure data, constructed by
// the pipeline and consumed once.
type Filter struct {
	Sender         string
	Subject        string
	Content        string
	Folder         string
	Since          time.Time
	Before         time.Time
	ExcludeFolders []string
	Limit          int
}

// IntentKind tags what a resolved query wants done.
type IntentKind string

const (
	IntentSearch             IntentKind = "search"
	IntentDelete             IntentKind = "delete"
	IntentMove               IntentKind = "move"
	IntentCount              IntentKind = "count"
	IntentListFolders        IntentKind = "list_folders"
	IntentListFolderContents IntentKind = "list_folder_contents"
	IntentSummarize          IntentKind = "summarize"
)

// Intent is the resolved, structured representation of a user query.
// Produced by exactly one pipeline stage per query, never persisted.
type Intent struct {
	Kind         IntentKind
	Filter       Filter
	TargetFolder string
	// Subjects carries explicit subject lines from queries like
	// "delete these: Invoice #1, Invoice #2".
	Subjects []string
}

// ConversationTurn is one user query plus the engine's textual response,
// held in the session's in-memory transcript for the process lifetime.
type ConversationTurn struct {
	ID       string
	Query    string
	Response string
	At       time.Time
}
