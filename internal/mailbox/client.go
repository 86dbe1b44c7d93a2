package mailbox

import (
	"crypto/tls"
	"fmt"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/internal/cache"
	"github.com/evan/mailpilot/internal/config"
	"github.com/evan/mailpilot/pkg/types"
)

// imapConn is the slice of the IMAP client surface the engine uses.
// *client.Client satisfies it; tests substitute fakes.
type imapConn interface {
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidMove(seqset *imap.SeqSet, dest string) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	Logout() error
}

// Client wraps an authenticated session to a single mail account and
// exposes folder discovery, mailbox locking, and message-state mutation.
// One client instance holds at most one live session.
type Client struct {
	cfg    *config.Config
	store  *cache.Store // nil disables post-move cache bookkeeping
	logger *logrus.Logger

	dial func() (imapConn, error)

	conn imapConn

	mu          sync.Mutex
	folderLocks map[string]*sync.Mutex
}

// NewClient creates a new mailbox client (does not connect immediately).
func NewClient(cfg *config.Config, store *cache.Store, logger *logrus.Logger) *Client {
	c := &Client{
		cfg:         cfg,
		store:       store,
		logger:      logger,
		folderLocks: make(map[string]*sync.Mutex),
	}
	c.dial = c.dialTLS
	return c
}

func (c *Client) dialTLS() (imapConn, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.IMAPHost, c.cfg.IMAPPort)

	cl, err := client.DialTLS(addr, &tls.Config{
		ServerName: c.cfg.IMAPHost,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	if err := cl.Login(c.cfg.IMAPUsername, c.cfg.IMAPPassword); err != nil {
		cl.Logout() //nolint:errcheck
		return nil, fmt.Errorf("failed to login as %s: %w", c.cfg.IMAPUsername, err)
	}

	return cl, nil
}

// Connect establishes a connection to the IMAP server. Idempotent: a
// connected client stays connected.
func (c *Client) Connect() error {
	if c.conn != nil {
		return nil
	}

	if c.cfg.IMAPUsername == "" || c.cfg.IMAPPassword == "" {
		return &ConnectionError{Err: fmt.Errorf("IMAP credentials are not configured")}
	}

	conn, err := c.dial()
	if err != nil {
		return &ConnectionError{Err: err}
	}

	c.conn = conn
	c.logger.WithField("host", c.cfg.IMAPHost).Debug("Connected to IMAP server")
	return nil
}

// Disconnect logs out. Safe to call even if never connected.
func (c *Client) Disconnect() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Logout()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// ListFolders returns the folder set as reported by the server. On any
// protocol error it returns a hard-coded minimal fallback set so higher
// layers always have something to iterate: folder listing failures are
// common and should not block simple operations.
func (c *Client) ListFolders() ([]types.Folder, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.conn.List("", "*", mailboxes)
	}()

	var folders []types.Folder
	for m := range mailboxes {
		folders = append(folders, types.Folder{
			Name:       m.Name,
			Path:       m.Name,
			SpecialUse: classifySpecialUse(m.Name, m.Attributes),
		})
	}

	if err := <-done; err != nil {
		c.logger.WithError(err).Warn("Folder listing failed, using fallback folder set")
		return FallbackFolders(), nil
	}

	if len(folders) == 0 {
		return FallbackFolders(), nil
	}

	return folders, nil
}

// FallbackFolders is the deterministic minimal folder set used when the
// server cannot be asked.
func FallbackFolders() []types.Folder {
	return []types.Folder{
		{Name: imap.InboxName, Path: imap.InboxName, SpecialUse: types.UseInbox},
		{Name: "Trash", Path: "Trash", SpecialUse: types.UseTrash},
		{Name: "Sent", Path: "Sent", SpecialUse: types.UseSent},
		{Name: "Drafts", Path: "Drafts", SpecialUse: types.UseDrafts},
		{Name: "Junk", Path: "Junk", SpecialUse: types.UseJunk},
	}
}

// classifySpecialUse maps RFC 6154 attributes (and the INBOX name) onto
// the folder's declared role.
func classifySpecialUse(name string, attributes []string) types.SpecialUse {
	for _, attr := range attributes {
		switch attr {
		case imap.TrashAttr:
			return types.UseTrash
		case imap.SentAttr:
			return types.UseSent
		case imap.DraftsAttr:
			return types.UseDrafts
		case imap.JunkAttr:
			return types.UseJunk
		case imap.ArchiveAttr:
			return types.UseArchive
		}
	}

	if strings.EqualFold(name, imap.InboxName) {
		return types.UseInbox
	}

	return types.UseNone
}

// folderLock returns the exclusive lock for a folder, creating it on
// first use.
func (c *Client) folderLock(folder string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.folderLocks[folder]
	if !ok {
		lock = &sync.Mutex{}
		c.folderLocks[folder] = lock
	}
	return lock
}
