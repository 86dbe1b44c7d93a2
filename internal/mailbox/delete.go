package mailbox

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/pkg/types"
)

// conventionalTrashNames are folder paths commonly used for trash on
// servers that do not advertise SPECIAL-USE.
var conventionalTrashNames = []string{
	"Trash",
	"Deleted Items",
	"Deleted Messages",
	"Bin",
	"[Gmail]/Trash",
}

// DeleteMessages deletes the given uids from sourceFolder by moving them
// into a trash-like destination. If that move fails, for instance because
// the resolved destination does not actually exist, the messages are
// flagged \Deleted in place instead: deletion must always have some
// effect, never total failure when messages exist.
func (c *Client) DeleteMessages(uids []uint32, sourceFolder string) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if len(uids) == 0 {
		return nil
	}

	folders, err := c.ListFolders()
	if err != nil {
		return err
	}
	trash := ResolveTrash(folders)

	// Deleting from the trash itself: a move would be a no-op, flag instead.
	if trash == sourceFolder {
		return c.flagDeleted(uids, sourceFolder)
	}

	if err := c.MoveMessages(uids, sourceFolder, trash); err != nil {
		// Degrading to in-place flagging masks a misresolved trash folder,
		// so report the condition distinctly before falling back.
		c.logger.WithError(err).WithFields(logrus.Fields{
			"trash":  trash,
			"folder": sourceFolder,
		}).Warn("Trash folder rejected the move, flagging messages as deleted in place")

		if flagErr := c.flagDeleted(uids, sourceFolder); flagErr != nil {
			return fmt.Errorf("move to trash failed (%v) and flag fallback failed: %w", err, flagErr)
		}
	}

	return nil
}

// ResolveTrash picks the trash-like destination from a folder set:
// special-use classification first, then conventional path names, then
// the literal "Trash".
func ResolveTrash(folders []types.Folder) string {
	for _, f := range folders {
		if f.SpecialUse == types.UseTrash {
			return f.Path
		}
	}

	for _, name := range conventionalTrashNames {
		for _, f := range folders {
			if strings.EqualFold(f.Path, name) {
				return f.Path
			}
		}
	}

	return "Trash"
}

// flagDeleted marks the uids \Deleted in place under the folder's lock.
func (c *Client) flagDeleted(uids []uint32, folder string) error {
	lock := c.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	if _, err := c.conn.Select(folder, false); err != nil {
		return fmt.Errorf("could not select folder %q: %w", folder, err)
	}

	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.conn.UidStore(seqset, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return fmt.Errorf("could not set deleted flag: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"count":  len(uids),
		"folder": folder,
	}).Info("Flagged messages as deleted")

	return nil
}
