package mailbox

import (
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
)

// MoveMessages moves the given uids from sourceFolder into targetFolder.
// The uids must have been fetched from sourceFolder; a uid is never valid
// on any other folder. The source folder's exclusive lock is held for the
// duration of the protocol operation and released on every exit path.
// After a successful move the cached folder column is updated best-effort:
// the protocol success is final, a bookkeeping failure is only logged.
func (c *Client) MoveMessages(uids []uint32, sourceFolder, targetFolder string) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if len(uids) == 0 {
		return nil
	}

	if err := c.moveOnServer(uids, sourceFolder, targetFolder); err != nil {
		return err
	}

	if c.store != nil {
		if err := c.store.ReassignFolder(uids, sourceFolder, targetFolder); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"from": sourceFolder,
				"to":   targetFolder,
			}).Warn("Move succeeded on server but cache bookkeeping failed")
		}
	}

	return nil
}

func (c *Client) moveOnServer(uids []uint32, sourceFolder, targetFolder string) error {
	lock := c.folderLock(sourceFolder)
	lock.Lock()
	defer lock.Unlock()

	if _, err := c.conn.Select(sourceFolder, false); err != nil {
		return fmt.Errorf("could not select folder %q: %w", sourceFolder, err)
	}

	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)

	if err := c.conn.UidMove(seqset, targetFolder); err != nil {
		return fmt.Errorf("could not move %d messages from %q to %q: %w",
			len(uids), sourceFolder, targetFolder, err)
	}

	c.logger.WithFields(logrus.Fields{
		"count": len(uids),
		"from":  sourceFolder,
		"to":    targetFolder,
	}).Info("Moved messages")

	return nil
}
