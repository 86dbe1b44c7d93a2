package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	"github.com/evan/mailpilot/pkg/types"
)

const snippetLength = 200

// FetchSince fetches envelope and body data for messages in folder dated
// on or after since, newest first, capped at max. The fetch is read-only
// (peek) so it never alters \Seen flags.
func (c *Client) FetchSince(folder string, since time.Time, max int) ([]types.CachedMessage, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	if _, err := c.conn.Select(folder, true); err != nil {
		return nil, fmt.Errorf("could not select folder %q: %w", folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	uids, err := c.conn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("could not search folder %q: %w", folder, err)
	}

	if len(uids) == 0 {
		return nil, nil
	}

	// UIDs ascend with arrival order; keep the most recent ones.
	if max > 0 && len(uids) > max {
		uids = uids[len(uids)-max:]
	}

	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.conn.UidFetch(seqset, items, messages)
	}()

	var results []types.CachedMessage
	for msg := range messages {
		results = append(results, parseMessage(msg, folder, section))
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("could not fetch messages: %w", err)
	}

	return results, nil
}

// parseMessage converts an IMAP message into a CachedMessage, deriving the
// snippet from the MIME text body when one can be parsed and from the
// subject otherwise.
func parseMessage(msg *imap.Message, folder string, section *imap.BodySectionName) types.CachedMessage {
	cached := types.CachedMessage{
		UID:    msg.Uid,
		Folder: folder,
	}

	if msg.Envelope != nil {
		cached.Subject = msg.Envelope.Subject
		cached.Date = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			addr := msg.Envelope.From[0]
			cached.SenderName = addr.PersonalName
			cached.SenderEmail = addr.Address()
		}
	}

	cached.Snippet = snippetFrom(msg.GetBody(section), cached.Subject)

	return cached
}

func snippetFrom(literal imap.Literal, subject string) string {
	if literal == nil {
		return subject
	}

	raw, err := io.ReadAll(literal)
	if err != nil || len(raw) == 0 {
		return subject
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil || env.Text == "" {
		return subject
	}

	text := strings.Join(strings.Fields(env.Text), " ")
	if len(text) > snippetLength {
		text = text[:snippetLength] + "..."
	}
	return text
}
