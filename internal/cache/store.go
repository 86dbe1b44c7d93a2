package cache

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/evan/mailpilot/pkg/types"
)

// Store provides methods for storing and retrieving messages from the cache
type Store struct {
	cache  *Cache
	logger *logrus.Logger
}

// NewStore creates a new store instance
func NewStore(cache *Cache, logger *logrus.Logger) *Store {
	return &Store{
		cache:  cache,
		logger: logger,
	}
}

// UpsertMessage upserts a message in the cache
func (s *Store) UpsertMessage(msg *types.CachedMessage) error {
	query := `
		INSERT INTO messages (uid, folder, sender_email, sender_name, subject, date, snippet)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder, uid) DO UPDATE SET
			sender_email = excluded.sender_email,
			sender_name = excluded.sender_name,
			subject = excluded.subject,
			date = excluded.date,
			snippet = excluded.snippet,
			cached_at = CURRENT_TIMESTAMP
	`
	_, err := s.cache.DB().Exec(query,
		msg.UID,
		msg.Folder,
		msg.SenderEmail,
		msg.SenderName,
		msg.Subject,
		msg.Date,
		msg.Snippet,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}

	return nil
}

// ReassignFolder updates the folder column for the given uids after a
// successful server-side move. This is the only writer path in the engine
// besides sync; a failure here is the caller's to log, never to propagate,
// since the protocol-level move has already succeeded.
func (s *Store) ReassignFolder(uids []uint32, from, to string) error {
	if len(uids) == 0 {
		return nil
	}

	placeholders := make([]string, len(uids))
	args := make([]interface{}, 0, len(uids)+2)
	args = append(args, to, from)
	for i, uid := range uids {
		placeholders[i] = "?"
		args = append(args, uid)
	}

	query := fmt.Sprintf(
		"UPDATE messages SET folder = ? WHERE folder = ? AND uid IN (%s)",
		strings.Join(placeholders, ", "),
	)

	result, err := s.cache.DB().Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to reassign folder: %w", err)
	}

	affected, _ := result.RowsAffected()
	s.logger.WithFields(logrus.Fields{
		"from":  from,
		"to":    to,
		"count": affected,
	}).Debug("Reassigned cached messages")

	return nil
}

// SenderCount pairs a sender address with its cached message count.
type SenderCount struct {
	Sender string
	Count  int
}

// TopSenders returns the senders with the most cached messages, descending.
func (s *Store) TopSenders(limit int) ([]SenderCount, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.cache.DB().Query(`
		SELECT sender_email, COUNT(*) AS n
		FROM messages
		WHERE sender_email != ''
		GROUP BY sender_email
		ORDER BY n DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top senders: %w", err)
	}
	defer rows.Close()

	var results []SenderCount
	for rows.Next() {
		var sc SenderCount
		if err := rows.Scan(&sc.Sender, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan sender count: %w", err)
		}
		results = append(results, sc)
	}

	return results, rows.Err()
}

// UniqueSenders returns all distinct sender addresses in the cache.
func (s *Store) UniqueSenders() ([]string, error) {
	rows, err := s.cache.DB().Query(`
		SELECT DISTINCT sender_email
		FROM messages
		WHERE sender_email != ''
		ORDER BY sender_email
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique senders: %w", err)
	}
	defer rows.Close()

	var senders []string
	for rows.Next() {
		var sender string
		if err := rows.Scan(&sender); err != nil {
			return nil, fmt.Errorf("failed to scan sender: %w", err)
		}
		senders = append(senders, sender)
	}

	return senders, rows.Err()
}

// FolderHasMessages checks whether the cache holds any messages for a folder
func (s *Store) FolderHasMessages(folder string) (bool, error) {
	var count int
	err := s.cache.DB().QueryRow("SELECT COUNT(*) FROM messages WHERE folder = ?", folder).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check folder messages: %w", err)
	}
	return count > 0, nil
}
