package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/evan/mailpilot/pkg/types"
)

// buildWhere translates a Filter into a WHERE clause and its arguments.
func buildWhere(f types.Filter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if f.Folder != "" {
		conditions = append(conditions, "folder = ?")
		args = append(args, f.Folder)
	}

	for _, excluded := range f.ExcludeFolders {
		conditions = append(conditions, "folder != ?")
		args = append(args, excluded)
	}

	if f.Sender != "" {
		conditions = append(conditions, "(sender_email LIKE ? OR sender_name LIKE ?)")
		searchTerm := "%" + f.Sender + "%"
		args = append(args, searchTerm, searchTerm)
	}

	if f.Subject != "" {
		conditions = append(conditions, "subject LIKE ?")
		args = append(args, "%"+f.Subject+"%")
	}

	if !f.Since.IsZero() {
		conditions = append(conditions, "date >= ?")
		args = append(args, f.Since)
	}

	if !f.Before.IsZero() {
		conditions = append(conditions, "date <= ?")
		args = append(args, f.Before)
	}

	// Full-text search on content
	if f.Content != "" {
		conditions = append(conditions, "id IN (SELECT rowid FROM messages_fts WHERE messages_fts MATCH ?)")
		// Escape special characters for FTS5
		contentQuery := strings.ReplaceAll(f.Content, "\"", "\"\"")
		contentQuery = strings.ReplaceAll(contentQuery, "'", "''")
		args = append(args, "\""+contentQuery+"\"")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// Search performs a filtered search on cached messages, newest first.
func (s *Store) Search(f types.Filter) ([]types.CachedMessage, error) {
	whereClause, args := buildWhere(f)

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT id, uid, folder, sender_email, sender_name, subject, date, snippet
		FROM messages
		%s
		ORDER BY date DESC
		LIMIT ?
	`, whereClause)

	args = append(args, limit)

	rows, err := s.cache.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var results []types.CachedMessage
	for rows.Next() {
		var msg types.CachedMessage
		var dateStr string

		err := rows.Scan(
			&msg.ID,
			&msg.UID,
			&msg.Folder,
			&msg.SenderEmail,
			&msg.SenderName,
			&msg.Subject,
			&dateStr,
			&msg.Snippet,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.Date = parseDate(dateStr)
		results = append(results, msg)
	}

	return results, rows.Err()
}

// Count returns the number of cached messages matching the filter.
func (s *Store) Count(f types.Filter) (int, error) {
	whereClause, args := buildWhere(f)

	query := fmt.Sprintf("SELECT COUNT(*) FROM messages %s", whereClause)

	var count int
	if err := s.cache.DB().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

// parseDate handles the two timestamp layouts SQLite hands back.
func parseDate(dateStr string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", dateStr); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, dateStr); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999 -0700 MST", dateStr); err == nil {
		return t
	}
	return time.Time{}
}
