package session

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxHistoryEntries caps the retained command history.
const maxHistoryEntries = 100

// History is the durable command history: newest appended last on disk,
// presented newest-first for recall. Loaded once at session start,
// mutated on every accepted line, flushed on exit.
type History struct {
	entries []string
}

// LoadHistory reads the history file. A missing file yields an empty
// history, not an error.
func LoadHistory(path string) (*History, error) {
	h := &History{}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return h, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line != "" {
			h.entries = append(h.entries, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return h, fmt.Errorf("failed to read history file: %w", err)
	}

	h.trim()
	return h, nil
}

// Append records a non-empty line, skipping an exact duplicate of the
// immediately preceding entry and enforcing the retention cap.
func (h *History) Append(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if len(h.entries) > 0 && h.entries[len(h.entries)-1] == line {
		return
	}

	h.entries = append(h.entries, line)
	h.trim()
}

func (h *History) trim() {
	if len(h.entries) > maxHistoryEntries {
		h.entries = h.entries[len(h.entries)-maxHistoryEntries:]
	}
}

// Entries returns the history oldest-first, as stored on disk.
func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Flush writes the history back to disk, newest last.
func (h *History) Flush(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	var sb strings.Builder
	for _, entry := range h.entries {
		sb.WriteString(entry)
		sb.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}
