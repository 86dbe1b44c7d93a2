package pipeline

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/evan/mailpilot/internal/cache"
	"github.com/evan/mailpilot/pkg/types"
)

const maxSubjectWidth = 60

func newTable(buf *bytes.Buffer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(buf)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	return table
}

// renderMessages formats a result set grouped by source folder, newest
// first within each group.
func renderMessages(msgs []types.CachedMessage) string {
	var buf bytes.Buffer

	byFolder := make(map[string][]types.CachedMessage)
	var order []string
	for _, m := range msgs {
		if _, ok := byFolder[m.Folder]; !ok {
			order = append(order, m.Folder)
		}
		byFolder[m.Folder] = append(byFolder[m.Folder], m)
	}

	for i, folder := range order {
		if i > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "%s (%d)\n", folder, len(byFolder[folder]))

		table := newTable(&buf, []string{"Date", "From", "Subject"})
		for _, m := range byFolder[folder] {
			from := m.SenderEmail
			if m.SenderName != "" {
				from = m.SenderName
			}
			table.Append([]string{
				m.Date.Format("2006-01-02"),
				truncate(from, 30),
				truncate(m.Subject, maxSubjectWidth),
			})
		}
		table.Render()
	}

	return strings.TrimRight(buf.String(), "\n")
}

func renderFolders(folders []types.Folder) string {
	var buf bytes.Buffer

	table := newTable(&buf, []string{"Folder", "Role"})
	for _, f := range folders {
		table.Append([]string{f.Path, string(f.SpecialUse)})
	}
	table.Render()

	return strings.TrimRight(buf.String(), "\n")
}

func renderSenderCounts(counts []cache.SenderCount) string {
	var buf bytes.Buffer

	table := newTable(&buf, []string{"Sender", "Messages"})
	for _, sc := range counts {
		table.Append([]string{sc.Sender, fmt.Sprintf("%d", sc.Count)})
	}
	table.Render()

	return strings.TrimRight(buf.String(), "\n")
}

// truncate shortens to max runes, never splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
