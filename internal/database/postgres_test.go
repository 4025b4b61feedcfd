package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchema_IsIdempotent(t *testing.T) {
	for _, stmt := range strings.Split(stripComments(schemaSQL), ";") {
		stmt = strings.TrimSpace(stmt)
		if !strings.HasPrefix(stmt, "CREATE") {
			continue
		}
		assert.Contains(t, stmt, "IF NOT EXISTS", "statement must be safe to re-run: %s", firstLine(stmt))
	}
}

func TestSchema_RingColumns(t *testing.T) {
	assert.Contains(t, schemaSQL, "next_membership_id")
	assert.Contains(t, schemaSQL, "current_picker_id")
	assert.Contains(t, schemaSQL, "picks_one_open_per_club")
}

func stripComments(sql string) string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
