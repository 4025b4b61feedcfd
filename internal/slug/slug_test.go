package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Book Lovers", "book-lovers"},
		{"  Book   Lovers!! ", "book-lovers"},
		{"Café Crème Readers", "cafe-creme-readers"},
		{"Sci-Fi/Fantasy", "sci-fi-fantasy"},
		{"日本語", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Make(tt.in))
		})
	}
}

func TestMake_Truncates(t *testing.T) {
	s := Make(strings.Repeat("ab ", 60))
	assert.LessOrEqual(t, len(s), MaxLength)
	assert.False(t, strings.HasSuffix(s, "-"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("book-lovers"))
	assert.False(t, Valid("Book Lovers"))
	assert.False(t, Valid(""))
}
