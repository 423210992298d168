package relay

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateDetail(t *testing.T) {
	t.Run("short string passes through", func(t *testing.T) {
		assert.Equal(t, "boom", truncateDetail("boom"))
	})

	t.Run("long string is bounded", func(t *testing.T) {
		got := truncateDetail(strings.Repeat("x", MaxErrorDetailLen+100))
		assert.Len(t, got, MaxErrorDetailLen)
	})

	t.Run("cut lands on a rune boundary", func(t *testing.T) {
		// "п" is two bytes; the ASCII prefix shifts the byte limit mid-rune
		s := "x" + strings.Repeat("п", MaxErrorDetailLen)
		got := truncateDetail(s)
		assert.True(t, utf8.ValidString(got))
		assert.LessOrEqual(t, len(got), MaxErrorDetailLen)
		assert.Equal(t, MaxErrorDetailLen-1, len(got))
	})

	t.Run("invalid bytes are replaced", func(t *testing.T) {
		got := truncateDetail("status 500: \xff\xfe bad gateway")
		assert.True(t, utf8.ValidString(got))
		assert.Contains(t, got, "bad gateway")
	})
}
