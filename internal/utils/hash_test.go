package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFolderKey_StableAndPrefixed(t *testing.T) {
	key := FolderKey("imap://user@mail.example.com:993/INBOX")

	assert.Equal(t, key, FolderKey("imap://user@mail.example.com:993/INBOX"))
	assert.Contains(t, key, "folderstate_")
	assert.NotEqual(t, key, FolderKey("imap://user@mail.example.com:993/Sent"))
}

func TestFlagHash_OrderIndependent(t *testing.T) {
	h1 := FlagHash([]string{`\Seen`, `\Flagged`, `\Answered`})
	h2 := FlagHash([]string{`\Flagged`, `\Answered`, `\Seen`})

	assert.Equal(t, h1, h2)
}

func TestFlagHash_CaseAndWhitespaceInsensitive(t *testing.T) {
	h1 := FlagHash([]string{`\seen`, ` \flagged `})
	h2 := FlagHash([]string{`\Seen`, `\Flagged`})

	assert.Equal(t, h1, h2)
}

func TestFlagHash_Empty(t *testing.T) {
	assert.Equal(t, int64(0), FlagHash(nil))
	assert.Equal(t, int64(0), FlagHash([]string{}))
	assert.Equal(t, int64(0), FlagHash([]string{"", "  "}))
}

func TestFlagHash_DetectsChange(t *testing.T) {
	h1 := FlagHash([]string{`\Seen`})
	h2 := FlagHash([]string{`\Seen`, `\Flagged`})

	assert.NotEqual(t, h1, h2)
}
