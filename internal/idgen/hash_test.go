package idgen

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeBase36(t *testing.T) {
	assert.Equal(t, "0000", EncodeBase36(nil, 4))
	assert.Equal(t, "000z", EncodeBase36([]byte{35}, 4))
	assert.Equal(t, "0010", EncodeBase36([]byte{36}, 4))
	// truncation keeps the least significant digits
	assert.Equal(t, "73", EncodeBase36([]byte{0xff}, 2))
}

func TestArchiveID(t *testing.T) {
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	id := ArchiveID("DOCUMENT_ARCHIVE", "docs/DOC-1.md", at)

	assert.Regexp(t, regexp.MustCompile(`^ARCH-[0-9A-Z]{8}$`), id)
	assert.Equal(t, id, ArchiveID("DOCUMENT_ARCHIVE", "docs/DOC-1.md", at))
	assert.NotEqual(t, id, ArchiveID("DOCUMENT_ARCHIVE", "docs/DOC-2.md", at))
	assert.NotEqual(t, id, ArchiveID("DOCUMENT_ARCHIVE", "docs/DOC-1.md", at.Add(time.Nanosecond)))
}
