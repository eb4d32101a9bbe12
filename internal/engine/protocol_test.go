package engine

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBlockParsesKeyValuePairs(t *testing.T) {
	raw := "title=\"Midnight Drive\"\nartist=\"The Wayfarers\"\nEND\n"
	r := bufio.NewReader(strings.NewReader(raw))

	fields, err := readBlock(r)
	require.NoError(t, err)
	assert.Equal(t, "Midnight Drive", fields["title"])
	assert.Equal(t, "The Wayfarers", fields["artist"])
}

func TestReadBlockSkipsBlankLines(t *testing.T) {
	raw := "title=\"X\"\n\nartist=\"Y\"\nEND\n"
	r := bufio.NewReader(strings.NewReader(raw))

	fields, err := readBlock(r)
	require.NoError(t, err)
	assert.Len(t, fields, 2)
}

func TestUnescapeHandlesUnicodeEscapes(t *testing.T) {
	got := unescape("Caf\\" + "u00e9 Session")
	assert.Equal(t, "Café Session", got)
}

func TestUnescapeLeavesPlainStringsUnchanged(t *testing.T) {
	got := unescape("plain_filename.mp3")
	assert.Equal(t, "plain_filename.mp3", got)
}

func TestSplitKVStripsQuotes(t *testing.T) {
	key, value, ok := splitKV(`filename="track 01.mp3"`)
	require.True(t, ok)
	assert.Equal(t, "filename", key)
	assert.Equal(t, "track 01.mp3", value)
}

func TestSplitKVRejectsLineWithoutEquals(t *testing.T) {
	_, _, ok := splitKV("END")
	assert.False(t, ok)
}
