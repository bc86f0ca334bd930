package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSpeech(t *testing.T) {
	n := New(0)

	in, err := n.Normalize("  What are   your hours?  ", Meta{SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, KindSpeech, in.Kind)
	assert.Equal(t, "What are your hours?", in.Text)
	assert.False(t, in.Truncated)
}

func TestNormalizeStripsControlChars(t *testing.T) {
	n := New(0)

	in, err := n.Normalize("hello\x00\x1bworld\x07", Meta{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "helloworld", in.Text)
}

func TestNormalizeSilence(t *testing.T) {
	n := New(0)

	for _, raw := range []string{"", "   ", "\n\t"} {
		in, err := n.Normalize(raw, Meta{SessionID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, KindSilence, in.Kind, "raw=%q", raw)
		assert.Empty(t, in.Text)
	}
}

func TestNormalizeGarbled(t *testing.T) {
	n := New(0)

	// Content present but nothing usable survives cleaning.
	in, err := n.Normalize("\x00\x01\x02\x03", Meta{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, KindGarbled, in.Kind)
}

func TestNormalizeTruncates(t *testing.T) {
	n := New(10)

	in, err := n.Normalize(strings.Repeat("a", 50), Meta{SessionID: "s1"})
	require.NoError(t, err)

	assert.True(t, in.Truncated)
	assert.Len(t, in.Text, 10)
}

func TestNormalizeTruncatesAtRuneBoundary(t *testing.T) {
	n := New(3)

	in, err := n.Normalize("héllo wörld", Meta{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "hél", in.Text)
	assert.True(t, in.Truncated)
}

func TestNormalizeRejectsMissingSessionID(t *testing.T) {
	n := New(0)

	_, err := n.Normalize("hello", Meta{SessionID: "  "})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sessionId", verr.Field)
}
