package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStateTerminal(t *testing.T) {
	assert.False(t, StateActive.Terminal())
	assert.False(t, StateAwaitingTransfer.Terminal())
	assert.True(t, StateEnded.Terminal())
	assert.True(t, StateErrored.Terminal())
}

func TestNewCallSession(t *testing.T) {
	now := time.Now()
	sess := NewCallSession("contact-1", "+15551234567", now)

	assert.Equal(t, "contact-1", sess.SessionID)
	assert.Equal(t, StateActive, sess.State)
	assert.Equal(t, 0, sess.TurnCount)
	assert.Equal(t, now, sess.StartedAt)
	assert.NotNil(t, sess.Attributes)
}

func TestRecordTurnIncrementsCount(t *testing.T) {
	now := time.Now()
	sess := NewCallSession("c", "", now)

	for i := 0; i < 3; i++ {
		sess.RecordTurn(Turn{
			CallerText: "hello",
			AgentText:  "hi",
			Action:     ActionContinue,
			Verdict:    VerdictAllowed,
			Timestamp:  now.Add(time.Duration(i) * time.Second),
		}, 0)
	}

	assert.Equal(t, 3, sess.TurnCount)
	require.Len(t, sess.History, 3)
	assert.Equal(t, 0, sess.History[0].Index)
	assert.Equal(t, 2, sess.History[2].Index)
	assert.Equal(t, now.Add(2*time.Second), sess.LastActivityAt)
}

func TestRecordTurnEvictsOldest(t *testing.T) {
	sess := NewCallSession("c", "", time.Now())

	for i := 0; i < 5; i++ {
		sess.RecordTurn(Turn{CallerText: "x", Timestamp: time.Now()}, 3)
	}

	assert.Equal(t, 5, sess.TurnCount)
	require.Len(t, sess.History, 3)
	assert.Equal(t, 2, sess.Evicted)
	// Oldest surviving turn is index 2
	assert.Equal(t, 2, sess.History[0].Index)
}

func TestElapsedAndSinceActivity(t *testing.T) {
	start := time.Now()
	sess := NewCallSession("c", "", start)
	sess.RecordTurn(Turn{Timestamp: start.Add(10 * time.Second)}, 0)

	now := start.Add(30 * time.Second)
	assert.Equal(t, 30*time.Second, sess.Elapsed(now))
	assert.Equal(t, 20*time.Second, sess.SinceActivity(now))
}

func TestCloneIsDeep(t *testing.T) {
	sess := NewCallSession("c", "+1555", time.Now())
	sess.Attributes["lang"] = "en"
	sess.RecordTurn(Turn{CallerText: "hi"}, 0)

	clone := sess.Clone()
	clone.Attributes["lang"] = "fr"
	clone.History[0].CallerText = "changed"
	clone.TurnCount = 99

	assert.Equal(t, "en", sess.Attributes["lang"])
	assert.Equal(t, "hi", sess.History[0].CallerText)
	assert.Equal(t, 1, sess.TurnCount)
}
