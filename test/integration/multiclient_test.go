package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breakroom/breakroom/internal/server"
	"github.com/breakroom/breakroom/test/testhelpers"
)

func TestJoinIsBroadcastToOthersOnly(t *testing.T) {
	cs := testhelpers.StartChatServer(t, nil)

	ann := testhelpers.Dial(t, cs)
	testhelpers.Join(t, ann, "Ann")

	bob := testhelpers.Dial(t, cs)
	bobInit := testhelpers.Join(t, bob, "Bob")

	var joined server.UserJoinedEvent
	testhelpers.ReadEvent(t, ann, "user_joined", &joined)
	assert.Equal(t, "Bob", joined.Username)
	assert.Equal(t, bobInit.UserID, joined.UserID)

	// The joiner gets init only, never its own user_joined echo.
	testhelpers.ExpectNoEvent(t, bob, 200*time.Millisecond)
}

func TestMessageIsEchoedToAllIncludingSender(t *testing.T) {
	cs := testhelpers.StartChatServer(t, nil)

	ann := testhelpers.Dial(t, cs)
	testhelpers.Join(t, ann, "Ann")

	bob := testhelpers.Dial(t, cs)
	testhelpers.Join(t, bob, "Bob")

	var joined server.UserJoinedEvent
	testhelpers.ReadEvent(t, ann, "user_joined", &joined)

	before := time.Now().UnixMilli()
	testhelpers.SendEvent(t, ann, map[string]string{"type": "message", "text": "hi"})

	var annCopy, bobCopy server.MessageBroadcastEvent
	testhelpers.ReadEvent(t, ann, "message_broadcast", &annCopy)
	testhelpers.ReadEvent(t, bob, "message_broadcast", &bobCopy)

	assert.Equal(t, "Ann", annCopy.Message.Username)
	assert.Equal(t, "hi", annCopy.Message.Text)
	assert.NotEmpty(t, annCopy.Message.ID)
	assert.GreaterOrEqual(t, annCopy.Message.Timestamp, before)
	assert.Equal(t, annCopy.Message, bobCopy.Message, "all recipients must see the identical message")
}

func TestDisconnectBroadcastsUserLeftExactlyOnce(t *testing.T) {
	cs := testhelpers.StartChatServer(t, nil)

	ann := testhelpers.Dial(t, cs)
	testhelpers.Join(t, ann, "Ann")

	bob := testhelpers.Dial(t, cs)
	bobInit := testhelpers.Join(t, bob, "Bob")

	var joined server.UserJoinedEvent
	testhelpers.ReadEvent(t, ann, "user_joined", &joined)

	require.NoError(t, bob.Close())

	var left server.UserLeftEvent
	testhelpers.ReadEvent(t, ann, "user_left", &left)
	assert.Equal(t, "Bob", left.Username)
	assert.Equal(t, bobInit.UserID, left.UserID)

	// A duplicate close signal must not produce a second user_left.
	testhelpers.ExpectNoEvent(t, ann, 300*time.Millisecond)
}

func TestDisconnectBeforeJoinIsSilent(t *testing.T) {
	cs := testhelpers.StartChatServer(t, nil)

	ann := testhelpers.Dial(t, cs)
	testhelpers.Join(t, ann, "Ann")

	ghost := testhelpers.Dial(t, cs)
	require.NoError(t, ghost.Close())

	// A session that never joined holds no identity, so nothing is broadcast.
	testhelpers.ExpectNoEvent(t, ann, 300*time.Millisecond)
}

func TestJoinThenLeaveOrderingObservedByPeers(t *testing.T) {
	cs := testhelpers.StartChatServer(t, nil)

	ann := testhelpers.Dial(t, cs)
	testhelpers.Join(t, ann, "Ann")

	bob := testhelpers.Dial(t, cs)
	bobInit := testhelpers.Join(t, bob, "Bob")
	require.NoError(t, bob.Close())

	// Ann sees exactly one user_joined followed by exactly one user_left for
	// the same session, in that order.
	var joined server.UserJoinedEvent
	testhelpers.ReadEvent(t, ann, "user_joined", &joined)
	require.Equal(t, bobInit.UserID, joined.UserID)

	var left server.UserLeftEvent
	testhelpers.ReadEvent(t, ann, "user_left", &left)
	require.Equal(t, bobInit.UserID, left.UserID)
}
