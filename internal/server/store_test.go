package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendMessagePopulatesFields(t *testing.T) {
	store := NewStore(10)

	msg := store.AppendMessage("Ann", "hi")

	require.NotEmpty(t, msg.ID)
	assert.Equal(t, "Ann", msg.Username)
	assert.Equal(t, "hi", msg.Text)
	assert.Positive(t, msg.Timestamp)
}

func TestAppendMessageAssignsUniqueIDs(t *testing.T) {
	store := NewStore(10)

	first := store.AppendMessage("Ann", "one")
	second := store.AppendMessage("Ann", "two")

	assert.NotEqual(t, first.ID, second.ID)
}

func TestHistoryEvictsOldestBeyondBound(t *testing.T) {
	store := NewStore(5)

	for i := 0; i < 8; i++ {
		store.AppendMessage("Ann", fmt.Sprintf("msg-%d", i))
	}

	history := store.History()
	require.Len(t, history, 5)
	for i, msg := range history {
		assert.Equal(t, fmt.Sprintf("msg-%d", i+3), msg.Text, "retained entries must be the most recent five in insertion order")
	}
}

func TestHistoryBelowBoundKeepsInsertionOrder(t *testing.T) {
	store := NewStore(100)

	store.AppendMessage("Ann", "first")
	store.AppendMessage("Bob", "second")

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Text)
	assert.Equal(t, "second", history[1].Text)
}

func TestHistoryReturnsDefensiveCopy(t *testing.T) {
	store := NewStore(10)
	store.AppendMessage("Ann", "hi")

	snapshot := store.History()
	snapshot[0].Text = "tampered"

	assert.Equal(t, "hi", store.History()[0].Text)
}

func TestAddUserAndUsers(t *testing.T) {
	store := NewStore(10)

	user := store.AddUser("id-1", "Ann")
	assert.Equal(t, "id-1", user.ID)
	assert.Equal(t, "Ann", user.Username)

	users := store.Users()
	require.Len(t, users, 1)
	assert.Equal(t, user, users[0])
}

func TestAddUserDuplicateIDPanics(t *testing.T) {
	store := NewStore(10)
	store.AddUser("id-1", "Ann")

	require.Panics(t, func() {
		store.AddUser("id-1", "Bob")
	})
}

func TestRemoveUserIsIdempotent(t *testing.T) {
	store := NewStore(10)
	store.AddUser("id-1", "Ann")

	store.RemoveUser("id-1")
	store.RemoveUser("id-1")
	store.RemoveUser("never-existed")

	assert.Empty(t, store.Users())
}

func TestUsersReturnsDefensiveCopy(t *testing.T) {
	store := NewStore(10)
	store.AddUser("id-1", "Ann")

	users := store.Users()
	users[0].Username = "tampered"

	assert.Equal(t, "Ann", store.Users()[0].Username)
}

func TestConcurrentAppendRespectsBound(t *testing.T) {
	const bound = 25
	store := NewStore(bound)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				store.AppendMessage(fmt.Sprintf("user-%d", n), "hello")
			}
		}(i)
	}
	wg.Wait()

	history := store.History()
	assert.Len(t, history, bound)

	seen := make(map[string]struct{}, len(history))
	for _, msg := range history {
		_, dup := seen[msg.ID]
		assert.False(t, dup, "message id %s appears twice in history", msg.ID)
		seen[msg.ID] = struct{}{}
	}
}

func TestConcurrentAddRemoveUsersNeverDuplicates(t *testing.T) {
	store := NewStore(10)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := uuid.NewString()
			store.AddUser(id, fmt.Sprintf("user-%d", n))
			store.RemoveUser(id)
			store.RemoveUser(id)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, store.Users(), "every added id must be gone after its RemoveUser completed")
}
