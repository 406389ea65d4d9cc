package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-chat-service/internal/observability"
)

func testConn(id string, principal int) *Conn {
	return newConn(id, principal, TransportWebSocket, 8, observability.WSLifecycle{})
}

func TestRegistryJoinIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(testConn("a", 1))

	joined, err := r.Join("a", 42)
	require.NoError(t, err)
	assert.True(t, joined)

	joined, err = r.Join("a", 42)
	require.NoError(t, err)
	assert.False(t, joined)

	assert.Equal(t, []string{"a"}, r.Members(42))
	assert.Equal(t, []int{42}, r.Groups("a"))
}

func TestRegistryLeaveNonMember(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(testConn("a", 1))

	assert.False(t, r.Leave("a", 42))
	assert.False(t, r.Leave("missing", 42))
	assert.Empty(t, r.Members(42))
}

func TestRegistryLeaveDropsEmptyGroup(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(testConn("a", 1))
	_, err := r.Join("a", 42)
	require.NoError(t, err)

	assert.True(t, r.Leave("a", 42))
	assert.Empty(t, r.Members(42))
	assert.Empty(t, r.groups)
}

func TestRegistryDisconnectRemovesEveryMembership(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(testConn("a", 1))
	r.Register(testConn("b", 2))
	for _, id := range []int{3, 1, 2} {
		_, err := r.Join("a", id)
		require.NoError(t, err)
	}
	_, err := r.Join("b", 1)
	require.NoError(t, err)

	groups, ok := r.Disconnect("a")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, groups)
	assert.Equal(t, []string{"b"}, r.Members(1))
	assert.Empty(t, r.Members(2))
	assert.Empty(t, r.Groups("a"))
	assert.Equal(t, 1, r.Len())

	_, ok = r.Disconnect("a")
	assert.False(t, ok)
}

func TestRegistryRejectsUnauthenticatedJoin(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(testConn("anon", 0))

	joined, err := r.Join("anon", 42)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.False(t, joined)
	assert.Empty(t, r.Members(42))
}

func TestRegistryJoinErrors(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(testConn("a", 1))

	_, err := r.Join("a", 0)
	assert.ErrorIs(t, err, ErrInvalidGroup)

	_, err = r.Join("missing", 42)
	assert.ErrorIs(t, err, ErrUnknownConn)
}
