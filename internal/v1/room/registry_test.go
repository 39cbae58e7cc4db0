package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/types"
)

func TestRegistry_JoinCreatesRoom(t *testing.T) {
	r := NewRegistry()

	res := r.Join("alice", "standup")

	assert.Equal(t, types.RoomIdType("standup"), res.RoomID)
	assert.Equal(t, []types.ClientIdType{"alice"}, res.Members)
	assert.Equal(t, Doc{}, res.Doc)
	assert.False(t, res.AlreadyMember)
	assert.False(t, res.Left)

	rooms, members := r.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, members)
}

func TestRegistry_JoinSecondMember(t *testing.T) {
	r := NewRegistry()
	r.Join("bob", "standup")

	res := r.Join("alice", "standup")

	assert.Equal(t, []types.ClientIdType{"alice", "bob"}, res.Members, "members are sorted")
	assert.Equal(t, []types.ClientIdType{"alice", "bob"}, r.Members("standup"))
}

func TestRegistry_RejoinSameRoom(t *testing.T) {
	r := NewRegistry()
	r.Join("alice", "standup")

	res := r.Join("alice", "standup")

	assert.True(t, res.AlreadyMember)
	assert.False(t, res.Left)
	assert.Equal(t, []types.ClientIdType{"alice"}, res.Members)

	rooms, members := r.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, members)
}

func TestRegistry_JoinSwitchesRooms(t *testing.T) {
	r := NewRegistry()
	r.Join("alice", "standup")
	r.Join("bob", "standup")

	res := r.Join("alice", "retro")

	assert.True(t, res.Left)
	assert.Equal(t, types.RoomIdType("standup"), res.PrevRoomID)
	assert.Equal(t, []types.ClientIdType{"bob"}, res.PrevMembers)
	assert.Equal(t, []types.ClientIdType{"alice"}, res.Members)

	got, ok := r.CurrentRoom("alice")
	require.True(t, ok)
	assert.Equal(t, types.RoomIdType("retro"), got)
	assert.False(t, r.Has("alice", "standup"))
}

func TestRegistry_JoinSwitchDeletesEmptyPrevRoom(t *testing.T) {
	r := NewRegistry()
	r.Join("alice", "standup")

	res := r.Join("alice", "retro")

	assert.True(t, res.Left)
	assert.Empty(t, res.PrevMembers)
	assert.Nil(t, r.Members("standup"), "empty room is deleted")

	rooms, _ := r.Stats()
	assert.Equal(t, 1, rooms)
}

func TestRegistry_LeaveRemovesMember(t *testing.T) {
	r := NewRegistry()
	r.Join("alice", "standup")
	r.Join("bob", "standup")

	res := r.Leave("alice")

	assert.True(t, res.Left)
	assert.Equal(t, types.RoomIdType("standup"), res.RoomID)
	assert.Equal(t, []types.ClientIdType{"bob"}, res.Members)

	_, ok := r.CurrentRoom("alice")
	assert.False(t, ok)
}

func TestRegistry_LeaveLastMemberDeletesRoom(t *testing.T) {
	r := NewRegistry()
	r.Join("alice", "standup")

	res := r.Leave("alice")

	assert.True(t, res.Left)
	assert.Empty(t, res.Members)
	assert.Nil(t, r.Members("standup"))

	rooms, members := r.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, members)
}

func TestRegistry_LeaveWithoutRoom(t *testing.T) {
	r := NewRegistry()

	res := r.Leave("ghost")

	assert.False(t, res.Left)
	assert.Empty(t, res.RoomID)
}

func TestRegistry_Rooms(t *testing.T) {
	r := NewRegistry()
	r.Join("alice", "standup")
	r.Join("bob", "retro")

	ids := r.Rooms()

	assert.Len(t, ids, 2)
	assert.ElementsMatch(t, []types.RoomIdType{"standup", "retro"}, ids)
}

func TestRegistry_MembersOfUnknownRoom(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Members("nowhere"))
	assert.False(t, r.Has("alice", "nowhere"))
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			client := types.ClientIdType(fmt.Sprintf("client-%d", i))
			room := types.RoomIdType(fmt.Sprintf("room-%d", i%5))
			for j := 0; j < 20; j++ {
				r.Join(client, room)
				r.UpdateDoc(client, room, "text", nil)
				r.Leave(client)
			}
		}(i)
	}
	wg.Wait()

	rooms, members := r.Stats()
	assert.Equal(t, 0, rooms, "all rooms drained")
	assert.Equal(t, 0, members)
}
