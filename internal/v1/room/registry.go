// Package room holds the in-memory registry of rooms: which clients are in
// each room and the room's shared document. The registry works purely with
// ids and returns snapshots of the state it just changed, so the session
// layer owns all socket handling and a cluster-aware implementation could
// replace this one without touching it.
package room

import (
	"sync"

	"k8s.io/utils/set"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/metrics"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/types"
)

// Room pairs a member set with the room's shared document. Rooms are
// created on first join and deleted as soon as the last member leaves.
type Room struct {
	ID      types.RoomIdType
	members set.Set[types.ClientIdType]
	doc     Doc
}

// Registry tracks every room in this process. Mutations and the snapshots
// that describe them happen under one lock, so a caller never sees members
// and doc drawn from two different states.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[types.RoomIdType]*Room
	byClient map[types.ClientIdType]types.RoomIdType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[types.RoomIdType]*Room),
		byClient: make(map[types.ClientIdType]types.RoomIdType),
	}
}

// JoinResult describes a completed join. Members is the room's membership
// including the joiner, and Doc is the room's document at that moment.
// When the client was already in another room, Left reports the implicit
// departure and PrevMembers holds who remained behind there.
type JoinResult struct {
	RoomID  types.RoomIdType
	Members []types.ClientIdType
	Doc     Doc

	// AlreadyMember is true when the client rejoined the room it was in,
	// which changes nothing about membership.
	AlreadyMember bool

	Left        bool
	PrevRoomID  types.RoomIdType
	PrevMembers []types.ClientIdType
}

// Join moves clientID into roomID, creating the room if this is its first
// member. A client occupies at most one room, so joining while elsewhere
// leaves the old room first.
func (r *Registry) Join(clientID types.ClientIdType, roomID types.RoomIdType) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := JoinResult{RoomID: roomID}

	if prev, ok := r.byClient[clientID]; ok {
		if prev == roomID {
			rm := r.rooms[roomID]
			result.AlreadyMember = true
			result.Members = rm.members.SortedList()
			result.Doc = rm.doc
			return result
		}
		result.Left = true
		result.PrevRoomID = prev
		result.PrevMembers = r.removeLocked(clientID, prev)
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &Room{ID: roomID, members: set.New[types.ClientIdType]()}
		r.rooms[roomID] = rm
		metrics.ActiveRooms.Set(float64(len(r.rooms)))
	}
	rm.members.Insert(clientID)
	r.byClient[clientID] = roomID
	metrics.RoomParticipants.WithLabelValues(string(roomID)).Set(float64(rm.members.Len()))

	result.Members = rm.members.SortedList()
	result.Doc = rm.doc
	return result
}

// LeaveResult describes a completed leave. Members holds who remained in
// the room; it is empty when the room was deleted. Left is false when the
// client was not in any room.
type LeaveResult struct {
	Left    bool
	RoomID  types.RoomIdType
	Members []types.ClientIdType
}

// Leave removes clientID from whatever room it occupies. The room and its
// document are deleted once the last member is gone.
func (r *Registry) Leave(clientID types.ClientIdType) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.byClient[clientID]
	if !ok {
		return LeaveResult{}
	}
	remaining := r.removeLocked(clientID, roomID)
	return LeaveResult{Left: true, RoomID: roomID, Members: remaining}
}

// removeLocked takes clientID out of roomID and returns the remaining
// members. Caller must hold r.mu.
func (r *Registry) removeLocked(clientID types.ClientIdType, roomID types.RoomIdType) []types.ClientIdType {
	rm, ok := r.rooms[roomID]
	if !ok {
		delete(r.byClient, clientID)
		return nil
	}
	rm.members.Delete(clientID)
	delete(r.byClient, clientID)

	if rm.members.Len() == 0 {
		delete(r.rooms, roomID)
		metrics.ActiveRooms.Set(float64(len(r.rooms)))
		metrics.RoomParticipants.DeleteLabelValues(string(roomID))
		return nil
	}
	metrics.RoomParticipants.WithLabelValues(string(roomID)).Set(float64(rm.members.Len()))
	return rm.members.SortedList()
}

// CurrentRoom reports which room clientID is in, if any.
func (r *Registry) CurrentRoom(clientID types.ClientIdType) (types.RoomIdType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.byClient[clientID]
	return roomID, ok
}

// Members returns the sorted membership of roomID, or nil if the room does
// not exist.
func (r *Registry) Members(roomID types.RoomIdType) []types.ClientIdType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return rm.members.SortedList()
}

// Has reports whether clientID is a member of roomID.
func (r *Registry) Has(clientID types.ClientIdType, roomID types.RoomIdType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	return ok && rm.members.Has(clientID)
}

// Rooms returns the ids of all live rooms in unspecified order.
func (r *Registry) Rooms() []types.RoomIdType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.RoomIdType, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Stats returns the number of live rooms and the number of clients
// currently inside one.
func (r *Registry) Stats() (rooms, members int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.byClient)
}
