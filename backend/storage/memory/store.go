package memory

import (
	"errors"
	"slices"
	"sync"

	"github.com/adwski/webrtc-call-relay/backend/model"
)

var (
	ErrRoomIsFull   = errors.New("room is full")
	ErrRoomNotFound = errors.New("room is not found")
)

type JoinResult struct {
	// Position is 1 for the member who created the room and 2 for the one who completed it.
	Position int
	// Peer is the pre-existing member when Position is 2.
	Peer string
	// Left holds the outcome of implicit leave if user was a member of another room.
	Left *LeaveResult
}

type LeaveResult struct {
	RoomID    string
	Remaining []string
	Deleted   bool
}

// MemStore keeps room membership and the participant to room binding.
// Mutations of both happen under a single lock, so join and leave
// for the same room never interleave.
type MemStore struct {
	mx    *sync.Mutex
	db    map[string]*model.Room
	users map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx:    &sync.Mutex{},
		db:    make(map[string]*model.Room),
		users: make(map[string]string),
	}
}

func (ms *MemStore) Join(roomID string, userID string) (*JoinResult, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	res := &JoinResult{}
	if _, ok := ms.users[userID]; ok {
		res.Left = ms.leave(userID)
	}

	room, ok := ms.db[roomID]
	if !ok {
		room = &model.Room{ID: roomID}
		ms.db[roomID] = room
	}

	if len(room.Participants) >= model.MaxParticipants {
		return res, ErrRoomIsFull
	}

	room.Participants = append(room.Participants, userID)
	ms.users[userID] = roomID

	res.Position = len(room.Participants)
	if res.Position > 1 {
		res.Peer = room.Participants[0]
	}
	return res, nil
}

// Leave unbinds user from its room. It is safe to call for users without a room.
func (ms *MemStore) Leave(userID string) *LeaveResult {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	return ms.leave(userID)
}

func (ms *MemStore) leave(userID string) *LeaveResult {
	roomID, ok := ms.users[userID]
	delete(ms.users, userID)
	if !ok {
		return nil
	}

	res := &LeaveResult{RoomID: roomID}
	room, ok := ms.db[roomID]
	if !ok {
		return res
	}
	room.Participants = slices.DeleteFunc(room.Participants, func(id string) bool {
		return id == userID
	})
	if len(room.Participants) == 0 {
		delete(ms.db, roomID)
		res.Deleted = true
		return res
	}
	res.Remaining = slices.Clone(room.Participants)
	return res
}

func (ms *MemStore) RoomOf(userID string) (string, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	roomID, ok := ms.users[userID]
	return roomID, ok
}

// GetRoom returns a copy of the room.
func (ms *MemStore) GetRoom(roomID string) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &model.Room{
		ID:           room.ID,
		Participants: slices.Clone(room.Participants),
	}, nil
}

// DeleteRoom removes the room and unbinds all of its members.
// It returns the members the room had.
func (ms *MemStore) DeleteRoom(roomID string) ([]string, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	for _, userID := range room.Participants {
		delete(ms.users, userID)
	}
	delete(ms.db, roomID)
	return room.Participants, nil
}
