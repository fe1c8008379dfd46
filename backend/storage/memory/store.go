package memory

import (
	"errors"
	"slices"
	"sync"

	"github.com/adwski/webrtc-rooms/backend/model"
)

var (
	ErrRoomNotFound  = errors.New("room is not found")
	ErrEmptyRoomID   = errors.New("room id is empty")
	ErrEmptyUserID   = errors.New("participant id is empty")
	ErrAlreadyJoined = errors.New("participant already joined this room")
	ErrInAnotherRoom = errors.New("participant is a member of another room")
	ErrNotAMember    = errors.New("participant is not a member of any room")
)

// MemStore is the room registry. Rooms exist only while they have members.
// Every operation runs under a single lock, so the members returned by Join
// are exactly the members present before the insertion.
type MemStore struct {
	mx      *sync.Mutex
	db      map[string]*model.Room
	members map[string]string // participant -> room
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx:      &sync.Mutex{},
		db:      make(map[string]*model.Room),
		members: make(map[string]string),
	}
}

// Join adds participant to the room creating the room if needed, and returns
// members that were in the room before the participant.
func (ms *MemStore) Join(roomID, userID, name string) ([]model.Member, error) {
	roomID = model.NormalizeRoomID(roomID)
	if roomID == "" {
		return nil, ErrEmptyRoomID
	}
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	ms.mx.Lock()
	defer ms.mx.Unlock()

	if current, ok := ms.members[userID]; ok {
		if current == roomID {
			return nil, ErrAlreadyJoined
		}
		return nil, ErrInAnotherRoom
	}

	room, ok := ms.db[roomID]
	if !ok {
		room = &model.Room{ID: roomID}
		ms.db[roomID] = room
	}
	existing := slices.Clone(room.Members)

	room.Members = append(room.Members, model.Member{
		ID:   userID,
		Name: model.NormalizeDisplayName(name),
	})
	ms.members[userID] = roomID
	return existing, nil
}

// Leave removes participant from its room and returns room id along with
// remaining members. Room is deleted once nobody is left.
func (ms *MemStore) Leave(userID string) (string, []model.Member, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	roomID, ok := ms.members[userID]
	if !ok {
		return "", nil, ErrNotAMember
	}
	delete(ms.members, userID)

	room, ok := ms.db[roomID]
	if !ok {
		// index and rooms are always updated together
		return roomID, nil, nil
	}
	room.Members = slices.DeleteFunc(room.Members, func(m model.Member) bool {
		return m.ID == userID
	})
	if len(room.Members) == 0 {
		delete(ms.db, roomID)
		return roomID, nil, nil
	}
	return roomID, slices.Clone(room.Members), nil
}

// Members returns ordered snapshot of room members.
func (ms *MemStore) Members(roomID string) ([]model.Member, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[model.NormalizeRoomID(roomID)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return slices.Clone(room.Members), nil
}

func (ms *MemStore) IsMember(roomID, userID string) bool {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	current, ok := ms.members[userID]
	return ok && current == model.NormalizeRoomID(roomID)
}

func (ms *MemStore) RoomOf(userID string) (string, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	roomID, ok := ms.members[userID]
	return roomID, ok
}

// RoomIDs returns sorted ids of all existing rooms.
func (ms *MemStore) RoomIDs() []string {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ids := make([]string, 0, len(ms.db))
	for id := range ms.db {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
