package presence

import (
	"fmt"
	"sort"
	"sync"
)

// Participant is one live connection inside a room.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomRoster pairs a room with its participants at one instant.
type RoomRoster struct {
	RoomID       string
	Participants []Participant
}

// Store maps room IDs to ordered participant lists.
//
// All methods are safe for concurrent use. Every mutation runs under a
// single lock, so joins and leaves to the same room are linearized.
type Store struct {
	mu sync.Mutex

	// rooms maps a room ID to its participants in join order.
	rooms map[string][]Participant

	// memberships maps a connection ID to the set of rooms it is in.
	memberships map[string]map[string]struct{}

	// names holds the display name from each connection's latest join.
	names map[string]string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		rooms:       make(map[string][]Participant),
		memberships: make(map[string]map[string]struct{}),
		names:       make(map[string]string),
	}
}

// DefaultName is the display name given to a participant that joins without one.
func DefaultName(connID string) string {
	suffix := connID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return fmt.Sprintf("User-%s", suffix)
}

// Join upserts connID into roomID and returns the resulting roster.
// A second join from the same connection replaces its entry in place.
func (s *Store) Join(roomID, connID, name string) []Participant {
	if name == "" {
		name = DefaultName(connID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	roster := s.rooms[roomID]
	replaced := false
	for i := range roster {
		if roster[i].ID == connID {
			roster[i].Name = name
			replaced = true
			break
		}
	}
	if !replaced {
		roster = append(roster, Participant{ID: connID, Name: name})
	}
	s.rooms[roomID] = roster

	rooms, ok := s.memberships[connID]
	if !ok {
		rooms = make(map[string]struct{})
		s.memberships[connID] = rooms
	}
	rooms[roomID] = struct{}{}
	s.names[connID] = name

	return clone(roster)
}

// Leave removes connID from roomID. Leaving a room you are not in is a no-op.
func (s *Store) Leave(roomID, connID string) []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(roomID, connID)
	return clone(s.rooms[roomID])
}

// RemoveConnectionEverywhere drops connID from every room it joined and
// returns the rosters of exactly those rooms, sorted by room ID.
func (s *Store) RemoveConnectionEverywhere(connID string) []RoomRoster {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := s.memberships[connID]
	changed := make([]RoomRoster, 0, len(rooms))
	for roomID := range rooms {
		if s.removeLocked(roomID, connID) {
			changed = append(changed, RoomRoster{
				RoomID:       roomID,
				Participants: clone(s.rooms[roomID]),
			})
		}
	}

	sort.Slice(changed, func(i, j int) bool {
		return changed[i].RoomID < changed[j].RoomID
	})
	return changed
}

// LookupDisplayName returns the name connID most recently joined with,
// as long as it is still a member of some room.
func (s *Store) LookupDisplayName(connID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := s.names[connID]
	return name, ok
}

// Roster returns a copy of the participants in roomID.
func (s *Store) Roster(roomID string) []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	return clone(s.rooms[roomID])
}

// RoomsOf lists the rooms connID is currently in, sorted.
func (s *Store) RoomsOf(connID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]string, 0, len(s.memberships[connID]))
	for roomID := range s.memberships[connID] {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// Exists reports whether roomID currently has participants.
func (s *Store) Exists(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.rooms[roomID]
	return ok
}

// Stats returns the number of live rooms and room memberships.
func (s *Store) Stats() (rooms, participants int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, roster := range s.rooms {
		participants += len(roster)
	}
	return len(s.rooms), participants
}

// removeLocked deletes connID from roomID and prunes empty state.
// It reports whether the roster changed. Callers must hold s.mu.
func (s *Store) removeLocked(roomID, connID string) bool {
	roster, ok := s.rooms[roomID]
	if !ok {
		return false
	}

	idx := -1
	for i := range roster {
		if roster[i].ID == connID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	roster = append(roster[:idx], roster[idx+1:]...)
	if len(roster) == 0 {
		delete(s.rooms, roomID)
	} else {
		s.rooms[roomID] = roster
	}

	if rooms, ok := s.memberships[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(s.memberships, connID)
			delete(s.names, connID)
		}
	}
	return true
}

func clone(roster []Participant) []Participant {
	out := make([]Participant, len(roster))
	copy(out, roster)
	return out
}
