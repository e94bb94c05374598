package presence

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func ids(roster []Participant) []string {
	out := make([]string, len(roster))
	for i, p := range roster {
		out[i] = p.ID
	}
	return out
}

func TestJoinLeaveSequences(t *testing.T) {
	type op struct {
		join bool
		conn string
	}

	tests := []struct {
		name string
		ops  []op
		want []string
	}{
		{
			name: "join order is preserved",
			ops:  []op{{true, "a"}, {true, "b"}, {true, "c"}},
			want: []string{"a", "b", "c"},
		},
		{
			name: "leave removes only the leaver",
			ops:  []op{{true, "a"}, {true, "b"}, {true, "c"}, {false, "b"}},
			want: []string{"a", "c"},
		},
		{
			name: "rejoin after leave goes to the end",
			ops:  []op{{true, "a"}, {true, "b"}, {false, "a"}, {true, "a"}},
			want: []string{"b", "a"},
		},
		{
			name: "double join keeps original position",
			ops:  []op{{true, "a"}, {true, "b"}, {true, "a"}},
			want: []string{"a", "b"},
		},
		{
			name: "leave of absent connection is a no-op",
			ops:  []op{{true, "a"}, {false, "zzz"}},
			want: []string{"a"},
		},
		{
			name: "everyone leaves",
			ops:  []op{{true, "a"}, {false, "a"}},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			var roster []Participant
			for _, o := range tt.ops {
				if o.join {
					roster = s.Join("R1", o.conn, "name-"+o.conn)
				} else {
					roster = s.Leave("R1", o.conn)
				}
			}
			if got := ids(roster); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("roster = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	s := NewStore()
	s.Join("R1", "a", "Alice")
	roster := s.Join("R1", "a", "Alicia")

	if len(roster) != 1 {
		t.Fatalf("expected 1 entry, got %d: %v", len(roster), roster)
	}
	if roster[0].Name != "Alicia" {
		t.Errorf("name = %q, want %q", roster[0].Name, "Alicia")
	}
	if name, _ := s.LookupDisplayName("a"); name != "Alicia" {
		t.Errorf("LookupDisplayName = %q, want %q", name, "Alicia")
	}
}

func TestJoinDefaultName(t *testing.T) {
	s := NewStore()
	roster := s.Join("R1", "0b9f3c7d-1a2b", "")
	if roster[0].Name != "User-1a2b" {
		t.Errorf("default name = %q, want User-1a2b", roster[0].Name)
	}
}

func TestEmptyRoomIsPruned(t *testing.T) {
	s := NewStore()
	s.Join("R1", "a", "Alice")
	s.Leave("R1", "a")

	if s.Exists("R1") {
		t.Error("room still exists after last participant left")
	}
	if rooms, participants := s.Stats(); rooms != 0 || participants != 0 {
		t.Errorf("Stats = (%d, %d), want (0, 0)", rooms, participants)
	}
	if _, ok := s.LookupDisplayName("a"); ok {
		t.Error("display name survived leaving every room")
	}
}

func TestRemoveConnectionEverywhere(t *testing.T) {
	s := NewStore()
	s.Join("A", "x", "X")
	s.Join("A", "y", "Y")
	s.Join("B", "x", "X")
	s.Join("B", "z", "Z")
	s.Join("C", "y", "Y")

	changed := s.RemoveConnectionEverywhere("x")
	if len(changed) != 2 {
		t.Fatalf("changed rooms = %d, want 2: %+v", len(changed), changed)
	}
	if changed[0].RoomID != "A" || changed[1].RoomID != "B" {
		t.Errorf("changed rooms = %s,%s, want A,B", changed[0].RoomID, changed[1].RoomID)
	}
	if got := ids(changed[0].Participants); !reflect.DeepEqual(got, []string{"y"}) {
		t.Errorf("room A = %v, want [y]", got)
	}
	if got := ids(changed[1].Participants); !reflect.DeepEqual(got, []string{"z"}) {
		t.Errorf("room B = %v, want [z]", got)
	}
	if got := s.RoomsOf("x"); len(got) != 0 {
		t.Errorf("RoomsOf(x) = %v, want none", got)
	}

	if again := s.RemoveConnectionEverywhere("x"); len(again) != 0 {
		t.Errorf("second removal changed %d rooms", len(again))
	}
}

func TestLookupDisplayNameUsesLatestJoin(t *testing.T) {
	s := NewStore()
	s.Join("A", "x", "First")
	s.Join("B", "x", "Second")

	if name, ok := s.LookupDisplayName("x"); !ok || name != "Second" {
		t.Errorf("LookupDisplayName = (%q, %v), want (Second, true)", name, ok)
	}
	if _, ok := s.LookupDisplayName("missing"); ok {
		t.Error("unknown connection reported a name")
	}
}

func TestRosterIsACopy(t *testing.T) {
	s := NewStore()
	roster := s.Join("R1", "a", "Alice")
	roster[0].Name = "mutated"

	if got := s.Roster("R1")[0].Name; got != "Alice" {
		t.Errorf("store was mutated through returned roster: %q", got)
	}
}

func TestConcurrentJoinsAreNotLost(t *testing.T) {
	s := NewStore()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("conn-%03d", i)
			s.Join("R1", conn, conn)
			if i%2 == 0 {
				s.Leave("R1", conn)
			}
		}(i)
	}
	wg.Wait()

	if got := len(s.Roster("R1")); got != n/2 {
		t.Errorf("roster size = %d, want %d", got, n/2)
	}
}
