package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JesusBorbon/chat-seguro/internal/message"
)

func rec(id string) message.Record {
	return message.Record{ID: id, Kind: message.KindText, CipherText: "aa", IV: "bb"}
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	s := New(3)
	for _, id := range []string{"A", "B", "C", "D"} {
		s.Append(rec(id))
	}

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, "B", snap[0].ID)
	require.Equal(t, "C", snap[1].ID)
	require.Equal(t, "D", snap[2].ID)
}

func TestSnapshotLengthIsMinOfAppendsAndCapacity(t *testing.T) {
	for _, tc := range []struct {
		appends, capacity, want int
	}{
		{0, 5, 0},
		{3, 5, 3},
		{5, 5, 5},
		{12, 5, 5},
	} {
		s := New(tc.capacity)
		for i := 0; i < tc.appends; i++ {
			s.Append(rec(fmt.Sprintf("m%d", i)))
		}
		require.Len(t, s.Snapshot(), tc.want, "appends=%d capacity=%d", tc.appends, tc.capacity)
		require.Equal(t, tc.want, s.Len())
	}
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	s := New(3)
	r := rec("m1")
	r.Reacciones = map[string][]string{"👍": {"anon-1"}}
	s.Append(r)

	snap := s.Snapshot()
	snap[0].Reacciones["👍"] = append(snap[0].Reacciones["👍"], "anon-2")
	snap[0].ID = "tampered"

	again := s.Snapshot()
	require.Equal(t, "m1", again[0].ID)
	require.Equal(t, []string{"anon-1"}, again[0].Reacciones["👍"])
}

func TestGet(t *testing.T) {
	s := New(3)
	s.Append(rec("m1"))

	got, found := s.Get("m1")
	require.True(t, found)
	require.Equal(t, "m1", got.ID)

	_, found = s.Get("nope")
	require.False(t, found)
}

func TestMutateTogglesInPlace(t *testing.T) {
	s := New(3)
	s.Append(rec("m1"))

	found := s.Mutate("m1", func(r *message.Record) {
		r.ToggleReaction("❤️", "anon-1")
	})
	require.True(t, found)

	got, _ := s.Get("m1")
	require.Equal(t, []string{"anon-1"}, got.Reacciones["❤️"])

	require.False(t, s.Mutate("nope", func(r *message.Record) {
		t.Fatal("must not be called for a missing id")
	}))
}

func TestZeroCapacityFallsBackToDefault(t *testing.T) {
	s := New(0)
	require.Equal(t, DefaultCapacity, s.Capacity())
}
