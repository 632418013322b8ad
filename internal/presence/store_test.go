package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feliven/coffeetable/internal/domain"
)

func TestStoreUpsertSeedsDefaultHead(t *testing.T) {
	store := NewStore()
	p := domain.NewParticipant()

	store.Upsert(p, nil)

	rec, ok := store.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, domain.DefaultHead(), rec.Head)
	assert.False(t, rec.LastSeen.IsZero())
}

func TestStoreUpsertAppliesHead(t *testing.T) {
	store := NewStore()
	p := domain.NewParticipant()
	head := domain.Head{Pos: domain.Position{X: 120, Y: 80}, Size: 96}

	store.Upsert(p, nil)
	store.Upsert(p, &head)

	rec, ok := store.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, head, rec.Head)
	assert.Equal(t, 1, store.Len())
}

func TestStoreRemove(t *testing.T) {
	store := NewStore()
	p := domain.NewParticipant()

	store.Upsert(p, nil)
	store.Remove(p.ID)

	_, ok := store.Get(p.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())

	// Removing an absent participant is a no-op.
	store.Remove(p.ID)
}

func TestStoreOnChange(t *testing.T) {
	store := NewStore()
	p := domain.NewParticipant()

	var upserts, removals int
	store.OnChange(func(rec domain.PresenceRecord, removed bool) {
		if removed {
			removals++
		} else {
			upserts++
		}
		assert.Equal(t, p.ID, rec.Participant.ID)
	})

	store.Upsert(p, nil)
	store.Upsert(p, &domain.Head{Pos: domain.Position{X: 1, Y: 2}, Size: 64})
	store.Remove(p.ID)

	assert.Equal(t, 2, upserts)
	assert.Equal(t, 1, removals)
}

func TestStoreClear(t *testing.T) {
	store := NewStore()
	store.Upsert(domain.NewParticipant(), nil)
	store.Upsert(domain.NewParticipant(), nil)

	store.Clear()

	assert.Equal(t, 0, store.Len())
	assert.Empty(t, store.Snapshot())
}
