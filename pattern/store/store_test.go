package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spaco-sound/spaco/pattern"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "patterns.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Init(context.Background()))
	return s
}

func testPattern(id, name, patternType string) *pattern.Pattern {
	return &pattern.Pattern{
		ID:              id,
		Name:            name,
		Type:            patternType,
		SourceCode:      "SinOsc.ar(440)",
		CompiledCode:    "SinOsc.ar(440)",
		Metadata:        pattern.Metadata{"category": "basic_waveform"},
		CompilationTime: 0.012,
	}
}

func TestInitCreatesUsableSchema(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Init twice: IF NOT EXISTS makes it idempotent.
	require.NoError(t, s.Init(ctx))

	var ddl string
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'precompiled_patterns'`).
		Scan(&ddl))
	assert.Contains(t, ddl, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.Contains(t, ddl, "UNIQUE(name, pattern_type)")

	// The rowid column must actually autoincrement.
	_, err := s.Upsert(ctx, testPattern("id-sine", "sine", "synth_def"))
	require.NoError(t, err)
	var rowID int64
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT id FROM precompiled_patterns WHERE pattern_id = 'id-sine'`).Scan(&rowID))
	assert.Equal(t, int64(1), rowID)
}

func TestUpsertAndGetByKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Upsert(ctx, testPattern("id-sine", "sine", "synth_def"))
	require.NoError(t, err)
	assert.Equal(t, "id-sine", id)

	p, err := s.GetByKey(ctx, "sine", "synth_def")
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "id-sine", p.ID)
	assert.Equal(t, "sine", p.Name)
	assert.Equal(t, "synth_def", p.Type)
	assert.Equal(t, "SinOsc.ar(440)", p.CompiledCode)
	assert.Equal(t, "basic_waveform", p.Metadata.GetString("category"))
	assert.Equal(t, 0.012, p.CompilationTime)
	assert.Nil(t, p.Rating)
	assert.False(t, p.CreatedAt.IsZero())
	require.NotNil(t, p.LastUsedAt)
	assert.WithinDuration(t, time.Now().UTC(), *p.LastUsedAt, 5*time.Second)
}

func TestGetByKeyAbsent(t *testing.T) {
	s := newTestStore(t)

	p, err := s.GetByKey(context.Background(), "missing", "synth_def")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestUpsertPreservesIdentifier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Upsert(ctx, testPattern("id-1", "metal_bell", "percussion"))
	require.NoError(t, err)

	replacement := testPattern("id-2", "metal_bell", "percussion")
	replacement.CompiledCode = "Klank.ar(`[[1, 2.32, 4.25]], imp, 880)"
	second, err := s.Upsert(ctx, replacement)
	require.NoError(t, err)

	// Same key keeps the original identifier.
	assert.Equal(t, first, second)
	assert.Equal(t, "id-1", second)

	p, err := s.GetByKey(ctx, "metal_bell", "percussion")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "id-1", p.ID)
	assert.Equal(t, replacement.CompiledCode, p.CompiledCode)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertReadsBackStoredRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testPattern("id-1", "metal_bell", "percussion")
	_, err := s.Upsert(ctx, first)
	require.NoError(t, err)
	require.False(t, first.CreatedAt.IsZero())

	require.NoError(t, s.UpdateRating(ctx, "id-1", 4.5))

	// A replacement comes back carrying the row's identity, creation
	// time, and rating, not the zero values it went in with.
	replacement := testPattern("id-2", "metal_bell", "percussion")
	_, err = s.Upsert(ctx, replacement)
	require.NoError(t, err)

	assert.Equal(t, "id-1", replacement.ID)
	assert.WithinDuration(t, first.CreatedAt, replacement.CreatedAt, time.Second)
	require.NotNil(t, replacement.Rating)
	assert.Equal(t, 4.5, *replacement.Rating)
}

func TestUpsertDuplicateIdentifier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, testPattern("shared-id", "sine", "synth_def"))
	require.NoError(t, err)

	_, err = s.Upsert(ctx, testPattern("shared-id", "saw", "synth_def"))
	require.Error(t, err)
	assert.True(t, pattern.IsDuplicateIdentifier(err))
}

func TestGetBatchByTypeOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"sine", "saw", "square", "triangle"} {
		_, err := s.Upsert(ctx, testPattern("id-"+name, name, "synth_def"))
		require.NoError(t, err)
	}
	_, err := s.Upsert(ctx, testPattern("id-reverb", "reverb", "effect"))
	require.NoError(t, err)

	// Spread recency out and leave one row never used.
	base := time.Now().UTC()
	setLastUsed := func(id string, at interface{}) {
		_, err := s.DB().ExecContext(ctx,
			`UPDATE precompiled_patterns SET last_used_at = ? WHERE pattern_id = ?`, at, id)
		require.NoError(t, err)
	}
	setLastUsed("id-sine", base.Add(-3*time.Hour))
	setLastUsed("id-saw", base.Add(-1*time.Hour))
	setLastUsed("id-square", base.Add(-2*time.Hour))
	setLastUsed("id-triangle", nil)

	patterns, err := s.GetBatchByType(ctx, "synth_def", 10)
	require.NoError(t, err)
	require.Len(t, patterns, 4)

	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"saw", "square", "sine", "triangle"}, names)
	assert.Nil(t, patterns[3].LastUsedAt)

	// Limit truncates after ordering.
	patterns, err = s.GetBatchByType(ctx, "synth_def", 2)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, "saw", patterns[0].Name)
	assert.Equal(t, "square", patterns[1].Name)

	// Unknown type and non-positive limits are empty, not errors.
	patterns, err = s.GetBatchByType(ctx, "vocal", 10)
	require.NoError(t, err)
	assert.Empty(t, patterns)

	patterns, err = s.GetBatchByType(ctx, "synth_def", 0)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestTouchLastUsedBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, testPattern("id-sine", "sine", "synth_def"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, testPattern("id-saw", "saw", "synth_def"))
	require.NoError(t, err)

	stale := time.Now().UTC().Add(-24 * time.Hour)
	_, err = s.DB().ExecContext(ctx, `UPDATE precompiled_patterns SET last_used_at = ?`, stale)
	require.NoError(t, err)

	// Unknown ids in the batch are ignored.
	require.NoError(t, s.TouchLastUsedBatch(ctx, []string{"id-sine", "id-saw", "id-ghost"}))
	require.NoError(t, s.TouchLastUsedBatch(ctx, nil))

	for _, name := range []string{"sine", "saw"} {
		p, err := s.GetByKey(ctx, name, "synth_def")
		require.NoError(t, err)
		require.NotNil(t, p.LastUsedAt)
		assert.WithinDuration(t, time.Now().UTC(), *p.LastUsedAt, 5*time.Second)
	}
}

func TestUpdateRating(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, testPattern("id-sine", "sine", "synth_def"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateRating(ctx, "id-sine", 4.5))

	p, err := s.GetByKey(ctx, "sine", "synth_def")
	require.NoError(t, err)
	require.NotNil(t, p.Rating)
	assert.Equal(t, 4.5, *p.Rating)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, testPattern("id-sine", "sine", "synth_def"))
	require.NoError(t, err)

	rows, err := s.Delete(ctx, "id-sine")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	// Deleting an absent pattern is a zero-row no-op.
	rows, err = s.Delete(ctx, "id-sine")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestPruneUnused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"old", "fresh", "never"} {
		_, err := s.Upsert(ctx, testPattern("id-"+name, name, "synth_def"))
		require.NoError(t, err)
	}

	_, err := s.DB().ExecContext(ctx,
		`UPDATE precompiled_patterns SET last_used_at = ? WHERE pattern_id = ?`,
		time.Now().UTC().Add(-60*24*time.Hour), "id-old")
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx,
		`UPDATE precompiled_patterns SET last_used_at = NULL WHERE pattern_id = ?`, "id-never")
	require.NoError(t, err)

	pruned, err := s.PruneUnused(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := s.GetByKey(ctx, "fresh", "synth_def")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestCountByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"sine", "saw"} {
		_, err := s.Upsert(ctx, testPattern("id-"+name, name, "synth_def"))
		require.NoError(t, err)
	}
	_, err := s.Upsert(ctx, testPattern("id-reverb", "reverb", "effect"))
	require.NoError(t, err)

	counts, err := s.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"synth_def": 2, "effect": 1}, counts)
}
