package gridstate

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

func reading(district string, load float64, at time.Time) domain.GridReading {
	return domain.GridReading{
		District:         district,
		SubstationID:     "SUB-" + district,
		LoadFactor:       load,
		VoltageStability: 0.9,
		FeederHealth:     0.8,
		ObservedAt:       at,
	}
}

func TestStore_NewestWins(t *testing.T) {
	s := NewStore()
	t0 := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.LoadBatch(context.Background(), []domain.GridReading{
		reading("mysore", 0.5, t0),
		reading("mysore", 0.9, t0.Add(time.Minute)),
	}))
	require.NoError(t, s.LoadBatch(context.Background(), []domain.GridReading{
		reading("mysore", 0.1, t0.Add(-time.Hour)),
	}))

	got, ok := s.Get("mysore")
	require.True(t, ok)
	assert.Equal(t, 0.9, got.LoadFactor)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SameTimestampReplaces(t *testing.T) {
	s := NewStore()
	t0 := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.LoadBatch(context.Background(), []domain.GridReading{
		reading("hubli", 0.4, t0),
		reading("hubli", 0.6, t0),
	}))
	got, _ := s.Get("hubli")
	assert.Equal(t, 0.6, got.LoadFactor)
}

func TestStore_GridFallsBackToBaseline(t *testing.T) {
	s := NewStore()
	d, err := domain.DefaultCatalog().Lookup("bangalore")
	require.NoError(t, err)

	g, live := s.Grid(d)
	assert.False(t, live)
	assert.Equal(t, d.BaselineGrid, g)

	require.NoError(t, s.LoadBatch(context.Background(), []domain.GridReading{reading("bangalore", 0.95, time.Now())}))
	g, live = s.Grid(d)
	assert.True(t, live)
	assert.Equal(t, 0.95, g.LoadFactor)
	assert.Equal(t, "SUB-bangalore", g.SubstationID)
}

func TestStore_KeepsEachDistrict(t *testing.T) {
	s := NewStore()
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.LoadBatch(context.Background(), []domain.GridReading{
		reading("udupi", 0.3, now),
		reading("belgaum", 0.4, now),
	}))
	assert.Equal(t, 2, s.Len())

	for _, want := range []domain.GridReading{reading("belgaum", 0.4, now), reading("udupi", 0.3, now)} {
		got, ok := s.Get(want.District)
		require.True(t, ok, want.District)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s reading mismatch (-want +got):\n%s", want.District, diff)
		}
	}
}
