package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2021, 4, 24, 18, 0, 0, 0, time.UTC)
	rec := &Record{
		RunID:       NewRunID(),
		Exchange:    "Binance",
		Symbol:      "XYZ/BTC",
		EventKey:    "XYZ_2021-05-01 18:00",
		WindowStart: start,
		WindowEnd:   start.Add(14 * 24 * time.Hour),
		Status:      StatusDone,
		Rows:        42,
		Path:        "data/XYZ_2021-05-01 18.00.csv",
		Params:      map[string]any{"page_limit": 1000},
	}
	require.NoError(t, s.Append(ctx, rec))
	require.NotZero(t, rec.ID)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "binance", got.Exchange)
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, 42, got.Rows)
	assert.True(t, got.WindowStart.Equal(start))
	assert.EqualValues(t, 1000, got.Params["page_limit"])
	assert.False(t, got.FinishedAt.IsZero())

	_, err = s.Get(ctx, rec.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := NewRunID()
	for i, st := range []Status{StatusDone, StatusAbsent, StatusDone, StatusFailed} {
		require.NoError(t, s.Append(ctx, &Record{
			RunID:    run,
			Exchange: "binance",
			Symbol:   "S" + string(rune('A'+i)) + "/BTC",
			Status:   st,
		}))
	}
	require.NoError(t, s.Append(ctx, &Record{RunID: NewRunID(), Exchange: "gate", Status: StatusSkipped}))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "gate", all[0].Exchange, "newest first")

	done, err := s.List(ctx, Filter{RunID: run, Status: StatusDone})
	require.NoError(t, err)
	assert.Len(t, done, 2)

	limited, err := s.List(ctx, Filter{Exchange: "binance", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, StatusFailed, limited[0].Status)

	summary, err := s.Summary(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, map[Status]int{StatusDone: 2, StatusAbsent: 1, StatusFailed: 1}, summary)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
