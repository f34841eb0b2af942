package merge

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
	"github.com/MASanner/findbottomlessmimosas-com/internal/store"
)

func newCatalog(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "merge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func row(url string, score int) model.ValidatedRow {
	return model.ValidatedRow{
		Name:              "Joe's Brunch",
		Address:           "123 Main St",
		City:              "Tampa",
		State:             "FL",
		Phone:             model.PhoneNotListed,
		Lat:               27.9506,
		Lon:               -82.4572,
		ConfirmationScore: score,
		SourceURLs:        []string{url},
		DedupeKey:         "joe's brunch|123 main st|tampa|FL",
	}
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) FindVenueByKey(ctx context.Context, key string) (*model.VenueRecord, error) {
	args := m.Called(ctx, key)
	if v := args.Get(0); v != nil {
		return v.(*model.VenueRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCatalog) UpsertVenue(ctx context.Context, r model.ValidatedRow, isPublished bool, now time.Time) (bool, error) {
	args := m.Called(ctx, r, isPublished, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockCatalog) ListVenues(ctx context.Context, filter model.VenueFilter) ([]model.VenueRecord, error) {
	args := m.Called(ctx, filter)
	if v := args.Get(0); v != nil {
		return v.([]model.VenueRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestIsPublished(t *testing.T) {
	assert.False(t, IsPublished(0))
	assert.False(t, IsPublished(2))
	assert.True(t, IsPublished(3))
	assert.True(t, IsPublished(5))
}

func TestMerge_Idempotent(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)
	m := New(cat)

	r := row("https://www.yelp.com/search?find_desc=bottomless+mimosas", 4)
	out, err := m.Merge(ctx, r, IsPublished(r.ConfirmationScore))
	require.NoError(t, err)
	assert.Equal(t, Inserted, out)

	out, err = m.Merge(ctx, r, IsPublished(r.ConfirmationScore))
	require.NoError(t, err)
	assert.Equal(t, Updated, out)

	all, err := cat.ListVenues(ctx, model.VenueFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, r.SourceURLs, all[0].SourceURLs)
}

func TestMerge_AccumulatesSources(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)
	m := New(cat)

	first := row("https://a.example", 4)
	second := row("https://b.example", 2)

	_, err := m.Merge(ctx, first, IsPublished(first.ConfirmationScore))
	require.NoError(t, err)
	out, err := m.Merge(ctx, second, IsPublished(second.ConfirmationScore))
	require.NoError(t, err)
	assert.Equal(t, Updated, out)

	got, err := cat.FindVenueByKey(ctx, first.DedupeKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, got.SourceURLs)
	assert.Equal(t, 2, got.ConfirmationScore)
	assert.False(t, got.IsPublished)
}

func TestMerge_PublicationThreshold(t *testing.T) {
	tests := []struct {
		score     int
		published bool
	}{
		{2, false},
		{3, true},
	}
	for _, tt := range tests {
		ctx := context.Background()
		cat := newCatalog(t)
		m := New(cat)

		r := row("https://a.example", tt.score)
		_, err := m.Merge(ctx, r, IsPublished(r.ConfirmationScore))
		require.NoError(t, err)

		got, err := cat.FindVenueByKey(ctx, r.DedupeKey)
		require.NoError(t, err)
		assert.Equal(t, tt.published, got.IsPublished, "score %d", tt.score)
		assert.False(t, got.HumanReviewed)
	}
}

func TestMerge_PublishedToPending(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)
	m := New(cat)

	_, err := m.Merge(ctx, row("https://a.example", 5), true)
	require.NoError(t, err)
	_, err = m.Merge(ctx, row("https://a.example", 1), false)
	require.NoError(t, err)

	got, err := cat.FindVenueByKey(ctx, row("", 0).DedupeKey)
	require.NoError(t, err)
	assert.False(t, got.IsPublished)
	assert.Equal(t, 1, got.ConfirmationScore)
}

func TestMerge_ConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)
	m := New(cat)

	urls := []string{"https://a.example", "https://b.example", "https://c.example"}
	outcomes := make([]Outcome, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			out, err := m.Merge(ctx, row(u, 3), true)
			assert.NoError(t, err)
			outcomes[i] = out
		}(i, u)
	}
	wg.Wait()

	inserted := 0
	for _, o := range outcomes {
		if o == Inserted {
			inserted++
		}
	}
	assert.Equal(t, 1, inserted)

	got, err := cat.FindVenueByKey(ctx, row("", 0).DedupeKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, urls, got.SourceURLs)
	assert.Equal(t, 0, m.locks.Len())
}

func TestMerge_StoreError(t *testing.T) {
	cat := &mockCatalog{}
	cat.On("UpsertVenue", mock.Anything, mock.Anything, true, mock.Anything).
		Return(false, errors.New("disk full"))

	m := New(cat)
	_, err := m.Merge(context.Background(), row("https://a.example", 4), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	cat.AssertExpectations(t)
}

func TestMerge_EmptyKey(t *testing.T) {
	cat := &mockCatalog{}
	m := New(cat)

	r := row("https://a.example", 4)
	r.DedupeKey = ""
	_, err := m.Merge(context.Background(), r, true)
	require.Error(t, err)
	cat.AssertNotCalled(t, "UpsertVenue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMerge_UsesClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cat := &mockCatalog{}
	cat.On("UpsertVenue", mock.Anything, mock.Anything, false, fixed).Return(true, nil)

	m := New(cat)
	m.now = func() time.Time { return fixed }
	out, err := m.Merge(context.Background(), row("https://a.example", 2), false)
	require.NoError(t, err)
	assert.Equal(t, Inserted, out)
	cat.AssertExpectations(t)
}

func TestKeyedMutex_SerialisesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	unlock := k.Lock("a")

	acquired := make(chan struct{})
	go func() {
		u := k.Lock("a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}

	otherUnlock := k.Lock("b")
	otherUnlock()

	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return k.Len() == 0 }, time.Second, time.Millisecond)
}
