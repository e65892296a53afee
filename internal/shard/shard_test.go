package shard

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/fieldindex"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/value"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/errors"
)

func cities(t *testing.T, s *Shard) {
	t.Helper()
	require.NoError(t, s.AddRecord(record.FromText("1", map[string]string{"City": "Paris"})))
	require.NoError(t, s.AddRecord(record.FromText("2", map[string]string{"City": "Paris Texas"})))
}

func TestSearch(t *testing.T) {
	s := New(0, Options{})
	cities(t, s)

	assert.ElementsMatch(t, []string{"1", "2"}, s.Search("City", "Paris"))
	assert.Equal(t, []string{"2"}, s.Search("City", "Texas"))
	assert.Equal(t, []string{"2"}, s.Search("City", "Paris Texas"))
	assert.Empty(t, s.Search("City", "Lyon"))
	assert.Empty(t, s.Search("Country", "Paris"))
	assert.Empty(t, s.Search("City", "   "))
}

func TestSearchValue(t *testing.T) {
	s := New(0, Options{})
	cities(t, s)

	assert.Equal(t, []string{"1"}, s.SearchValue("City", "Paris"))
	assert.Equal(t, []string{"2"}, s.SearchValue("City", "Paris Texas"))
	assert.Empty(t, s.SearchValue("City", "Texas"))
	assert.Empty(t, s.SearchValue("City", ""))
}

func TestWildcardSearch(t *testing.T) {
	s := New(0, Options{})
	cities(t, s)

	assert.ElementsMatch(t, []string{"1", "2"}, s.WildcardSearch("City", "Par*"))
	assert.ElementsMatch(t, []string{"1", "2"}, s.WildcardSearch("City", "*"))
	assert.Equal(t, []string{"2"}, s.WildcardSearch("City", "Par* T*"))
	assert.Empty(t, s.WildcardSearch("City", ""))
	assert.Empty(t, s.WildcardSearch("Country", "*"))
}

func TestSearchAny(t *testing.T) {
	s := New(0, Options{})
	require.NoError(t, s.AddRecord(record.New("d1", map[string]value.Value{
		"Name":   value.String("sensor alpha"),
		"Online": value.Bool(true),
		"Port":   value.Int(8080),
	})))
	require.NoError(t, s.AddRecord(record.New("d2", map[string]value.Value{
		"Name":  value.String("gateway"),
		"Notes": value.String("alpha build"),
		"Owner": value.Null(),
	})))

	assert.ElementsMatch(t, []string{"d1", "d2"}, s.SearchAny("alpha"))
	assert.Equal(t, []string{"d1"}, s.SearchAny("true"))
	assert.Equal(t, []string{"d1"}, s.SearchAny("8080"))
	assert.Equal(t, []string{"d1"}, s.SearchAny("80*"))
	assert.ElementsMatch(t, []string{"d1", "d2"}, s.SearchAny("*a*"))
	assert.Empty(t, s.SearchAny(""))
	assert.Empty(t, s.SearchAny("missing"))
}

func TestReplaceRetractsStalePostings(t *testing.T) {
	s := New(0, Options{})
	require.NoError(t, s.AddRecord(record.FromText("1", map[string]string{"City": "Paris Texas", "Zip": "75001"})))
	require.NoError(t, s.AddRecord(record.FromText("1", map[string]string{"City": "Paris Lyon"})))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"1"}, s.Search("City", "Paris"))
	assert.Equal(t, []string{"1"}, s.Search("City", "Lyon"))
	assert.Empty(t, s.Search("City", "Texas"))
	assert.Empty(t, s.Search("Zip", "75001"))
	assert.Empty(t, s.SearchValue("City", "Paris Texas"))
	assert.Equal(t, []string{"1"}, s.SearchValue("City", "Paris Lyon"))
	assert.Empty(t, s.WildcardSearch("City", "Tex*"))

	rec, ok := s.Get("1")
	require.True(t, ok)
	v, _ := rec.Get("City")
	assert.Equal(t, "Paris Lyon", v.Text())
	_, ok = rec.Get("Zip")
	assert.False(t, ok)

	st := s.Stats()
	assert.Equal(t, 2, st.Index.Terms, "Texas and 75001 were retracted")
	assert.Equal(t, 1, st.Index.Values)
}

func TestRejectPolicy(t *testing.T) {
	s := New(0, Options{DuplicatePolicy: config.DuplicateReject})
	require.NoError(t, s.AddRecord(record.FromText("1", map[string]string{"City": "Paris"})))

	err := s.AddRecord(record.FromText("1", map[string]string{"City": "Lyon"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRecordExists)
	assert.Equal(t, []string{"1"}, s.Search("City", "Paris"))
	assert.Empty(t, s.Search("City", "Lyon"))
}

func TestAbortLeavesNoTrace(t *testing.T) {
	s := New(0, Options{})
	w, err := s.Prepare(record.FromText("1", map[string]string{"City": "Paris"}))
	require.NoError(t, err)
	w.Abort()
	w.Commit() // no-op after Abort

	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains("1"))
	assert.Empty(t, s.Search("City", "Paris"))

	// The stripe lock was released: the same ID can be written again.
	require.NoError(t, s.AddRecord(record.FromText("1", map[string]string{"City": "Paris"})))
	assert.Equal(t, []string{"1"}, s.Search("City", "Paris"))
}

func TestPrepareEmptyID(t *testing.T) {
	s := New(0, Options{})
	_, err := s.Prepare(record.Record{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestClose(t *testing.T) {
	s := New(3, Options{})
	cities(t, s)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.AddRecord(record.FromText("3", map[string]string{"City": "Lyon"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrShardClosed)

	assert.ElementsMatch(t, []string{"1", "2"}, s.Search("City", "Paris"))
}

func TestScanStrategy(t *testing.T) {
	f, err := fieldindex.NewFactory(config.StrategyScan, fieldindex.DefaultOptions())
	require.NoError(t, err)
	s := New(0, Options{Factory: f})
	cities(t, s)

	assert.ElementsMatch(t, []string{"1", "2"}, s.WildcardSearch("City", "Par*"))
	assert.Equal(t, "scan", s.Stats().Index.Strategy)
}

func TestStatsAndFields(t *testing.T) {
	s := New(5, Options{})
	require.NoError(t, s.AddRecord(record.FromText("1", map[string]string{"City": "Paris", "Country": "France"})))
	require.NoError(t, s.AddRecord(record.FromText("2", map[string]string{"City": "Paris Texas"})))

	assert.Equal(t, []string{"City", "Country"}, s.Fields())
	st := s.Stats()
	assert.Equal(t, 5, st.ID)
	assert.Equal(t, 2, st.Records)
	assert.Equal(t, 2, st.Fields)
	// City: Paris, Texas; Country: France
	assert.Equal(t, 3, st.Index.Terms)
	assert.Equal(t, 3, st.Index.Values)
	assert.Greater(t, st.BloomFillRatio, 0.0)
}

func TestConcurrentWrites(t *testing.T) {
	s := New(0, Options{})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("r-%d-%d", w, i)
				err := s.AddRecord(record.FromText(id, map[string]string{
					"Tag":  fmt.Sprintf("tag%d common", i%10),
					"Name": id,
				}))
				assert.NoError(t, err)
				s.Search("Tag", "common")
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 1600, s.Len())
	assert.Len(t, s.Search("Tag", "common"), 1600)
	assert.Len(t, s.Search("Tag", "tag3 common"), 160)
	assert.Equal(t, []string{"r-7-199"}, s.Search("Name", "r-7-199"))
}

func TestConcurrentReplaceSameID(t *testing.T) {
	s := New(0, Options{})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = s.AddRecord(record.FromText("same", map[string]string{"V": fmt.Sprintf("v%d", w)}))
			}
		}(w)
	}
	wg.Wait()

	rec, ok := s.Get("same")
	require.True(t, ok)
	v, _ := rec.Get("V")
	// Only the final version's term may still be indexed.
	assert.Equal(t, []string{"same"}, s.Search("V", v.Text()))
	assert.Len(t, s.WildcardSearch("V", "v*"), 1)
	for w := 0; w < 8; w++ {
		term := fmt.Sprintf("v%d", w)
		if term != v.Text() {
			assert.Empty(t, s.Search("V", term))
		}
	}
}

func TestConcurrentReplaceAndSearch(t *testing.T) {
	s := New(0, Options{})
	require.NoError(t, s.AddRecord(record.FromText("x", map[string]string{"F": "alpha"})))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			v := "beta"
			if i%2 == 1 {
				v = "alpha"
			}
			assert.NoError(t, s.AddRecord(record.FromText("x", map[string]string{"F": v})))
		}
	}()

	for {
		select {
		case <-done:
			assert.Equal(t, 1, s.Len())
			assert.Equal(t, []string{"x"}, s.Search("F", "alpha"))
			assert.Empty(t, s.Search("F", "beta"))
			assert.Empty(t, s.WildcardSearch("F", "b*"))
			return
		default:
		}
		assert.LessOrEqual(t, len(s.Search("F", "alpha")), 1)
		assert.LessOrEqual(t, len(s.SearchAny("b*")), 1)
	}
}

func TestResolveChecksCurrentRecord(t *testing.T) {
	s := New(0, Options{})
	require.NoError(t, s.AddRecord(record.FromText("x", map[string]string{"F": "alpha one"})))

	// Swap the stored record without touching the postings, as a commit
	// does between its swap and its retraction.
	s.mu.Lock()
	s.records[s.ords["x"]] = record.FromText("x", map[string]string{"F": "beta two"})
	s.mu.Unlock()

	assert.Empty(t, s.Search("F", "alpha"))
	assert.Empty(t, s.SearchValue("F", "alpha one"))
	assert.Empty(t, s.WildcardSearch("F", "alp*"))
	assert.Empty(t, s.SearchAny("one"))
}

func BenchmarkAddRecord(b *testing.B) {
	s := New(0, Options{})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.AddRecord(record.FromText(fmt.Sprintf("doc-%d", i), map[string]string{
			"Title": fmt.Sprintf("document number %d about distributed search", i),
		}))
	}
}

func BenchmarkSearch(b *testing.B) {
	s := New(0, Options{})
	for i := 0; i < 10000; i++ {
		_ = s.AddRecord(record.FromText(fmt.Sprintf("doc-%d", i), map[string]string{
			"Title": fmt.Sprintf("term%d common", i%100),
		}))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Search("Title", "term42 common")
	}
}
