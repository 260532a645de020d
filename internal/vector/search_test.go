package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"civiccite/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	rows [][]any
	i    int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.i-1], nil }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d targets for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *int:
			*p = row[i].(int)
		case *int16:
			*p = row[i].(int16)
		case *float64:
			*p = row[i].(float64)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}

// fakeTx records what a search sends. Methods a search never calls are left
// to the embedded nil interface.
type fakeTx struct {
	pgx.Tx
	execs     []string
	sql       string
	args      []any
	rows      *fakeRows
	execErr   error
	committed bool
}

func (tx *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, sql)
	return pgconn.CommandTag{}, tx.execErr
}

func (tx *fakeTx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	tx.sql, tx.args = sql, args
	return tx.rows, nil
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct {
	tx *fakeTx
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) { return d.tx, nil }

func TestSearchCandidatesFiltersBeforeOrdering(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	q := &fakeTx{rows: &fakeRows{rows: [][]any{
		{"c1", 0, "Polling opens at 7.", "s1", "Poll times", "https://eci.gov.in/x", "html", "en", "", "voting",
			int16(models.TierGov), now, now, "html", 0.91},
	}}}
	s := NewSearcher(&fakeDB{tx: q}, Options{IterativeScan: true, MinEFSearch: 100})

	out, err := s.SearchCandidates(context.Background(), []float32{0.1, 0.2}, 20, Filters{Language: "EN", Region: " Kerala "})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "c1", out[0].Chunk.ChunkID)
	require.Equal(t, models.TierGov, out[0].Chunk.TrustTier)
	require.InDelta(t, 0.91, out[0].Score, 1e-9)

	where := strings.Index(q.sql, "WHERE")
	order := strings.Index(q.sql, "ORDER BY")
	require.Greater(t, order, where)
	require.Contains(t, q.sql[where:order], "language = $2")
	require.Contains(t, q.sql[where:order], "region = ''")
	require.IsType(t, pgvector.Vector{}, q.args[0])
	require.Equal(t, "en", q.args[1])
	require.Equal(t, "kerala", q.args[2])
	require.Equal(t, 20, q.args[4])
	require.True(t, q.committed)
}

func TestSearchCandidatesTunesHNSWScan(t *testing.T) {
	tx := &fakeTx{rows: &fakeRows{}}
	s := NewSearcher(&fakeDB{tx: tx}, Options{IterativeScan: true, MinEFSearch: 40})
	_, err := s.SearchCandidates(context.Background(), []float32{1, 0}, 200, Filters{Language: "ta"})
	require.NoError(t, err)
	require.Equal(t, []string{
		"SET LOCAL hnsw.ef_search = 200",
		"SET LOCAL hnsw.iterative_scan = relaxed_order",
	}, tx.execs, "ef_search must cover the candidate count")

	tx = &fakeTx{rows: &fakeRows{}}
	s = NewSearcher(&fakeDB{tx: tx}, Options{MinEFSearch: 100})
	_, err = s.SearchCandidates(context.Background(), []float32{1, 0}, 5000, Filters{Language: "en"})
	require.NoError(t, err)
	require.Equal(t, []string{"SET LOCAL hnsw.ef_search = 1000"}, tx.execs)
}

func TestSearchCandidatesStopsWhenTuningFails(t *testing.T) {
	tx := &fakeTx{rows: &fakeRows{}, execErr: &pgconn.PgError{Code: "42704", Message: "unrecognized configuration parameter"}}
	s := NewSearcher(&fakeDB{tx: tx}, Options{IterativeScan: true})
	_, err := s.SearchCandidates(context.Background(), []float32{1, 0}, 10, Filters{Language: "en"})
	require.Error(t, err)
	require.Empty(t, tx.sql, "search must not run with default scan settings")
	require.False(t, tx.committed)
}

func TestSearchCandidatesRejectsEmptyVector(t *testing.T) {
	s := NewSearcher(&fakeDB{tx: &fakeTx{rows: &fakeRows{}}}, Options{})
	_, err := s.SearchCandidates(context.Background(), nil, 5, Filters{Language: "en"})
	require.Error(t, err)
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(&pgconn.PgError{Code: "08006"}))
	require.True(t, Retryable(fmt.Errorf("search: %w", &pgconn.PgError{Code: "57P01"})))
	require.False(t, Retryable(&pgconn.PgError{Code: "42P01"}))
	require.False(t, Retryable(errors.New("syntax error")))
	require.False(t, Retryable(nil))
}
