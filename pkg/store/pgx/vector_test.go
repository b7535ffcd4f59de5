package pgx

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRows serves fixed rows; every row is a slice of values assigned to
// Scan destinations in order.
type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgxv5.Conn                            { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *float64:
			*p = row[i].(float64)
		case *map[string]any:
			*p = row[i].(map[string]any)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeConn struct {
	rows    [][]any
	queries []string
	args    [][]any
	execs   []string
}

func (c *fakeConn) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	return pgconn.NewCommandTag("TRUNCATE TABLE"), nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgxv5.Rows, error) {
	c.queries = append(c.queries, sql)
	c.args = append(c.args, args)
	return &fakeRows{rows: c.rows}, nil
}

func (c *fakeConn) Begin(ctx context.Context) (pgxv5.Tx, error) {
	return nil, errors.New("transactions are not supported by fakeConn")
}

func TestSearch_ScansRecords(t *testing.T) {
	conn := &fakeConn{rows: [][]any{
		{"code_civil/chunk_1.txt", "code_civil", "Article 1 ...", map[string]any{"index": float64(1)}, 0.92},
		{"code_civil/chunk_2.txt", "code_civil", "Article 2 ...", map[string]any{}, 0.85},
	}}
	s := NewVectorStorage(conn)

	got, err := s.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "code_civil/chunk_1.txt", got[0].ChunkID)
	assert.InDelta(t, 0.92, got[0].Score, 1e-9)

	require.Len(t, conn.args, 1)
	assert.Equal(t, pgvector.NewVector([]float32{1, 0, 0}), conn.args[0][0])
	assert.Equal(t, 2, conn.args[0][1])
}

func TestSearch_NothingToAsk(t *testing.T) {
	conn := &fakeConn{}
	s := NewVectorStorage(conn)

	got, err := s.Search(context.Background(), []float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Search(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, conn.queries)
}

func TestUpsert_EmptyIsNoop(t *testing.T) {
	s := NewVectorStorage(&fakeConn{})
	assert.NoError(t, s.Upsert(context.Background(), nil))
	assert.Error(t, s.Upsert(context.Background(), []common.VectorRecord{{ChunkID: "a"}}))
}

func TestListChunkIDsAndClear(t *testing.T) {
	conn := &fakeConn{rows: [][]any{{"a/chunk_1.txt"}, {"a/chunk_2.txt"}}}
	s := NewVectorStorage(conn)

	ids, err := s.ListChunkIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a/chunk_1.txt": {}, "a/chunk_2.txt": {}}, ids)

	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, []string{"TRUNCATE chunks"}, conn.execs)
}
