package neo4j

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Runner executes Cypher and returns fully buffered results.
type Runner interface {
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
	// ReadRun executes query routed to readers.
	ReadRun(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
	Verify(ctx context.Context) error
	Close(ctx context.Context) error
}

// Executor is the driver backed Runner.
type Executor struct {
	Driver neo4j.DriverWithContext
	DBName string
}

// NewExecutor creates a driver for uri. It does not connect; call Verify to
// check connectivity.
func NewExecutor(uri, username, password, dbName string) (*Executor, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create neo4j driver: %w", err)
	}
	return &Executor{Driver: driver, DBName: dbName}, nil
}

func (e *Executor) Verify(ctx context.Context) error {
	return e.Driver.VerifyConnectivity(ctx)
}

func (e *Executor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}

func (e *Executor) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return e.execute(ctx, query, params, neo4j.ExecuteQueryWithWritersRouting())
}

func (e *Executor) ReadRun(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return e.execute(ctx, query, params, neo4j.ExecuteQueryWithReadersRouting())
}

func (e *Executor) execute(
	ctx context.Context,
	query string,
	params map[string]any,
	routing neo4j.ExecuteQueryConfigurationOption,
) (*neo4j.EagerResult, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{routing}
	if e.DBName != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(e.DBName))
	}
	result, err := neo4j.ExecuteQuery(ctx, e.Driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}
	return result, nil
}

// GraphStorage implements store.GraphStorage on Neo4j.
type GraphStorage struct {
	runner Runner
}

var _ store.GraphStorage = (*GraphStorage)(nil)

// NewGraphStorage wraps runner.
func NewGraphStorage(runner Runner) *GraphStorage {
	return &GraphStorage{runner: runner}
}

func (s *GraphStorage) Verify(ctx context.Context) error {
	return s.runner.Verify(ctx)
}

func (s *GraphStorage) Close(ctx context.Context) error {
	return s.runner.Close(ctx)
}

var relTypePattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

func quoteLabel(label string) (string, error) {
	if label != common.LabelChunk && !common.IsEntityType(label) {
		return "", fmt.Errorf("%w: %q", store.ErrUnknownLabel, label)
	}
	return "`" + label + "`", nil
}

func quoteRelType(t string) (string, error) {
	if !relTypePattern.MatchString(t) {
		return "", fmt.Errorf("invalid relationship type %q", t)
	}
	return "`" + t + "`", nil
}

func allLabels() []string {
	out := make([]string, 0, len(common.EntityTypes)+1)
	out = append(out, common.EntityTypes...)
	return append(out, common.LabelChunk)
}

// EnsureSchema creates the uniqueness constraints the merges rely on.
func (s *GraphStorage) EnsureSchema(ctx context.Context) error {
	for _, label := range allLabels() {
		quoted, _ := quoteLabel(label)
		key := "id"
		if label == common.LabelChunk {
			key = "chunk_id"
		}
		name := "uniq_" + strings.ToLower(strings.ReplaceAll(label, "-", "_")) + "_" + key
		q := fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE", name, quoted, key)
		if _, err := s.runner.Run(ctx, q, nil); err != nil {
			return fmt.Errorf("create constraint for %s: %w", label, err)
		}
	}
	return nil
}
