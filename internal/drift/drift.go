package drift

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/temporadb/tempora/internal/introspect"
	"github.com/temporadb/tempora/internal/manager"
	"github.com/temporadb/tempora/internal/schema"
)

// Detector compares the fingerprint of the declared tables against the
// fingerprint of the live database.
type Detector struct {
	db *sql.DB
}

// NewDetector creates a drift detector over the caller-owned connection pool.
func NewDetector(db *sql.DB) *Detector {
	return &Detector{db: db}
}

// Result is a complete drift detection outcome.
type Result struct {
	HasDrift     bool
	ExpectedHash string
	ActualHash   string
	Comparison   *HashComparison
}

// Detect normalizes the declared models (engine columns and audit tables
// included, matching what a sync would create), introspects the database, and
// compares merkle fingerprints.
func (d *Detector) Detect(ctx context.Context, models []*schema.TableDef) (*Result, error) {
	declared, err := manager.NormalizeModels(models)
	if err != nil {
		return nil, err
	}

	live, err := introspect.New(d.db).Schema(ctx)
	if err != nil {
		return nil, err
	}

	expected, err := ComputeSchemaHash(declared)
	if err != nil {
		return nil, err
	}
	actual, err := ComputeSchemaHash(live)
	if err != nil {
		return nil, err
	}

	comparison := CompareHashes(expected, actual)
	return &Result{
		HasDrift:     !comparison.Match,
		ExpectedHash: expected.Root,
		ActualHash:   actual.Root,
		Comparison:   comparison,
	}, nil
}

// QuickCheck reports whether the schemas match, comparing root hashes only.
func (d *Detector) QuickCheck(ctx context.Context, models []*schema.TableDef) (bool, error) {
	result, err := d.Detect(ctx, models)
	if err != nil {
		return false, err
	}
	return !result.HasDrift, nil
}

// Describe renders the result as human-readable lines for CLI output.
func Describe(r *Result) []string {
	if !r.HasDrift {
		return []string{"schema matches declared tables (root " + shortHash(r.ExpectedHash) + ")"}
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("schema drift detected (expected %s, actual %s)",
		shortHash(r.ExpectedHash), shortHash(r.ActualHash)))

	for _, name := range r.Comparison.MissingTables {
		lines = append(lines, "  missing table: "+name)
	}
	for _, name := range r.Comparison.ExtraTables {
		lines = append(lines, "  extra table: "+name)
	}

	tables := make([]string, 0, len(r.Comparison.TableDiffs))
	for name := range r.Comparison.TableDiffs {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	for _, name := range tables {
		td := r.Comparison.TableDiffs[name]
		lines = append(lines, "  modified table: "+name)
		lines = appendObjectLines(lines, "column", td.MissingColumns, td.ExtraColumns, td.ModifiedColumns)
		lines = appendObjectLines(lines, "index", td.MissingIndexes, td.ExtraIndexes, td.ModifiedIndexes)
	}
	return lines
}

func appendObjectLines(lines []string, kind string, missing, extra, modified []string) []string {
	if len(missing) > 0 {
		lines = append(lines, fmt.Sprintf("    missing %ss: %s", kind, strings.Join(missing, ", ")))
	}
	if len(extra) > 0 {
		lines = append(lines, fmt.Sprintf("    extra %ss: %s", kind, strings.Join(extra, ", ")))
	}
	if len(modified) > 0 {
		lines = append(lines, fmt.Sprintf("    modified %ss: %s", kind, strings.Join(modified, ", ")))
	}
	return lines
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
