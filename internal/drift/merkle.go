// Package drift detects schema drift between the declared tables and the
// live database using hierarchical merkle hashing: one hash per column and
// index, one per table, one root per schema. Matching roots prove the whole
// schema matches without walking the definitions.
package drift

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/cbergoon/merkletree"

	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/terr"
	"github.com/temporadb/tempora/internal/typenorm"
)

// SchemaHash is the merkle fingerprint of a schema.
type SchemaHash struct {
	Root   string                // Root hash of the entire schema
	Tables map[string]*TableHash // Per-table hashes for drill-down
}

// TableHash is the fingerprint of a single table.
type TableHash struct {
	Name    string
	Hash    string
	Columns map[string]string // Column name -> hash
	Indexes map[string]string // Index name -> hash
}

// tableContent implements merkletree.Content for table-level hashing.
type tableContent struct {
	name string
	hash string
}

func (t tableContent) CalculateHash() ([]byte, error) {
	h := sha256.Sum256([]byte(t.hash))
	return h[:], nil
}

func (t tableContent) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(tableContent)
	if !ok {
		return false, nil
	}
	return t.hash == o.hash, nil
}

// ComputeSchemaHash computes the merkle fingerprint for a set of tables.
// Column and index properties are normalized before hashing, so two schemas
// that differ only in type spelling or predicate parenthesization hash
// identically.
func ComputeSchemaHash(tables []*schema.TableDef) (*SchemaHash, error) {
	result := &SchemaHash{
		Tables: make(map[string]*TableHash, len(tables)),
	}

	if len(tables) == 0 {
		result.Root = emptyHash()
		return result, nil
	}

	sorted := make([]*schema.TableDef, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var contents []merkletree.Content
	for _, t := range sorted {
		th := computeTableHash(t)
		result.Tables[t.Name] = th
		contents = append(contents, tableContent{name: t.Name, hash: th.Hash})
	}

	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, terr.Wrap(terr.ErrIntrospection, err, "failed to build merkle tree")
	}
	result.Root = hex.EncodeToString(tree.MerkleRoot())
	return result, nil
}

func computeTableHash(t *schema.TableDef) *TableHash {
	result := &TableHash{
		Name:    t.Name,
		Columns: make(map[string]string, len(t.Columns)),
		Indexes: make(map[string]string, len(t.Indexes)),
	}

	names := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		names = append(names, col.Name)
	}
	sort.Strings(names)

	var columnHashes []string
	for _, name := range names {
		h := computeColumnHash(t.GetColumn(name))
		result.Columns[name] = h
		columnHashes = append(columnHashes, name+":"+h)
	}

	idxNames := make([]string, 0, len(t.Indexes))
	byName := make(map[string]*schema.IndexDef, len(t.Indexes))
	for _, idx := range t.Indexes {
		name := idx.Name
		if name == "" {
			name = idx.DefaultName(t.Name)
		}
		idxNames = append(idxNames, name)
		byName[name] = idx
	}
	sort.Strings(idxNames)

	var indexHashes []string
	for _, name := range idxNames {
		h := computeIndexHash(byName[name])
		result.Indexes[name] = h
		indexHashes = append(indexHashes, name+":"+h)
	}

	result.Hash = hashString(fmt.Sprintf("table:%s|columns:[%s]|indexes:[%s]",
		t.Name,
		strings.Join(columnHashes, ","),
		strings.Join(indexHashes, ","),
	))
	return result
}

// computeColumnHash hashes the normalized column properties: the same
// properties the differ compares.
func computeColumnHash(col *schema.ColumnDef) string {
	n := typenorm.NormalizeColumn(col)
	return hashString(fmt.Sprintf("name:%s|type:%s|nullable:%v|default:%s|pk:%v",
		n.Name,
		n.NativeType,
		n.Nullable,
		n.Default,
		n.PrimaryKey,
	))
}

func computeIndexHash(idx *schema.IndexDef) string {
	data := fmt.Sprintf("columns:[%s]|unique:%v",
		strings.Join(idx.Columns, ","),
		idx.Unique,
	)
	if pred := typenorm.NormalizePredicate(idx.Where); pred != "" {
		data += "|where:" + pred
	}
	return hashString(data)
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func emptyHash() string {
	return hashString("empty_schema")
}

// HashComparison is the result of comparing two schema fingerprints.
type HashComparison struct {
	Match         bool
	ExpectedRoot  string
	ActualRoot    string
	TableDiffs    map[string]*TableDiff // Tables present in both but differing
	MissingTables []string              // Declared but absent from the database
	ExtraTables   []string              // In the database but not declared
}

// TableDiff lists the differing objects within one table.
type TableDiff struct {
	Name            string
	MissingColumns  []string
	ExtraColumns    []string
	ModifiedColumns []string
	MissingIndexes  []string
	ExtraIndexes    []string
	ModifiedIndexes []string
}

// HasDifferences reports whether the table diff is non-empty.
func (d *TableDiff) HasDifferences() bool {
	return len(d.MissingColumns) > 0 ||
		len(d.ExtraColumns) > 0 ||
		len(d.ModifiedColumns) > 0 ||
		len(d.MissingIndexes) > 0 ||
		len(d.ExtraIndexes) > 0 ||
		len(d.ModifiedIndexes) > 0
}

// CompareHashes compares two fingerprints. A matching root short-circuits;
// otherwise tables are drilled into per column and index hash.
func CompareHashes(expected, actual *SchemaHash) *HashComparison {
	result := &HashComparison{
		Match:         expected.Root == actual.Root,
		ExpectedRoot:  expected.Root,
		ActualRoot:    actual.Root,
		TableDiffs:    make(map[string]*TableDiff),
		MissingTables: []string{},
		ExtraTables:   []string{},
	}
	if result.Match {
		return result
	}

	for name := range expected.Tables {
		if _, exists := actual.Tables[name]; !exists {
			result.MissingTables = append(result.MissingTables, name)
		}
	}
	sort.Strings(result.MissingTables)

	for name := range actual.Tables {
		if _, exists := expected.Tables[name]; !exists {
			result.ExtraTables = append(result.ExtraTables, name)
		}
	}
	sort.Strings(result.ExtraTables)

	for name, want := range expected.Tables {
		got, exists := actual.Tables[name]
		if !exists || want.Hash == got.Hash {
			continue
		}
		result.TableDiffs[name] = compareTableHashes(want, got)
	}
	return result
}

func compareTableHashes(expected, actual *TableHash) *TableDiff {
	diff := &TableDiff{Name: expected.Name}

	for name, hash := range expected.Columns {
		actualHash, exists := actual.Columns[name]
		switch {
		case !exists:
			diff.MissingColumns = append(diff.MissingColumns, name)
		case hash != actualHash:
			diff.ModifiedColumns = append(diff.ModifiedColumns, name)
		}
	}
	for name := range actual.Columns {
		if _, exists := expected.Columns[name]; !exists {
			diff.ExtraColumns = append(diff.ExtraColumns, name)
		}
	}

	for name, hash := range expected.Indexes {
		actualHash, exists := actual.Indexes[name]
		switch {
		case !exists:
			diff.MissingIndexes = append(diff.MissingIndexes, name)
		case hash != actualHash:
			diff.ModifiedIndexes = append(diff.ModifiedIndexes, name)
		}
	}
	for name := range actual.Indexes {
		if _, exists := expected.Indexes[name]; !exists {
			diff.ExtraIndexes = append(diff.ExtraIndexes, name)
		}
	}

	sort.Strings(diff.MissingColumns)
	sort.Strings(diff.ExtraColumns)
	sort.Strings(diff.ModifiedColumns)
	sort.Strings(diff.MissingIndexes)
	sort.Strings(diff.ExtraIndexes)
	sort.Strings(diff.ModifiedIndexes)
	return diff
}
