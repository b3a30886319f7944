// Package diff computes the ordered set of structural differences between a
// declared schema and an introspected schema. Comparison is by normalized
// equality (see typenorm); output ordering is stable for identical inputs so
// dry-run output and logs are reproducible.
package diff

import (
	"fmt"
	"sort"

	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/typenorm"
)

// Kind identifies a schema change variant.
type Kind int

// Change kinds, ordered: additions before alterations before drops, so
// applying a change list never passes through a transient invalid state.
const (
	AddTable Kind = iota
	AddColumn
	AddIndex
	AlterColumn
	DropIndex
	DropColumn
	DropTable
)

// String returns the change kind name.
func (k Kind) String() string {
	switch k {
	case AddTable:
		return "add_table"
	case AddColumn:
		return "add_column"
	case AddIndex:
		return "add_index"
	case AlterColumn:
		return "alter_column"
	case DropIndex:
		return "drop_index"
	case DropColumn:
		return "drop_column"
	case DropTable:
		return "drop_table"
	default:
		return "unknown"
	}
}

// Change is one structural difference between declared and live schema.
// Exactly the payload fields relevant to the kind are set.
type Change struct {
	Kind  Kind
	Table *schema.TableDef // Owning (or affected) table; always set

	Column     *schema.ColumnDef // AddColumn, DropColumn, AlterColumn (declared side)
	LiveColumn *schema.ColumnDef // AlterColumn: the introspected definition
	Index      *schema.IndexDef  // AddIndex, DropIndex
}

// Destructive reports whether applying the change removes data-bearing
// structure. Destructive changes are gated by the manager.
func (c Change) Destructive() bool {
	switch c.Kind {
	case DropTable, DropColumn, DropIndex:
		return true
	default:
		return false
	}
}

// objectName returns the column/index name the change affects, for sorting
// and display. Empty for table-level changes.
func (c Change) objectName() string {
	switch {
	case c.Column != nil:
		return c.Column.Name
	case c.Index != nil:
		return c.Index.Name
	default:
		return ""
	}
}

// String renders the change for logs and dry-run output.
func (c Change) String() string {
	if name := c.objectName(); name != "" {
		return fmt.Sprintf("%s %s.%s", c.Kind, c.Table.Name, name)
	}
	return fmt.Sprintf("%s %s", c.Kind, c.Table.Name)
}

// Diff compares declared tables against introspected tables and returns the
// changes that bring the live schema to the declared one. Tables and columns
// present only in the live schema are reported as drop candidates; whether
// they are applied is the manager's decision, not the differ's.
func Diff(declared, introspected []*schema.TableDef) []Change {
	var changes []Change

	liveByName := make(map[string]*schema.TableDef, len(introspected))
	for _, t := range introspected {
		liveByName[t.Name] = t
	}
	declaredByName := make(map[string]*schema.TableDef, len(declared))
	for _, t := range declared {
		declaredByName[t.Name] = t
	}

	for _, want := range declared {
		live, exists := liveByName[want.Name]
		if !exists {
			changes = append(changes, Change{Kind: AddTable, Table: want})
			continue
		}
		changes = append(changes, diffColumns(want, live)...)
		changes = append(changes, diffIndexes(want, live)...)
	}

	// Drop candidates: live tables nothing declares.
	for _, live := range introspected {
		if _, exists := declaredByName[live.Name]; !exists {
			changes = append(changes, Change{Kind: DropTable, Table: live})
		}
	}

	sortChanges(changes)
	return changes
}

// diffColumns computes column-set differences by name, using normalized
// equality for the changed check.
func diffColumns(want, live *schema.TableDef) []Change {
	var changes []Change

	liveCols := make(map[string]*schema.ColumnDef, len(live.Columns))
	for _, col := range live.Columns {
		liveCols[col.Name] = col
	}
	wantCols := make(map[string]*schema.ColumnDef, len(want.Columns))
	for _, col := range want.Columns {
		wantCols[col.Name] = col
	}

	for _, col := range want.Columns {
		liveCol, exists := liveCols[col.Name]
		if !exists {
			changes = append(changes, Change{Kind: AddColumn, Table: want, Column: col})
			continue
		}
		if !typenorm.ColumnsEqual(typenorm.NormalizeColumn(col), liveCol) {
			changes = append(changes, Change{
				Kind:       AlterColumn,
				Table:      want,
				Column:     col,
				LiveColumn: liveCol,
			})
		}
	}

	for _, col := range live.Columns {
		if _, exists := wantCols[col.Name]; !exists {
			changes = append(changes, Change{Kind: DropColumn, Table: want, Column: col})
		}
	}

	return changes
}

// diffIndexes computes index-set differences by name, using normalized
// predicate and column-list equality for the changed check. A changed index
// is reported as a drop plus an add; indexes rebuild, they do not alter.
func diffIndexes(want, live *schema.TableDef) []Change {
	var changes []Change

	liveIdx := make(map[string]*schema.IndexDef, len(live.Indexes))
	for _, idx := range live.Indexes {
		liveIdx[idx.Name] = idx
	}
	wantIdx := make(map[string]*schema.IndexDef, len(want.Indexes))
	for _, idx := range want.Indexes {
		name := idx.Name
		if name == "" {
			name = idx.DefaultName(want.Name)
		}
		named := *idx
		named.Name = name
		wantIdx[name] = &named
	}

	for name, idx := range wantIdx {
		liveOne, exists := liveIdx[name]
		if !exists {
			changes = append(changes, Change{Kind: AddIndex, Table: want, Index: idx})
			continue
		}
		if !typenorm.IndexesEqual(idx, liveOne) {
			changes = append(changes,
				Change{Kind: DropIndex, Table: want, Index: liveOne},
				Change{Kind: AddIndex, Table: want, Index: idx})
		}
	}

	for name, idx := range liveIdx {
		if _, exists := wantIdx[name]; !exists {
			changes = append(changes, Change{Kind: DropIndex, Table: want, Index: idx})
		}
	}

	return changes
}

// sortChanges orders changes deterministically: additions before alterations
// before drops, then table name, then column/index name. One exception: an
// index rebuild (drop + add under the same name) keeps its drop immediately
// before its add, since the new index cannot be created while the old name
// still exists.
func sortChanges(changes []Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].Kind != changes[j].Kind {
			return changes[i].Kind < changes[j].Kind
		}
		if changes[i].Table.Name != changes[j].Table.Name {
			return changes[i].Table.Name < changes[j].Table.Name
		}
		return changes[i].objectName() < changes[j].objectName()
	})

	// Hoist rebuild drops in front of their adds.
	for i, c := range changes {
		if c.Kind != AddIndex {
			continue
		}
		for j := i + 1; j < len(changes); j++ {
			d := changes[j]
			if d.Kind == DropIndex && d.Table.Name == c.Table.Name && d.objectName() == c.objectName() {
				copy(changes[i+1:j+1], changes[i:j])
				changes[i] = d
				break
			}
		}
	}
}

// Summary counts changes by kind for status output.
type Summary struct {
	TablesToAdd    int
	TablesToDrop   int
	ColumnsToAdd   int
	ColumnsToDrop  int
	ColumnsToAlter int
	IndexesToAdd   int
	IndexesToDrop  int
}

// Summarize returns per-kind counts for a change list.
func Summarize(changes []Change) Summary {
	var s Summary
	for _, c := range changes {
		switch c.Kind {
		case AddTable:
			s.TablesToAdd++
		case DropTable:
			s.TablesToDrop++
		case AddColumn:
			s.ColumnsToAdd++
		case DropColumn:
			s.ColumnsToDrop++
		case AlterColumn:
			s.ColumnsToAlter++
		case AddIndex:
			s.IndexesToAdd++
		case DropIndex:
			s.IndexesToDrop++
		}
	}
	return s
}
