// Package dataset combines a test's own data table with the tables of its
// precondition records into the single table the test iterates over.
//
// Tables whose row count matches the primary table are aligned by position.
// Tables with a different row count are applied combinatorially: the smaller
// side's first row is broadcast to every row of the larger side as a shared
// default, and each further row of the smaller side multiplies the larger side
// into a new block of rows. Merged rows carry no provenance.
package dataset

import (
	"github.com/steveyegge/defects/internal/table"
)

// Merge combines primary with others. Tables with the same row count as
// primary are merged position-wise (first writer wins per column, in the order
// primary, then others as given); the remaining tables are then applied one at
// a time with ApplyOne.
func Merge(primary table.Table, others ...table.Table) table.Table {
	if len(others) == 0 {
		return primary
	}

	var sameCount, diffCount []table.Table
	for _, o := range others {
		if o.Len() == primary.Len() {
			sameCount = append(sameCount, o)
		} else {
			diffCount = append(diffCount, o)
		}
	}

	base := alignByPosition(primary, sameCount)
	for _, d := range diffCount {
		base = ApplyOne(base, d)
	}
	return base
}

// alignByPosition unions row i of every table into output row i. A column is
// only taken from a later table when no earlier table supplied it.
func alignByPosition(primary table.Table, sameCount []table.Table) table.Table {
	out := table.Table{Columns: append([]string(nil), primary.Columns...)}
	cols := newColumnSet(out.Columns)
	for _, t := range sameCount {
		cols.addAll(&out, t.Columns)
	}

	out.Rows = make([]table.Row, len(primary.Rows))
	for i := range primary.Rows {
		row := primary.Rows[i].Clone()
		for _, t := range sameCount {
			fill(row, t.Rows[i], t.Columns)
		}
		out.Rows[i] = row
	}
	return out
}

// ApplyOne applies d to base. The side with more rows is the target (ties go
// to base); the other side is the source. Every target row first receives the
// source's first row as defaults (broadcast). Then, for each remaining source
// row, a copy of every original target row is emitted with that source row's
// columns added (expansion). Existing columns are never overwritten.
//
// The result holds |target| broadcast rows followed by
// |target| * (|source|-1) expansion rows. A single-row source is a pure
// broadcast.
func ApplyOne(base, d table.Table) table.Table {
	target, source := base, d
	if d.Len() > base.Len() {
		target, source = d, base
	}

	out := table.Table{Columns: append([]string(nil), target.Columns...)}
	cols := newColumnSet(out.Columns)
	cols.addAll(&out, source.Columns)

	if source.Len() == 0 {
		out.Rows = cloneRows(target.Rows)
		return out
	}

	out.Rows = make([]table.Row, 0, target.Len()*source.Len())
	for _, r := range target.Rows {
		row := r.Clone()
		fill(row, source.Rows[0], source.Columns)
		out.Rows = append(out.Rows, row)
	}
	for _, s := range source.Rows[1:] {
		for _, r := range target.Rows {
			row := r.Clone()
			fill(row, s, source.Columns)
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// fill copies the cells of src into dst for every declared column dst lacks.
// A source row missing a declared cell contributes nothing for it.
func fill(dst, src table.Row, columns []string) {
	for _, col := range columns {
		if _, exists := dst[col]; exists {
			continue
		}
		if v, ok := src[col]; ok {
			dst[col] = v
		}
	}
}

func cloneRows(rows []table.Row) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

type columnSet map[string]bool

func newColumnSet(cols []string) columnSet {
	s := make(columnSet, len(cols))
	for _, c := range cols {
		s[c] = true
	}
	return s
}

func (s columnSet) addAll(t *table.Table, cols []string) {
	for _, c := range cols {
		if !s[c] {
			s[c] = true
			t.Columns = append(t.Columns, c)
		}
	}
}
