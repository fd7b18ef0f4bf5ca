package snapshots

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Input and output keys of the pc_avg_exprs structure.
const (
	componentNameKey = "pc_name"
	detailsKey       = "details"
	groupsKey        = "groups"
	subgroupKey      = "subgroup"
	valueKey         = "value"

	// GeneKey names the gene identifier in both the input details and the pivot rows.
	GeneKey = "ensembl"
)

// Triple is one long-format (gene, subgroup, value) observation.
type Triple struct {
	GeneID   string
	Subgroup string
	Value    any
}

// PivotRow is one gene row of a pivot table: the gene id plus one value per
// subgroup observed for that gene. Subgroups keep first-seen order.
type PivotRow struct {
	GeneID  string
	columns []string
	values  map[string]any
}

// Columns returns the subgroups present in the row, in first-seen order.
func (r PivotRow) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Get returns the value recorded for subgroup.
func (r PivotRow) Get(subgroup string) (any, bool) {
	v, ok := r.values[subgroup]
	return v, ok
}

// MarshalJSON renders {"ensembl": <gene>, <subgroup>: <value>, ...} with stable key order.
// A subgroup literally named like the gene key is skipped so the object stays well formed.
func (r PivotRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeMember(&buf, GeneKey, r.GeneID); err != nil {
		return nil, err
	}
	for _, col := range r.columns {
		if col == GeneKey {
			continue
		}
		buf.WriteByte(',')
		if err := writeMember(&buf, col, r.values[col]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// PivotTable is the ordered list of gene rows for one component.
type PivotTable []PivotRow

// MarshalJSON renders an empty table as [] rather than null.
func (t PivotTable) MarshalJSON() ([]byte, error) {
	if len(t) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal([]PivotRow(t))
}

// ComponentPivots maps component names to pivot tables, preserving component input order.
type ComponentPivots struct {
	names  []string
	tables map[string]PivotTable
}

// Names returns component names in input order.
func (p ComponentPivots) Names() []string {
	return append([]string(nil), p.names...)
}

// Len returns the number of components.
func (p ComponentPivots) Len() int { return len(p.names) }

// Table returns the pivot table for a component.
func (p ComponentPivots) Table(name string) (PivotTable, bool) {
	t, ok := p.tables[name]
	return t, ok
}

func (p *ComponentPivots) set(name string, table PivotTable) bool {
	if p.tables == nil {
		p.tables = make(map[string]PivotTable)
	}
	_, existed := p.tables[name]
	if !existed {
		p.names = append(p.names, name)
	}
	p.tables[name] = table
	return existed
}

// MarshalJSON renders the components as one JSON object in input order.
func (p ComponentPivots) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range p.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, name, p.tables[name]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// Flatten reshapes decoded pc_avg_exprs into one pivot table per component.
// Absent, raw or empty input yields an empty mapping. Entries that are not
// well formed are skipped; the returned notes describe what was skipped.
func Flatten(v DecodedValue) (ComponentPivots, []string) {
	var pivots ComponentPivots
	pivots.tables = make(map[string]PivotTable)
	if !v.IsStructured() {
		return pivots, nil
	}
	entries, ok := asSlice(v.Value())
	if !ok {
		return pivots, []string{"pc_avg_exprs is not a sequence"}
	}

	var notes []string
	for i, raw := range entries {
		entry, ok := asMap(raw)
		if !ok {
			notes = append(notes, fmt.Sprintf("component %d is not an object", i))
			continue
		}
		name, ok := asString(entry[componentNameKey])
		if !ok {
			notes = append(notes, fmt.Sprintf("component %d has no %s", i, componentNameKey))
			continue
		}
		triples, skipped := LongFormat(entry[detailsKey])
		for _, s := range skipped {
			notes = append(notes, fmt.Sprintf("component %s: %s", name, s))
		}
		if replaced := pivots.set(name, Pivot(triples)); replaced {
			notes = append(notes, fmt.Sprintf("component %s repeated; later entry kept", name))
		}
	}
	return pivots, notes
}

// LongFormat walks details then groups in order and emits (gene, subgroup, value) triples.
func LongFormat(details any) ([]Triple, []string) {
	genes, ok := asSlice(details)
	if !ok {
		if details == nil {
			return nil, nil
		}
		return nil, []string{"details is not a sequence"}
	}

	var (
		out   []Triple
		notes []string
	)
	for i, rawGene := range genes {
		gene, ok := asMap(rawGene)
		if !ok {
			notes = append(notes, fmt.Sprintf("detail %d is not an object", i))
			continue
		}
		geneID, ok := asString(gene[GeneKey])
		if !ok {
			notes = append(notes, fmt.Sprintf("detail %d has no %s", i, GeneKey))
			continue
		}
		groups, ok := asSlice(gene[groupsKey])
		if !ok {
			if gene[groupsKey] == nil {
				notes = append(notes, fmt.Sprintf("gene %s has no %s", geneID, groupsKey))
			} else {
				notes = append(notes, fmt.Sprintf("gene %s %s is not a sequence", geneID, groupsKey))
			}
			continue
		}
		for j, rawGroup := range groups {
			group, ok := asMap(rawGroup)
			if !ok {
				notes = append(notes, fmt.Sprintf("gene %s group %d is not an object", geneID, j))
				continue
			}
			subgroup, ok := asString(group[subgroupKey])
			if !ok {
				notes = append(notes, fmt.Sprintf("gene %s group %d has no %s", geneID, j, subgroupKey))
				continue
			}
			if subgroup == GeneKey {
				notes = append(notes, fmt.Sprintf("gene %s subgroup %s clashes with the gene key; omitted from the row", geneID, subgroup))
			}
			out = append(out, Triple{GeneID: geneID, Subgroup: subgroup, Value: group[valueKey]})
		}
	}
	return out, notes
}

// Pivot groups triples into rows keyed by gene. Rows follow the first appearance
// of each gene, columns the first appearance of each subgroup in the component.
// A repeated (gene, subgroup) pair keeps the last value.
func Pivot(triples []Triple) PivotTable {
	if len(triples) == 0 {
		return PivotTable{}
	}

	subgroupRank := make(map[string]int)
	rowIndex := make(map[string]int)
	var rows []PivotRow
	for _, t := range triples {
		if _, ok := subgroupRank[t.Subgroup]; !ok {
			subgroupRank[t.Subgroup] = len(subgroupRank)
		}
		idx, ok := rowIndex[t.GeneID]
		if !ok {
			idx = len(rows)
			rowIndex[t.GeneID] = idx
			rows = append(rows, PivotRow{GeneID: t.GeneID, values: make(map[string]any)})
		}
		row := &rows[idx]
		if _, seen := row.values[t.Subgroup]; !seen {
			row.columns = insertByRank(row.columns, t.Subgroup, subgroupRank)
		}
		row.values[t.Subgroup] = t.Value
	}
	return PivotTable(rows)
}

// insertByRank keeps a row's columns in the component-wide first-seen order.
func insertByRank(cols []string, col string, rank map[string]int) []string {
	r := rank[col]
	i := len(cols)
	for i > 0 && rank[cols[i-1]] > r {
		i--
	}
	cols = append(cols, "")
	copy(cols[i+1:], cols[i:])
	cols[i] = col
	return cols
}

// Unpivot turns a pivot table back into long-format triples, row by row.
func Unpivot(table PivotTable) []Triple {
	var out []Triple
	for _, row := range table {
		for _, col := range row.columns {
			out = append(out, Triple{GeneID: row.GeneID, Subgroup: col, Value: row.values[col]})
		}
	}
	return out
}
