// Package sourcemap decodes the PC-keyed Source Map v3 style mappings
// attached to a TEAL program and builds the two lookup directions the
// debug adapter needs: PC to source location, and source location to
// PC.
package sourcemap

import (
	"sort"

	"github.com/algorand/avm-trace-dap/trace"
	"github.com/pkg/errors"
)

// Location is a (file, line, column) position in one of a program's
// source files. Line and column are exactly as recorded in the source
// map; no offset is added when they are presented over DAP.
type Location struct {
	FileID int
	Line   int
	Column int
}

type locEntry struct {
	pc  int
	loc Location
}

type fileLine struct {
	fileID int
	line   int
}

type colPC struct {
	column int
	pc     int
}

// Index is the decoded, queryable form of one program's source map.
// Built once and read-only thereafter.
type Index struct {
	Sources []string

	pcToLoc           map[int]Location
	fileLineToEntries map[fileLine][]colPC
}

// Build decodes raw's mappings string and indexes the resulting
// (pc, file_id, line, column) tuples in both directions.
func Build(raw trace.RawSourceMap) (*Index, error) {
	entries, err := decodeMappings(raw.Mappings)
	if err != nil {
		return nil, errors.Wrap(err, "decoding source map mappings")
	}

	idx := &Index{
		Sources:           raw.Sources,
		pcToLoc:           make(map[int]Location, len(entries)),
		fileLineToEntries: make(map[fileLine][]colPC),
	}

	for _, e := range entries {
		idx.pcToLoc[e.pc] = e.loc
		fl := fileLine{fileID: e.loc.FileID, line: e.loc.Line}
		idx.fileLineToEntries[fl] = append(idx.fileLineToEntries[fl], colPC{column: e.loc.Column, pc: e.pc})
	}
	for fl := range idx.fileLineToEntries {
		cols := idx.fileLineToEntries[fl]
		sort.Slice(cols, func(i, j int) bool {
			if cols[i].column != cols[j].column {
				return cols[i].column < cols[j].column
			}
			return cols[i].pc < cols[j].pc
		})
	}

	return idx, nil
}

// decodeMappings decodes a mappings string into an ordered list of
// (pc, file_id, line, column) tuples. Fields are 4-wide VLQ groups
// (delta-pc, delta-file_id, delta-line, delta-column) whose values
// accumulate across the entire string; ';' and ',' both separate
// groups (there is no generated-line axis to reset on, PC already
// plays that role).
func decodeMappings(mappings string) ([]locEntry, error) {
	if mappings == "" {
		return nil, nil
	}

	var entries []locEntry
	pc, fileID, line, column := 0, 0, 0, 0

	pos := 0
	for pos < len(mappings) {
		if mappings[pos] == ';' || mappings[pos] == ',' {
			pos++
			continue
		}

		dPC, next, err := decodeVLQ(mappings, pos)
		if err != nil {
			return nil, errors.Wrapf(err, "pc field at offset %d", pos)
		}
		pos = next

		dFileID, next, err := decodeVLQ(mappings, pos)
		if err != nil {
			return nil, errors.Wrapf(err, "file field at offset %d", pos)
		}
		pos = next

		dLine, next, err := decodeVLQ(mappings, pos)
		if err != nil {
			return nil, errors.Wrapf(err, "line field at offset %d", pos)
		}
		pos = next

		dColumn, next, err := decodeVLQ(mappings, pos)
		if err != nil {
			return nil, errors.Wrapf(err, "column field at offset %d", pos)
		}
		pos = next

		pc += dPC
		fileID += dFileID
		line += dLine
		column += dColumn

		entries = append(entries, locEntry{pc: pc, loc: Location{FileID: fileID, Line: line, Column: column}})
	}

	return entries, nil
}

// Lookup implements pc_to_loc.
func (idx *Index) Lookup(pc int) (Location, bool) {
	loc, ok := idx.pcToLoc[pc]
	return loc, ok
}

// BreakpointLocations implements the breakpointLocationsRequest backing
// query: the union of (line, column) pairs across [lineLo, lineHi] in
// file fileID, deduplicated and sorted ascending by (line, column).
func (idx *Index) BreakpointLocations(fileID, lineLo, lineHi int) []Location {
	type key struct{ line, col int }
	seen := make(map[key]bool)
	var out []Location

	for line := lineLo; line <= lineHi; line++ {
		fl := fileLine{fileID: fileID, line: line}
		for _, cp := range idx.fileLineToEntries[fl] {
			k := key{line, cp.column}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, Location{FileID: fileID, Line: line, Column: cp.column})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// LocationToPCs implements location_to_pcs: the set of PCs (sorted) that
// map to exactly (fileID, line, col). Empty means the location has no
// PC mapping — a breakpoint set there is unverified.
func (idx *Index) LocationToPCs(fileID, line, col int) []int {
	fl := fileLine{fileID: fileID, line: line}
	var pcs []int
	for _, cp := range idx.fileLineToEntries[fl] {
		if cp.column == col {
			pcs = append(pcs, cp.pc)
		}
	}
	sort.Ints(pcs)
	return pcs
}
