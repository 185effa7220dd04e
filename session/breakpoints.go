package session

import (
	"sort"

	"github.com/algorand/avm-trace-dap/sourcemap"
	"github.com/algorand/avm-trace-dap/trace"
	"github.com/opencontainers/go-digest"
)

// SourceIndex merges every traced program's decoded source map into one
// lookup keyed by filename, so breakpoints (identified by filename) can
// be verified and located against whichever program(s) contributed
// source positions for that file. Built once at launch from
// trace.Assets and never mutated.
type SourceIndex struct {
	byHash     map[digest.Digest]*sourcemap.Index
	filenames  map[digest.Digest]string
	byFilename map[string][]digest.Digest
}

// BuildSourceIndex decodes every program's source map in assets.
func BuildSourceIndex(assets *trace.Assets) (*SourceIndex, error) {
	si := &SourceIndex{
		byHash:     make(map[digest.Digest]*sourcemap.Index, len(assets.Programs)),
		filenames:  make(map[digest.Digest]string, len(assets.Programs)),
		byFilename: make(map[string][]digest.Digest),
	}

	for hash, ps := range assets.Programs {
		idx, err := sourcemap.Build(ps.SourceMap)
		if err != nil {
			return nil, err
		}
		si.byHash[hash] = idx
		si.filenames[hash] = ps.Filename
		si.byFilename[ps.Filename] = append(si.byFilename[ps.Filename], hash)
	}

	return si, nil
}

// Locate resolves a (program, pc) pair to a source position. Programs
// are assumed single-file (file_id 0 in their own source map), so the
// returned filename is simply the program's filename.
func (si *SourceIndex) Locate(program digest.Digest, pc int) (filename string, line, col int, ok bool) {
	idx, exists := si.byHash[program]
	if !exists {
		return "", 0, 0, false
	}
	loc, found := idx.Lookup(pc)
	if !found {
		return "", 0, 0, false
	}
	return si.filenames[program], loc.Line, loc.Column, true
}

// Filename returns the source filename for a program hash.
func (si *SourceIndex) Filename(program digest.Digest) string {
	return si.filenames[program]
}

// LocationToPCs returns every (program, pc) whose source position is
// exactly (filename, line, col) across all programs that contributed to
// that file.
func (si *SourceIndex) LocationToPCs(filename string, line, col int) []ProgramPC {
	var out []ProgramPC
	for _, hash := range si.byFilename[filename] {
		for _, pc := range si.byHash[hash].LocationToPCs(0, line, col) {
			out = append(out, ProgramPC{Program: hash, PC: pc})
		}
	}
	return out
}

// ProgramPC pairs a program hash with a PC in that program.
type ProgramPC struct {
	Program digest.Digest
	PC      int
}

// BreakpointLocations merges BreakpointLocations across every program
// contributing to filename.
func (si *SourceIndex) BreakpointLocations(filename string, lineLo, lineHi int) []sourcemap.Location {
	type key struct{ line, col int }
	seen := make(map[key]bool)
	var out []sourcemap.Location

	for _, hash := range si.byFilename[filename] {
		for _, loc := range si.byHash[hash].BreakpointLocations(0, lineLo, lineHi) {
			k := key{loc.Line, loc.Column}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, loc)
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

// Breakpoint is a user-requested stop location with a stable id
// assigned on creation. Verified is recomputed whenever the underlying
// file's breakpoints are (re)set.
type Breakpoint struct {
	ID        int
	Filename  string
	Line      int
	Column    int
	HasColumn bool
	Verified  bool
}

// BreakpointSet owns every breakpoint currently active in the session,
// keyed by filename.
type BreakpointSet struct {
	index  *SourceIndex
	byFile map[string][]*Breakpoint
	nextID int
}

func NewBreakpointSet(index *SourceIndex) *BreakpointSet {
	return &BreakpointSet{index: index, byFile: make(map[string][]*Breakpoint)}
}

// Requested is one entry of a setBreakpoints request: a line and an
// optional column.
type Requested struct {
	Line      int
	Column    int
	HasColumn bool
}

// Set replaces every breakpoint for filename with the requested set,
// giving each a newly minted id (ids are never reused); it returns the
// new breakpoints in request order with Verified computed against the
// source index.
func (bs *BreakpointSet) Set(filename string, reqs []Requested) []*Breakpoint {
	out := make([]*Breakpoint, 0, len(reqs))
	for _, r := range reqs {
		bp := &Breakpoint{
			ID:        bs.nextID,
			Filename:  filename,
			Line:      r.Line,
			Column:    r.Column,
			HasColumn: r.HasColumn,
		}
		bs.nextID++
		bp.Verified = bs.verify(bp)
		out = append(out, bp)
	}
	bs.byFile[filename] = out
	return out
}

func (bs *BreakpointSet) verify(bp *Breakpoint) bool {
	col := 0
	if bp.HasColumn {
		col = bp.Column
	}
	return len(bs.index.LocationToPCs(bp.Filename, bp.Line, col)) > 0
}

// MatchAt reports whether any verified breakpoint matches the given
// (filename, line, col) — i.e. the current stop location should be
// promoted from "step" to "breakpoint". A breakpoint with a column must
// match it exactly; one set without a column matches any column on its
// line.
func (bs *BreakpointSet) MatchAt(filename string, line, col int) bool {
	for _, bp := range bs.byFile[filename] {
		if !bp.Verified || bp.Line != line {
			continue
		}
		if bp.HasColumn && bp.Column != col {
			continue
		}
		return true
	}
	return false
}

// MatchingIDs returns the ids of every verified breakpoint matching the
// given (filename, line, col) by the same rule as MatchAt, for
// annotating a Stopped event's HitBreakpointIds.
func (bs *BreakpointSet) MatchingIDs(filename string, line, col int) []int {
	var ids []int
	for _, bp := range bs.byFile[filename] {
		if !bp.Verified || bp.Line != line {
			continue
		}
		if bp.HasColumn && bp.Column != col {
			continue
		}
		ids = append(ids, bp.ID)
	}
	return ids
}

// All returns every breakpoint across every file, for diagnostics.
func (bs *BreakpointSet) All() []*Breakpoint {
	var out []*Breakpoint
	for _, list := range bs.byFile {
		out = append(out, list...)
	}
	return out
}
