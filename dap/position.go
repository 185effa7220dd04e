package dap

import (
	"bytes"
	"encoding/json"
)

type jsonFrame struct {
	isArray    bool
	index      int
	expectKey  bool
	pendingKey string
}

// locateTxnPosition finds the 1-based (line, column) in pretty — a
// json.MarshalIndent'd copy of the simulate response — where the
// groupIdx'th element of the top-level "txn-groups" array's txnIdx'th
// "txn-results" entry begins. Used to give transaction stack frames a
// source position in the synthetic pseudo-file, per the presentation
// rule for non-program frames.
func locateTxnPosition(pretty []byte, groupIdx, txnIdx int) (line, col int, ok bool) {
	return locatePath(pretty, []any{"txn-groups", groupIdx, "txn-results", txnIdx})
}

// locateGroupPosition is locateTxnPosition's analogue for a
// TransactionGroup frame itself: the position of txn-groups[groupIdx],
// rather than one of its txn-results entries.
func locateGroupPosition(pretty []byte, groupIdx int) (line, col int, ok bool) {
	return locatePath(pretty, []any{"txn-groups", groupIdx})
}

// locatePath finds the 1-based (line, column) where the value at the
// given path (a sequence of object keys and array indices) begins in
// pretty.
func locatePath(pretty []byte, target []any) (line, col int, ok bool) {
	var frames []*jsonFrame
	var curPath []any

	matchesTarget := func() bool {
		if len(curPath) != len(target) {
			return false
		}
		for i, t := range target {
			switch tv := t.(type) {
			case string:
				s, isStr := curPath[i].(string)
				if !isStr || s != tv {
					return false
				}
			case int:
				n, isInt := curPath[i].(int)
				if !isInt || n != tv {
					return false
				}
			}
		}
		return true
	}

	// consumeValue records that the innermost frame's current value
	// (whatever kind) has just been fully read, advancing its array
	// index or flipping it back to expecting a key.
	consumeValue := func() {
		if len(frames) == 0 {
			return
		}
		top := frames[len(frames)-1]
		if top.isArray {
			top.index++
		} else {
			top.expectKey = true
		}
	}

	dec := json.NewDecoder(bytes.NewReader(pretty))
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, 0, false
		}

		if delim, isDelim := tok.(json.Delim); isDelim {
			switch delim {
			case '{', '[':
				if len(frames) > 0 {
					parent := frames[len(frames)-1]
					var pos any
					if parent.isArray {
						pos = parent.index
					} else {
						pos = parent.pendingKey
					}
					curPath = append(curPath, pos)
				}

				frames = append(frames, &jsonFrame{isArray: delim == '[', expectKey: delim == '{'})

				if matchesTarget() {
					// the decoder has just consumed the one-byte delimiter
					return lineColAt(pretty, dec.InputOffset()-1)
				}
			case '}', ']':
				if len(frames) == 0 {
					return 0, 0, false
				}
				frames = frames[:len(frames)-1]
				if len(curPath) > 0 {
					curPath = curPath[:len(curPath)-1]
				}
				consumeValue()
			}
			continue
		}

		if len(frames) == 0 {
			continue
		}
		top := frames[len(frames)-1]
		if !top.isArray && top.expectKey {
			if s, isStr := tok.(string); isStr {
				top.pendingKey = s
				top.expectKey = false
				continue
			}
		}
		consumeValue()
	}
}

func lineColAt(data []byte, offset int64) (line, col int, ok bool) {
	if offset < 0 || offset > int64(len(data)) {
		return 0, 0, false
	}
	prefix := data[:offset]
	line = bytes.Count(prefix, []byte{'\n'}) + 1
	if idx := bytes.LastIndexByte(prefix, '\n'); idx >= 0 {
		col = len(prefix) - idx
	} else {
		col = len(prefix) + 1
	}
	return line, col, true
}
