package trace

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/algorand/avm-trace-dap/avm"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// Load parses a simulation response document and a sources descriptor
// document (both already read into memory — file I/O is the caller's
// concern, matching the out-of-scope boundary the adapter draws around
// disk access) into an Assets tree ready for the execution tree builder.
func Load(simulationJSON, sourcesJSON []byte) (*Assets, error) {
	programs, err := loadSources(sourcesJSON)
	if err != nil {
		return nil, err
	}

	var raw rawSimulateResponse
	if err := json.Unmarshal(simulationJSON, &raw); err != nil {
		return nil, wrapf(BadTrace, err, "decoding simulation response")
	}

	groups := make([]TxnGroup, 0, len(raw.TxnGroups))
	for gi, rg := range raw.TxnGroups {
		txns := make([]ExecTrace, 0, len(rg.TxnResults))
		for ti, rr := range rg.TxnResults {
			et, err := convertExecTrace(rr.ExecTrace)
			if err != nil {
				return nil, wrapf(BadTrace, err, "txn-groups[%d].txn-results[%d].exec-trace", gi, ti)
			}
			txns = append(txns, et)
		}
		groups = append(groups, TxnGroup{Txns: txns})
	}

	assets := &Assets{
		Groups:     groups,
		Programs:   programs,
		PrettyJSON: prettyPrint(simulationJSON),
	}

	if err := checkProgramCoverage(assets); err != nil {
		return nil, err
	}

	return assets, nil
}

func checkProgramCoverage(a *Assets) error {
	var walk func(events []OpcodeEvent) error
	walk = func(events []OpcodeEvent) error {
		for _, ev := range events {
			for _, inner := range ev.SpawnedInners {
				if err := checkExecTraceCoverage(a, inner); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, g := range a.Groups {
		for _, et := range g.Txns {
			if err := checkExecTraceCoverage(a, et); err != nil {
				return err
			}
			if err := walk(et.LogicSigTrace); err != nil {
				return err
			}
			if err := walk(et.ApprovalProgramTrace); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkExecTraceCoverage(a *Assets, et ExecTrace) error {
	if et.LogicSigHash != "" {
		if _, err := a.Program(et.LogicSigHash); err != nil {
			return err
		}
	}
	if et.ApprovalProgramHash != "" {
		if _, err := a.Program(et.ApprovalProgramHash); err != nil {
			return err
		}
	}
	return nil
}

func prettyPrint(simulationJSON []byte) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, simulationJSON, "", "  "); err != nil {
		return simulationJSON
	}
	return buf.Bytes()
}

// --- sources descriptor ---

type rawSourcesDescriptor struct {
	TxnGroupSources []rawProgramSource `json:"txn-group-sources"`
}

type rawProgramSource struct {
	Hash      string       `json:"hash"`
	Filename  string       `json:"filename"`
	Text      string       `json:"text"`
	SourceMap RawSourceMap `json:"source-map"`
}

func loadSources(sourcesJSON []byte) (map[digest.Digest]*ProgramSource, error) {
	var raw rawSourcesDescriptor
	if err := json.Unmarshal(sourcesJSON, &raw); err != nil {
		return nil, wrapf(BadTrace, err, "decoding sources descriptor")
	}

	programs := make(map[digest.Digest]*ProgramSource, len(raw.TxnGroupSources))
	for i, rs := range raw.TxnGroupSources {
		hashBytes, err := base64.StdEncoding.DecodeString(rs.Hash)
		if err != nil {
			return nil, wrapf(BadTrace, err, "txn-group-sources[%d].hash", i)
		}
		if len(hashBytes) != 32 {
			return nil, errorf(BadTrace, "txn-group-sources[%d].hash: want 32 bytes, got %d", i, len(hashBytes))
		}
		d := digest.NewDigestFromBytes(SHA512_256, hashBytes)
		programs[d] = &ProgramSource{
			Hash:      d,
			Filename:  rs.Filename,
			Text:      rs.Text,
			SourceMap: rs.SourceMap,
		}
	}
	return programs, nil
}

// --- simulation response ---

type rawSimulateResponse struct {
	TxnGroups []rawTxnGroup `json:"txn-groups"`
}

type rawTxnGroup struct {
	TxnResults []rawTxnResult `json:"txn-results"`
}

type rawTxnResult struct {
	ExecTrace *rawExecTrace `json:"exec-trace"`
}

type rawExecTrace struct {
	LogicSigHash         string           `json:"logic-sig-hash"`
	LogicSigTrace        []rawOpcodeEvent `json:"logic-sig-trace"`
	ApprovalProgramHash  string           `json:"approval-program-hash"`
	ApprovalProgramTrace []rawOpcodeEvent `json:"approval-program-trace"`
}

type rawOpcodeEvent struct {
	PC             int                  `json:"pc"`
	StackPopCount  int                  `json:"stack-pop-count"`
	StackAdditions []rawAvmValue        `json:"stack-additions"`
	ScratchChanges []rawScratchChange   `json:"scratch-changes"`
	StateChanges   []rawDelta           `json:"state-changes"`
	SpawnedInners  []rawExecTrace       `json:"spawned-inners"`
}

type rawAvmValue struct {
	Type  int             `json:"type"` // 1 = bytes, 2 = uint
	Bytes string          `json:"bytes"`
	Uint  json.RawMessage `json:"uint"`
}

type rawScratchChange struct {
	Slot     int         `json:"slot"`
	NewValue rawAvmValue `json:"new-value"`
}

type rawDelta struct {
	Kind    string      `json:"kind"`
	AppID   uint64      `json:"app-id"`
	Key     string      `json:"key"`
	Value   rawAvmValue `json:"value"`
	Account string      `json:"account"`
}

func convertExecTrace(rt *rawExecTrace) (ExecTrace, error) {
	if rt == nil {
		return ExecTrace{}, nil
	}

	var et ExecTrace
	var err error

	if rt.LogicSigHash != "" {
		if et.LogicSigHash, err = decodeHash(rt.LogicSigHash); err != nil {
			return ExecTrace{}, errors.Wrap(err, "logic-sig-hash")
		}
	}
	if et.LogicSigTrace, err = convertEvents(rt.LogicSigTrace); err != nil {
		return ExecTrace{}, errors.Wrap(err, "logic-sig-trace")
	}

	if rt.ApprovalProgramHash != "" {
		if et.ApprovalProgramHash, err = decodeHash(rt.ApprovalProgramHash); err != nil {
			return ExecTrace{}, errors.Wrap(err, "approval-program-hash")
		}
	}
	if et.ApprovalProgramTrace, err = convertEvents(rt.ApprovalProgramTrace); err != nil {
		return ExecTrace{}, errors.Wrap(err, "approval-program-trace")
	}

	return et, nil
}

func decodeHash(s string) (digest.Digest, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	if len(b) != 32 {
		return "", errors.Errorf("want 32 bytes, got %d", len(b))
	}
	return digest.NewDigestFromBytes(SHA512_256, b), nil
}

func convertEvents(raw []rawOpcodeEvent) ([]OpcodeEvent, error) {
	if raw == nil {
		return nil, nil
	}
	events := make([]OpcodeEvent, 0, len(raw))
	for i, re := range raw {
		ev, err := convertEvent(re)
		if err != nil {
			return nil, errors.Wrapf(err, "[%d]", i)
		}
		events = append(events, ev)
	}
	return events, nil
}

func convertEvent(re rawOpcodeEvent) (OpcodeEvent, error) {
	additions := make([]avm.Value, 0, len(re.StackAdditions))
	for i, rv := range re.StackAdditions {
		v, err := convertValue(rv)
		if err != nil {
			return OpcodeEvent{}, errors.Wrapf(err, "stack-additions[%d]", i)
		}
		additions = append(additions, v)
	}

	scratch := make([]ScratchChange, 0, len(re.ScratchChanges))
	for i, rs := range re.ScratchChanges {
		if rs.Slot < 0 || rs.Slot > 255 {
			return OpcodeEvent{}, errors.Errorf("scratch-changes[%d].slot out of range: %d", i, rs.Slot)
		}
		v, err := convertValue(rs.NewValue)
		if err != nil {
			return OpcodeEvent{}, errors.Wrapf(err, "scratch-changes[%d].new-value", i)
		}
		scratch = append(scratch, ScratchChange{Slot: uint8(rs.Slot), Value: v})
	}

	deltas := make([]Delta, 0, len(re.StateChanges))
	for i, rd := range re.StateChanges {
		d, err := convertDelta(rd)
		if err != nil {
			return OpcodeEvent{}, errors.Wrapf(err, "state-changes[%d]", i)
		}
		deltas = append(deltas, d)
	}

	inners := make([]ExecTrace, 0, len(re.SpawnedInners))
	for i := range re.SpawnedInners {
		inner, err := convertExecTrace(&re.SpawnedInners[i])
		if err != nil {
			return OpcodeEvent{}, errors.Wrapf(err, "spawned-inners[%d]", i)
		}
		inners = append(inners, inner)
	}

	return OpcodeEvent{
		PC:             re.PC,
		StackPopCount:  re.StackPopCount,
		StackAdditions: additions,
		ScratchChanges: scratch,
		StateChanges:   deltas,
		SpawnedInners:  inners,
	}, nil
}

func convertValue(rv rawAvmValue) (avm.Value, error) {
	switch rv.Type {
	case 1:
		b, err := base64.StdEncoding.DecodeString(rv.Bytes)
		if err != nil {
			return avm.Value{}, errors.Wrap(err, "bytes")
		}
		return avm.FromBytes(b), nil
	case 2:
		u, err := decodeUint(rv.Uint)
		if err != nil {
			return avm.Value{}, errors.Wrap(err, "uint")
		}
		return avm.FromUint(u), nil
	default:
		return avm.Value{}, errors.Errorf("unknown avm value type %d", rv.Type)
	}
}

// decodeUint accepts either a JSON number or a JSON string, since
// integer values at or above 2^53 arrive as strings to survive
// round-tripping through JSON-number-as-float64 decoders upstream.
func decodeUint(raw json.RawMessage) (uint64, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing")
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strconv.ParseUint(asString, 10, 64)
	}
	var asNumber uint64
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return 0, err
	}
	return asNumber, nil
}

func convertDelta(rd rawDelta) (Delta, error) {
	var kind DeltaKind
	switch rd.Kind {
	case "global-write":
		kind = GlobalWrite
	case "global-delete":
		kind = GlobalDelete
	case "local-write":
		kind = LocalWrite
	case "local-delete":
		kind = LocalDelete
	case "box-write":
		kind = BoxWrite
	case "box-delete":
		kind = BoxDelete
	default:
		return Delta{}, errors.Errorf("unknown delta kind %q", rd.Kind)
	}

	key, err := base64.StdEncoding.DecodeString(rd.Key)
	if err != nil {
		return Delta{}, errors.Wrap(err, "key")
	}

	d := Delta{Kind: kind, AppID: rd.AppID, Key: key}

	if kind == GlobalWrite || kind == LocalWrite || kind == BoxWrite {
		v, err := convertValue(rd.Value)
		if err != nil {
			return Delta{}, errors.Wrap(err, "value")
		}
		d.Value = v
	}

	if kind == LocalWrite || kind == LocalDelete {
		acct, err := base64.StdEncoding.DecodeString(rd.Account)
		if err != nil {
			return Delta{}, errors.Wrap(err, "account")
		}
		d.Account = acct
	}

	return d, nil
}
