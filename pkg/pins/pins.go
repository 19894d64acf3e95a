// Package pins implements the PinsStore component of spec.md §4.5: the
// persistent, canonically-serialized record of the Resolver's previous
// output, read and rewritten atomically on each successful resolution.
// It plays the role golang-dep's lock.go Lock type plays for Gopkg.lock,
// generalized to spec.md's richer resolved-state shape (version, branch,
// revision, or local package) and to JSON instead of TOML per spec.md §6.
package pins

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/semver"
)

// StateKind discriminates the four ResolvedState forms named in spec.md §3.
type StateKind uint8

const (
	StateVersion StateKind = iota
	StateBranch
	StateRevision
	StateLocal
)

// ResolvedState is the pinned outcome for one identity.
type ResolvedState struct {
	Kind     StateKind
	Version  semver.Version
	Branch   string
	Revision string // set for StateVersion and StateBranch too (the backing commit)
}

// Pin is one persisted record: {identity, location, state}, per spec.md §3,
// plus the original (pre-mirror) location retained for diagnostics, per
// SPEC_FULL.md's mirror-aware pin keys supplement.
type Pin struct {
	Identity         identity.Identity
	Location         string
	OriginalLocation string
	State            ResolvedState
}

// Schema is the pin-file's integer version field (spec.md §6).
const Schema = 2

// Store is the in-memory, ordered PinsStore: identity -> Pin.
type Store struct {
	pins     map[string]Pin
	unknown  map[string]json.RawMessage // unknown top-level fields preserved on round-trip
}

// New returns an empty store.
func New() *Store {
	return &Store{pins: make(map[string]Pin)}
}

// Set records (or replaces) the pin for an identity.
func (s *Store) Set(p Pin) {
	s.pins[p.Identity.String()] = p
}

// Get returns the pin for an identity, if any.
func (s *Store) Get(id identity.Identity) (Pin, bool) {
	p, ok := s.pins[id.String()]
	return p, ok
}

// Remove drops a pin.
func (s *Store) Remove(id identity.Identity) {
	delete(s.pins, id.String())
}

// All returns every pin, sorted by identity for a deterministic iteration
// order (the pin file's own key order is separately enforced at encode
// time).
func (s *Store) All() []Pin {
	out := make([]Pin, 0, len(s.pins))
	for _, p := range s.pins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity.String() < out[j].Identity.String() })
	return out
}

// Reset empties the store, per spec.md §4.5's `reset`/`unpinAll` operations.
// The distinction between the two operations (delete the file vs. keep an
// empty file) is a filesystem-layer concern handled by the caller; Reset
// always just empties the in-memory map.
func (s *Store) Reset() {
	s.pins = make(map[string]Pin)
}

// --- wire format -----------------------------------------------------

type wireFile struct {
	Version int        `json:"version"`
	Pins    []wirePin  `json:"pins"`
}

type wirePin struct {
	Identity string          `json:"identity"`
	Kind     string          `json:"kind"`
	Location string          `json:"location"`
	Original string          `json:"originalLocation,omitempty"`
	State    json.RawMessage `json:"state"`
}

type wireVersionState struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
}
type wireBranchState struct {
	Branch   string `json:"branch"`
	Revision string `json:"revision"`
}
type wireRevisionState struct {
	Revision string `json:"revision"`
}

// Decode parses a pin file. Unknown fields at the top level are preserved
// for round-trip per spec.md §4.5 ("unknown fields are preserved").
func Decode(r io.Reader) (*Store, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("pins: decode: %w", err)
	}

	var wf wireFile
	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &wf.Version); err != nil {
			return nil, fmt.Errorf("pins: invalid version field: %w", err)
		}
	}
	if p, ok := raw["pins"]; ok {
		if err := json.Unmarshal(p, &wf.Pins); err != nil {
			return nil, fmt.Errorf("pins: invalid pins field: %w", err)
		}
	}

	s := New()
	s.unknown = make(map[string]json.RawMessage)
	for k, v := range raw {
		if k == "version" || k == "pins" {
			continue
		}
		s.unknown[k] = v
	}

	for _, wp := range wf.Pins {
		state, err := decodeState(wp.Kind, wp.State)
		if err != nil {
			return nil, fmt.Errorf("pins: %s: %w", wp.Identity, err)
		}
		s.Set(Pin{
			Identity:         identity.Of(wp.Location),
			Location:         wp.Location,
			OriginalLocation: wp.Original,
			State:            state,
		})
	}

	return s, nil
}

func decodeState(kind string, raw json.RawMessage) (ResolvedState, error) {
	switch kind {
	case "version":
		var vs wireVersionState
		if err := json.Unmarshal(raw, &vs); err != nil {
			return ResolvedState{}, err
		}
		v, err := semver.Parse(vs.Version)
		if err != nil {
			return ResolvedState{}, err
		}
		return ResolvedState{Kind: StateVersion, Version: v, Revision: vs.Revision}, nil
	case "branch":
		var bs wireBranchState
		if err := json.Unmarshal(raw, &bs); err != nil {
			return ResolvedState{}, err
		}
		return ResolvedState{Kind: StateBranch, Branch: bs.Branch, Revision: bs.Revision}, nil
	case "revision":
		var rs wireRevisionState
		if err := json.Unmarshal(raw, &rs); err != nil {
			return ResolvedState{}, err
		}
		return ResolvedState{Kind: StateRevision, Revision: rs.Revision}, nil
	case "localPackage":
		return ResolvedState{Kind: StateLocal}, nil
	default:
		return ResolvedState{}, fmt.Errorf("unknown pin state kind %q", kind)
	}
}

// Encode renders the store as canonical JSON: pins sorted by identity,
// a fixed key order, trailing newline. The top-level keys are not sorted
// alphabetically: "version" comes first, then "pins", then any preserved
// unknown top-level keys. Writing itself (the stage-and-rename sequence)
// is the caller's job (cmd/workspacectl's savePins, via
// fsutil.AtomicWriteFile); this just produces the bytes.
func (s *Store) Encode(w io.Writer) error {
	pins := s.All()
	wf := wireFile{Version: Schema, Pins: make([]wirePin, len(pins))}
	for i, p := range pins {
		kind, state, err := encodeState(p.State)
		if err != nil {
			return err
		}
		wf.Pins[i] = wirePin{
			Identity: p.Identity.String(),
			Kind:     kind,
			Location: p.Location,
			Original: p.OriginalLocation,
			State:    state,
		}
	}

	var buf bytes.Buffer
	buf.WriteString(`{"version":`)
	fmt.Fprintf(&buf, "%d", wf.Version)
	buf.WriteString(`,"pins":[`)
	for i, p := range wf.Pins {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal(orderedWirePin(p))
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')

	keys := make([]string, 0, len(s.unknown))
	for k := range s.unknown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.WriteByte(',')
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(s.unknown[k])
	}
	buf.WriteString("}\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// orderedWirePin re-marshals a wirePin with deterministic key order by
// relying on struct field declaration order, which encoding/json honors.
func orderedWirePin(p wirePin) wirePin { return p }

func encodeState(st ResolvedState) (string, json.RawMessage, error) {
	switch st.Kind {
	case StateVersion:
		b, err := json.Marshal(wireVersionState{Version: st.Version.String(), Revision: st.Revision})
		return "version", b, err
	case StateBranch:
		b, err := json.Marshal(wireBranchState{Branch: st.Branch, Revision: st.Revision})
		return "branch", b, err
	case StateRevision:
		b, err := json.Marshal(wireRevisionState{Revision: st.Revision})
		return "revision", b, err
	case StateLocal:
		return "localPackage", json.RawMessage("null"), nil
	default:
		return "", nil, fmt.Errorf("unknown state kind %d", st.Kind)
	}
}
