package objid

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/cyfs-go/ndncore/hash"
)

// SerializeCanonical produces the canonical byte form of a JSON-like value:
// object keys sorted lexicographically, no insignificant whitespace, and
// fixed escaping (delegated to encoding/json, which never emits optional
// whitespace and already escapes consistently). Reordering an input map's
// keys before calling SerializeCanonical must not change the output.
func SerializeCanonical(v any) ([]byte, error) {
	canon, err := canonicalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canon); err != nil {
		return nil, err
	}
	// json.Encoder always appends a trailing newline; canonical form has none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// canonicalize walks v (or its round-tripped JSON form) and replaces every
// map with an orderedMap so that json.Marshal below emits keys in sorted
// order regardless of the input map's native iteration order.
func canonicalize(v any) (any, error) {
	// Round-trip through encoding/json first so arbitrary Go struct values
	// (not just map[string]any) are canonicalized the same way.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return orderify(generic), nil
}

func orderify(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		om := orderedMap{keys: keys, vals: make(map[string]any, len(t))}
		for _, k := range keys {
			om.vals[k] = orderify(t[k])
		}
		return om
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = orderify(e)
		}
		return out
	default:
		return v
	}
}

// orderedMap marshals with keys in the fixed order captured at construction
// time, giving deterministic byte output for any permutation of an input map.
type orderedMap struct {
	keys []string
	vals map[string]any
}

func (om orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range om.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(om.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ComputeObjId computes the ObjId of an already-canonical byte form.
func ComputeObjId(objType string, canonicalBytes []byte, m hash.Method) ObjId {
	return ObjId{ObjType: objType, Method: m, Digest: hash.OfWithMethod(canonicalBytes, m)}
}

// ComputeObjIdFromValue canonicalizes v and computes its ObjId in one step.
func ComputeObjIdFromValue(objType string, v any, m hash.Method) (ObjId, []byte, error) {
	b, err := SerializeCanonical(v)
	if err != nil {
		return ObjId{}, nil, err
	}
	return ComputeObjId(objType, b, m), b, nil
}
