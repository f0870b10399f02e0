package objid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyfs-go/ndncore/hash"
)

func TestSerializeCanonicalIsOrderIndependent(t *testing.T) {
	a := map[string]any{"name": "x", "size": 3, "content": "chunk:abc"}
	b := map[string]any{"content": "chunk:abc", "size": 3, "name": "x"}

	ba, err := SerializeCanonical(a)
	require.NoError(t, err)
	bb, err := SerializeCanonical(b)
	require.NoError(t, err)

	assert.Equal(t, ba, bb)
}

func TestSerializeCanonicalNestedObjects(t *testing.T) {
	a := map[string]any{"outer": map[string]any{"b": 2, "a": 1}}
	b := map[string]any{"outer": map[string]any{"a": 1, "b": 2}}

	ba, err := SerializeCanonical(a)
	require.NoError(t, err)
	bb, err := SerializeCanonical(b)
	require.NoError(t, err)
	assert.Equal(t, ba, bb)
	assert.Contains(t, string(ba), `"a":1,"b":2`)
}

func TestSerializeCanonicalNoTrailingWhitespace(t *testing.T) {
	b, err := SerializeCanonical(map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(b))
}

func TestComputeObjIdFromValueDeterministic(t *testing.T) {
	a := map[string]any{"name": "x", "size": 3}
	b := map[string]any{"size": 3, "name": "x"}

	idA, _, err := ComputeObjIdFromValue("file", a, hash.Sha256)
	require.NoError(t, err)
	idB, _, err := ComputeObjIdFromValue("file", b, hash.Sha256)
	require.NoError(t, err)

	assert.Equal(t, idA, idB)
}

func TestComputeObjIdFromValueParseRoundTrip(t *testing.T) {
	v := map[string]any{"name": "x", "size": float64(3)}
	id, canon, err := ComputeObjIdFromValue("file", v, hash.Sha256)
	require.NoError(t, err)

	// parse(serialize(O)) == O, compute_id(serialize(O)) == compute_id(serialize(parse(serialize(O))))
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(canon, &parsed))
	id2, _, err := ComputeObjIdFromValue("file", parsed, hash.Sha256)
	require.NoError(t, err)
	assert.Equal(t, id, id2)
}
