package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseError(t *testing.T) {
	assert := assert.New(t)

	assertParseError := func(s string) {
		assert.Panics(func() {
			Parse(s)
		})
	}

	assertParseError("foo")
	assertParseError(string(make([]byte, StringLen-1))) // too few chars
	assertParseError(string(make([]byte, StringLen+1))) // too many chars

	zero := Parse(strZero)
	assert.True(zero.IsEmpty())
}

func TestMaybeParse(t *testing.T) {
	assert := assert.New(t)

	parse := func(s string, success bool) {
		r, ok := MaybeParse(s)
		assert.Equal(success, ok, "expected success=%t for %q", success, s)
		if !ok {
			assert.Equal(emptyHash, r)
		}
	}

	parse(strZero, true)
	parse("", false)
	parse("not-a-valid-hash-string-at-all", false)
}

func TestEquals(t *testing.T) {
	assert := assert.New(t)

	r0 := Parse(strZero)
	r01 := Parse(strZero)
	r1 := Of([]byte("abc"))

	assert.Equal(r0, r01)
	assert.NotEqual(r0, r1)
}

func TestStringRoundTrip(t *testing.T) {
	h := Of([]byte("roundtrip"))
	s := h.String()
	assert.Equal(t, h, Parse(s))
}

func TestOfIsDeterministic(t *testing.T) {
	assert.Equal(t, Of([]byte("abc")), Of([]byte("abc")))
	assert.NotEqual(t, Of([]byte("abc")), Of([]byte("abd")))
}

func TestIsEmpty(t *testing.T) {
	var h Hash
	assert.True(t, h.IsEmpty())
	assert.False(t, Of([]byte("x")).IsEmpty())
}

func TestLessAndCompare(t *testing.T) {
	assert := assert.New(t)

	r1 := Of([]byte("1"))
	r2 := Of([]byte("2"))
	lo, hi := r1, r2
	if hi.Less(lo) {
		lo, hi = hi, lo
	}

	assert.True(lo.Less(hi))
	assert.False(hi.Less(lo))
	assert.False(lo.Less(lo))
	assert.True(hi.Compare(lo) > 0)
	assert.True(lo.Compare(hi) < 0)
	assert.Equal(0, lo.Compare(lo))
}

func TestHashSet(t *testing.T) {
	assert := assert.New(t)

	h1, h2, h3 := Of([]byte("1")), Of([]byte("2")), Of([]byte("3"))
	s := NewHashSet(h1, h2)

	assert.True(s.Has(h1))
	assert.True(s.Has(h2))
	assert.False(s.Has(h3))

	s.Insert(h3)
	assert.True(s.Has(h3))
	assert.Len(s.Slice(), 3)
}

func TestBlake3Method(t *testing.T) {
	b3 := OfWithMethod([]byte("abc"), Blake3)
	sha := OfWithMethod([]byte("abc"), Sha256)
	assert.NotEqual(t, b3, sha)
}

var strZero = Hash{}.String()
