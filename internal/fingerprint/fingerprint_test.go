package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum_KeyOrderDoesNotMatter(t *testing.T) {
	a := json.RawMessage(`{"plcyNo":"P100","plcyNm":"Youth Grant","zipCd":"11000"}`)
	b := json.RawMessage(`{"zipCd":"11000","plcyNo":"P100","plcyNm":"Youth Grant"}`)

	ha, err := Sum(a)
	require.NoError(t, err)
	hb, err := Sum(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestSum_WhitespaceDoesNotMatter(t *testing.T) {
	a := json.RawMessage(`{"plcyNo": "P100",   "inqCnt": 42}`)
	b := json.RawMessage("{\n\t\"plcyNo\":\"P100\",\n\t\"inqCnt\":42\n}")

	ha, err := Sum(a)
	require.NoError(t, err)
	hb, err := Sum(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestSum_NestedObjectsCanonicalized(t *testing.T) {
	a := json.RawMessage(`{"outer":{"b":1,"a":[{"y":2,"x":1}]}}`)
	b := json.RawMessage(`{"outer":{"a":[{"x":1,"y":2}],"b":1}}`)

	ha, err := Sum(a)
	require.NoError(t, err)
	hb, err := Sum(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestSum_ValueChangeChangesDigest(t *testing.T) {
	a := json.RawMessage(`{"plcyNo":"P100","plcyNm":"Youth Grant"}`)
	b := json.RawMessage(`{"plcyNo":"P100","plcyNm":"Youth Grant v2"}`)

	ha, err := Sum(a)
	require.NoError(t, err)
	hb, err := Sum(b)
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}

func TestSum_ArrayOrderMatters(t *testing.T) {
	a := json.RawMessage(`{"codes":["1","2"]}`)
	b := json.RawMessage(`{"codes":["2","1"]}`)

	ha, err := Sum(a)
	require.NoError(t, err)
	hb, err := Sum(b)
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}

func TestSum_FixedLength(t *testing.T) {
	h, err := Sum(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestSum_InvalidJSON(t *testing.T) {
	_, err := Sum(json.RawMessage(`{"a":`))
	assert.Error(t, err)
}

func TestCanonicalize_PreservesNumberRepresentation(t *testing.T) {
	c, err := Canonicalize(json.RawMessage(`{"amt": 2400000}`))
	require.NoError(t, err)
	assert.Equal(t, `{"amt":2400000}`, string(c))
}

func TestCanonicalize_RejectsTrailingData(t *testing.T) {
	_, err := Canonicalize(json.RawMessage(`{"a":1}{"b":2}`))
	assert.Error(t, err)
}
