package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/tweetdb/pkg/codec"
	"github.com/ssargent/tweetdb/pkg/fault"
)

func TestParams_RoundTrip(t *testing.T) {
	filters := []Filter{
		OwnerIs(owner(7)),
		TopicEquals("solana"),
		ContentPrefix("gm"),
		Memcmp{Offset: 52, Bytes: []byte("sol")},
	}

	values, err := Params(filters)
	require.NoError(t, err)
	assert.Equal(t, "solana", values.Get(ParamTopic))
	assert.Equal(t, "gm", values.Get(ParamContentPrefix))
	assert.Len(t, values[ParamMemcmp], 2)

	parsed, err := ParseParams(values)
	require.NoError(t, err)
	assert.ElementsMatch(t, filters, parsed)

	// the parsed filters select the same records
	data := encode(t, codec.Record{Owner: owner(7), Topic: "solana", Content: "gm frens"})
	assert.True(t, MatchAll(parsed, data))
	other := encode(t, codec.Record{Owner: owner(7), Topic: "solana2", Content: "gm frens"})
	assert.False(t, MatchAll(parsed, other))
}

func TestParams_OwnerFieldMatch(t *testing.T) {
	values, err := Params([]Filter{FieldMatch{Field: codec.FieldOwner, Value: owner(3).Bytes()}})
	require.NoError(t, err)
	assert.Equal(t, owner(3).String(), values.Get(ParamOwner))

	parsed, err := ParseParams(values)
	require.NoError(t, err)
	assert.Equal(t, []Filter{OwnerIs(owner(3))}, parsed)
}

func TestParseParams_EmptyTopicMeansNoTopic(t *testing.T) {
	parsed, err := ParseParams(url.Values{ParamTopic: {""}})
	require.NoError(t, err)

	assert.True(t, MatchAll(parsed, encode(t, codec.Record{Content: "x"})))
	assert.False(t, MatchAll(parsed, encode(t, codec.Record{Topic: "t", Content: "x"})))
}

func TestParseParams_Invalid(t *testing.T) {
	testCases := []struct {
		name   string
		values url.Values
	}{
		{name: "unknown parameter", values: url.Values{"author": {"x"}}},
		{name: "bad owner", values: url.Values{ParamOwner: {"0OIl"}}},
		{name: "short owner", values: url.Values{ParamOwner: {"abc"}}},
		{name: "empty prefix", values: url.Values{ParamTopicPrefix: {""}}},
		{name: "long topic", values: url.Values{ParamTopic: {string(make([]byte, 51))}}},
		{name: "bad memcmp", values: url.Values{ParamMemcmp: {"eight:abc"}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseParams(tc.values)
			assert.Equal(t, fault.InvalidFilter, fault.KindOf(err))
		})
	}
}

func TestParams_RejectsInvalidFilters(t *testing.T) {
	_, err := Params([]Filter{Memcmp{Offset: -1, Bytes: []byte("x")}})
	assert.Equal(t, fault.InvalidFilter, fault.KindOf(err))

	_, err = Params([]Filter{nil})
	assert.Equal(t, fault.InvalidFilter, fault.KindOf(err))
}
