package query

import (
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/tweetdb/pkg/codec"
	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
)

func owner(b byte) identity.PublicKey {
	var pk identity.PublicKey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func encode(t *testing.T, r codec.Record) []byte {
	t.Helper()
	data, err := codec.NewRecordCodec().Encode(r)
	require.NoError(t, err)
	return data
}

func TestMemcmp_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		filter Memcmp
		valid  bool
	}{
		{name: "owner offset", filter: OwnerIs(owner(1)), valid: true},
		{name: "topic offset", filter: Memcmp{Offset: 52, Bytes: []byte("topic")}, valid: true},
		{name: "negative offset", filter: Memcmp{Offset: -1, Bytes: []byte("x")}},
		{name: "empty bytes", filter: Memcmp{Offset: 8}},
		{name: "past maximum size", filter: Memcmp{Offset: codec.MaxSize, Bytes: []byte("x")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.filter.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, fault.InvalidFilter, fault.KindOf(err))
			}
		})
	}
}

func TestMemcmp_Match(t *testing.T) {
	data := encode(t, codec.Record{Owner: owner(1), Topic: "topic", Content: "hello"})

	assert.True(t, OwnerIs(owner(1)).Match(data))
	assert.False(t, OwnerIs(owner(2)).Match(data))

	// raw memcmp at 52 is a prefix comparison
	assert.True(t, Memcmp{Offset: 52, Bytes: []byte("top")}.Match(data))
	assert.False(t, Memcmp{Offset: 52, Bytes: []byte("other")}.Match(data))

	// region beyond the record never matches
	assert.False(t, Memcmp{Offset: len(data) - 1, Bytes: []byte("lo")}.Match(data))
}

func TestFieldMatch_Equality(t *testing.T) {
	topic := encode(t, codec.Record{Owner: owner(1), Topic: "topic", Content: "x"})
	topics := encode(t, codec.Record{Owner: owner(1), Topic: "topics", Content: "x"})
	empty := encode(t, codec.Record{Owner: owner(1), Topic: "", Content: "x"})

	assert.True(t, TopicEquals("topic").Match(topic))
	assert.False(t, TopicEquals("topic").Match(topics))
	assert.True(t, TopicEquals("").Match(empty))
	assert.False(t, TopicEquals("").Match(topic))

	assert.True(t, TopicPrefix("topic").Match(topics))
	assert.True(t, TopicPrefix("top").Match(topic))
	assert.False(t, TopicPrefix("topics").Match(topic))
}

func TestFieldMatch_PrefixDoesNotSpillIntoNextField(t *testing.T) {
	// topic "ab" is followed by the content length prefix; a longer prefix
	// must not match by reading into it
	data := encode(t, codec.Record{Owner: owner(1), Topic: "ab", Content: "c"})

	spill := append([]byte("ab"), data[54:56]...)
	assert.False(t, FieldMatch{Field: codec.FieldTopic, Value: spill, Prefix: true}.Match(data))
}

func TestFieldMatch_Content(t *testing.T) {
	short := encode(t, codec.Record{Owner: owner(1), Topic: "a", Content: "gm frens"})
	long := encode(t, codec.Record{Owner: owner(1), Topic: strings.Repeat("t", 50), Content: "gm frens"})

	for _, data := range [][]byte{short, long} {
		assert.True(t, ContentEquals("gm frens").Match(data))
		assert.True(t, ContentPrefix("gm").Match(data))
		assert.False(t, ContentEquals("gm").Match(data))
	}
}

func TestFieldMatch_Owner(t *testing.T) {
	data := encode(t, codec.Record{Owner: owner(3), Topic: "a", Content: "b"})

	f := FieldMatch{Field: codec.FieldOwner, Value: owner(3).Bytes()}
	require.NoError(t, f.Validate())
	assert.True(t, f.Match(data))

	bad := FieldMatch{Field: codec.FieldOwner, Value: []byte{3}}
	assert.Equal(t, fault.InvalidFilter, fault.KindOf(bad.Validate()))
}

func TestFieldMatch_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		filter FieldMatch
	}{
		{name: "unknown field", filter: FieldMatch{Field: "likes", Value: []byte("x")}},
		{name: "created_at unsupported", filter: FieldMatch{Field: codec.FieldCreatedAt, Value: make([]byte, 8)}},
		{name: "topic too long", filter: TopicEquals(strings.Repeat("t", 51))},
		{name: "content too long", filter: ContentPrefix(strings.Repeat("c", 281))},
		{name: "empty prefix", filter: TopicPrefix("")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, fault.InvalidFilter, fault.KindOf(tc.filter.Validate()))
		})
	}

	assert.NoError(t, TopicEquals("").Validate())
}

func TestValidateAll_And_MatchAll(t *testing.T) {
	data := encode(t, codec.Record{Owner: owner(1), Topic: "topic", Content: "body"})

	filters := []Filter{OwnerIs(owner(1)), TopicEquals("topic")}
	require.NoError(t, ValidateAll(filters))
	assert.True(t, MatchAll(filters, data))

	filters = append(filters, ContentEquals("other"))
	assert.False(t, MatchAll(filters, data))

	assert.True(t, MatchAll(nil, data))

	err := ValidateAll([]Filter{OwnerIs(owner(1)), nil})
	assert.Equal(t, fault.InvalidFilter, fault.KindOf(err))
}

func TestValidateAll_NilPointerFilters(t *testing.T) {
	testCases := []struct {
		name   string
		filter Filter
	}{
		{name: "memcmp", filter: (*Memcmp)(nil)},
		{name: "field match", filter: (*FieldMatch)(nil)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { err = ValidateAll([]Filter{tc.filter}) })
			assert.Equal(t, fault.InvalidFilter, fault.KindOf(err))

			require.NotPanics(t, func() { _, err = Params([]Filter{tc.filter}) })
			assert.Equal(t, fault.InvalidFilter, fault.KindOf(err))
		})
	}

	m := OwnerIs(owner(1))
	require.NoError(t, ValidateAll([]Filter{&m}))
}

func TestParseMemcmp(t *testing.T) {
	pk := owner(5)

	m, err := ParseMemcmp("8:" + pk.String())
	require.NoError(t, err)
	assert.Equal(t, 8, m.Offset)
	assert.Equal(t, pk.Bytes(), m.Bytes)

	m, err = ParseMemcmp("52:" + base58.Encode([]byte("topic")))
	require.NoError(t, err)
	assert.Equal(t, []byte("topic"), m.Bytes)

	for _, bad := range []string{"", "8", "x:abc", "8:0OIl", "-1:abc", "400:abc"} {
		_, err := ParseMemcmp(bad)
		assert.Equal(t, fault.InvalidFilter, fault.KindOf(err), "input %q", bad)
	}
}
