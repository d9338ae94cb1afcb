package query

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/mr-tron/base58"

	"github.com/ssargent/tweetdb/pkg/codec"
	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
)

// URL parameter names understood by ParseParams
const (
	ParamOwner         = "owner"
	ParamTopic         = "topic"
	ParamTopicPrefix   = "topic_prefix"
	ParamContent       = "content"
	ParamContentPrefix = "content_prefix"
	ParamMemcmp        = "memcmp"
)

// ParseParams turns URL query parameters into filters. Every parameter may
// repeat; each occurrence adds a filter. Unknown parameters are rejected.
func ParseParams(values url.Values) ([]Filter, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var filters []Filter
	for _, key := range keys {
		for _, v := range values[key] {
			f, err := parseParam(key, v)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		}
	}

	if err := ValidateAll(filters); err != nil {
		return nil, err
	}
	return filters, nil
}

func parseParam(key, value string) (Filter, error) {
	switch key {
	case ParamOwner:
		pk, err := identity.ParsePublicKey(value)
		if err != nil {
			return nil, fault.New(fault.InvalidFilter, "owner: %v", err)
		}
		return OwnerIs(pk), nil
	case ParamTopic:
		return TopicEquals(value), nil
	case ParamTopicPrefix:
		return TopicPrefix(value), nil
	case ParamContent:
		return ContentEquals(value), nil
	case ParamContentPrefix:
		return ContentPrefix(value), nil
	case ParamMemcmp:
		return ParseMemcmp(value)
	}
	return nil, fault.New(fault.InvalidFilter, "unknown filter parameter %q", key)
}

// Params is the inverse of ParseParams
func Params(filters []Filter) (url.Values, error) {
	if err := ValidateAll(filters); err != nil {
		return nil, err
	}

	values := url.Values{}
	for _, f := range filters {
		switch f := f.(type) {
		case Memcmp:
			values.Add(ParamMemcmp, fmt.Sprintf("%d:%s", f.Offset, base58.Encode(f.Bytes)))
		case *Memcmp:
			values.Add(ParamMemcmp, fmt.Sprintf("%d:%s", f.Offset, base58.Encode(f.Bytes)))
		case FieldMatch:
			addField(values, f)
		case *FieldMatch:
			addField(values, *f)
		default:
			return nil, fault.New(fault.InvalidFilter, "filter %s has no URL form", f)
		}
	}
	return values, nil
}

func addField(values url.Values, f FieldMatch) {
	switch {
	case f.Field == codec.FieldOwner:
		values.Add(ParamOwner, base58.Encode(f.Value))
	case f.Field == codec.FieldTopic && f.Prefix:
		values.Add(ParamTopicPrefix, string(f.Value))
	case f.Field == codec.FieldTopic:
		values.Add(ParamTopic, string(f.Value))
	case f.Field == codec.FieldContent && f.Prefix:
		values.Add(ParamContentPrefix, string(f.Value))
	default:
		values.Add(ParamContent, string(f.Value))
	}
}
