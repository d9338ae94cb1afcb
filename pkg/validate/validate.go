// Package validate enforces the field-length limits of a record.
package validate

import (
	"github.com/ssargent/tweetdb/pkg/codec"
	"github.com/ssargent/tweetdb/pkg/fault"
)

// Fields checks topic and content against their byte limits. Empty values
// are legal for both. Topic is checked first.
func Fields(topic, content string) error {
	if len(topic) > codec.MaxTopicLen {
		return fault.New(fault.TopicTooLong, "topic is %d bytes, maximum is %d", len(topic), codec.MaxTopicLen)
	}
	if len(content) > codec.MaxContentLen {
		return fault.New(fault.ContentTooLong, "content is %d bytes, maximum is %d", len(content), codec.MaxContentLen)
	}
	return nil
}
