// Package fault defines the typed errors every tweetdb operation reports.
//
// Callers branch on the Kind (or on its Category) rather than on message
// text, so a policy rejection can be told apart from a missing record or a
// corrupt byte slice.
package fault

import (
	"errors"
	"fmt"
)

// Category groups kinds by who is at fault
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryAuthorization Category = "authorization"
	CategoryLookup        Category = "lookup"
	CategoryCodec         Category = "codec"
	CategoryFilter        Category = "filter"
	CategoryInstruction   Category = "instruction"
)

// Kind is a specific error kind
type Kind int

const (
	Unknown Kind = iota
	TopicTooLong
	ContentTooLong
	NotOwner
	MissingSignature
	NotFound
	DuplicateKey
	MalformedRecord
	InvalidFilter
	InvalidInstruction
)

type kindInfo struct {
	name     string
	code     int
	category Category
}

var kinds = map[Kind]kindInfo{
	TopicTooLong:       {"TopicTooLong", 6000, CategoryValidation},
	ContentTooLong:     {"ContentTooLong", 6001, CategoryValidation},
	NotOwner:           {"NotOwner", 2001, CategoryAuthorization},
	MissingSignature:   {"MissingSignature", 3010, CategoryAuthorization},
	NotFound:           {"NotFound", 3012, CategoryLookup},
	DuplicateKey:       {"DuplicateKey", 3013, CategoryLookup},
	MalformedRecord:    {"MalformedRecord", 3003, CategoryCodec},
	InvalidFilter:      {"InvalidFilter", 4001, CategoryFilter},
	InvalidInstruction: {"InvalidInstruction", 4002, CategoryInstruction},
}

// String returns the kind's name, e.g. "NotOwner"
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return "Unknown"
}

// Code returns the stable numeric code for the kind (0 for Unknown)
func (k Kind) Code() int {
	return kinds[k].code
}

// Category returns the group the kind belongs to
func (k Kind) Category() Category {
	return kinds[k].category
}

// ParseKind maps a kind name back to its Kind
func ParseKind(name string) Kind {
	for k, info := range kinds {
		if info.name == name {
			return k
		}
	}
	return Unknown
}

// Error is a typed tweetdb error
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Sentinels for errors.Is
var (
	ErrTopicTooLong       = &Error{Kind: TopicTooLong}
	ErrContentTooLong     = &Error{Kind: ContentTooLong}
	ErrNotOwner           = &Error{Kind: NotOwner}
	ErrMissingSignature   = &Error{Kind: MissingSignature}
	ErrNotFound           = &Error{Kind: NotFound}
	ErrDuplicateKey       = &Error{Kind: DuplicateKey}
	ErrMalformedRecord    = &Error{Kind: MalformedRecord}
	ErrInvalidFilter      = &Error{Kind: InvalidFilter}
	ErrInvalidInstruction = &Error{Kind: InvalidInstruction}
)
