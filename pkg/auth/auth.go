// Package auth decides whether a request's signers may act on a record.
package auth

import (
	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
)

// SignerSet is the set of identities whose signatures were verified for a request
type SignerSet map[identity.PublicKey]struct{}

// NewSignerSet builds a set from the given keys
func NewSignerSet(keys ...identity.PublicKey) SignerSet {
	s := make(SignerSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether key signed
func (s SignerSet) Has(key identity.PublicKey) bool {
	_, ok := s[key]
	return ok
}

// Authorize allows a mutation only when the signer is the record's owner
func Authorize(signer, owner identity.PublicKey) error {
	if signer != owner {
		return fault.New(fault.NotOwner, "%s is not the owner of this record", signer)
	}
	return nil
}

// RequireSigners confirms every listed account co-signed the request. At
// creation this is the whole guard: the asserted owner and the new record
// account must both have signed.
func RequireSigners(signers SignerSet, required ...identity.PublicKey) error {
	for _, key := range required {
		if !signers.Has(key) {
			return fault.New(fault.MissingSignature, "missing signature for %s", key)
		}
	}
	return nil
}
