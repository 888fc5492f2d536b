/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/precis"
)

// ErrMalformedJID is returned by ParseJID/NewJID when the input violates the
// local@domain/resource grammar (spec.md §4.1): empty domain, or unbalanced
// '@'/'/' separators.
var ErrMalformedJID = errors.New("xml: malformed jid")

// MatchOptions is a bitmask selecting which JID components Matches compares.
type MatchOptions uint8

const (
	MatchesNode MatchOptions = 1 << iota
	MatchesDomain
	MatchesResource
)

// wildcard is the route-pattern-only marker described in spec.md §3. It must
// never appear in an on-wire JID.
const wildcard = "*"

// JID is the tuple (local?, domain, resource?) from spec.md §3. All three
// components are immutable once constructed.
type JID struct {
	node     string
	domain   string
	resource string
}

// NewJID builds a JID from its three parts. When checkLen is true, RFC 7622
// length limits are enforced (1023 bytes per part); route patterns built
// internally (wildcards) pass false.
func NewJID(node, domain, resource string, checkLen bool) (*JID, error) {
	if domain == "" {
		return nil, ErrMalformedJID
	}
	var err error
	if node != "" && node != wildcard {
		node, err = precis.UsernameCaseMapped.String(node)
		if err != nil {
			return nil, ErrMalformedJID
		}
	}
	if domain != wildcard {
		domain, err = idna.ToUnicode(domain)
		if err != nil {
			return nil, ErrMalformedJID
		}
	}
	if resource != "" && resource != wildcard {
		resource, err = precis.OpaqueString.String(resource)
		if err != nil {
			return nil, ErrMalformedJID
		}
	}
	if checkLen {
		if len(node) > 1023 || len(domain) > 1023 || len(resource) > 1023 {
			return nil, ErrMalformedJID
		}
	}
	return &JID{node: node, domain: domain, resource: resource}, nil
}

// ParseJID parses the wire grammar `[local "@"] domain ["/" resource]`.
func ParseJID(s string, checkLen bool) (*JID, error) {
	var node, domain, resource string

	atIdx := strings.IndexByte(s, '@')
	slIdx := strings.IndexByte(s, '/')

	switch {
	case atIdx >= 0 && (slIdx < 0 || slIdx > atIdx):
		node = s[:atIdx]
		if slIdx >= 0 {
			domain = s[atIdx+1 : slIdx]
			resource = s[slIdx+1:]
		} else {
			domain = s[atIdx+1:]
		}
	case atIdx < 0 && slIdx >= 0:
		domain = s[:slIdx]
		resource = s[slIdx+1:]
	case atIdx < 0 && slIdx < 0:
		domain = s
	default:
		return nil, ErrMalformedJID
	}
	if node == "" && atIdx == 0 {
		return nil, ErrMalformedJID
	}
	if domain == "" {
		return nil, ErrMalformedJID
	}
	return NewJID(node, domain, resource, checkLen)
}

// Node returns the local part (may be empty).
func (j *JID) Node() string { return j.node }

// Domain returns the domain part (never empty for a well-formed JID).
func (j *JID) Domain() string { return j.domain }

// Resource returns the resource part (may be empty).
func (j *JID) Resource() string { return j.resource }

// IsServer reports whether the JID has neither node nor resource.
func (j *JID) IsServer() bool { return j.node == "" && j.resource == "" }

// IsBare reports whether the JID has no resource.
func (j *JID) IsBare() bool { return j.resource == "" }

// IsFull reports whether the JID has a resource.
func (j *JID) IsFull() bool { return j.resource != "" }

// IsFullWithUser reports whether the JID has both a node and a resource.
func (j *JID) IsFullWithUser() bool { return j.node != "" && j.resource != "" }

// ToBareJID returns a copy of j with its resource stripped.
func (j *JID) ToBareJID() *JID {
	return &JID{node: j.node, domain: j.domain}
}

// String formats the JID per spec.md §4.1 format().
func (j *JID) String() string {
	var sb strings.Builder
	if j.node != "" {
		sb.WriteString(j.node)
		sb.WriteByte('@')
	}
	sb.WriteString(j.domain)
	if j.resource != "" {
		sb.WriteByte('/')
		sb.WriteString(j.resource)
	}
	return sb.String()
}

// Equal reports componentwise byte equality, per spec.md §3.
func (j *JID) Equal(o *JID) bool {
	if j == nil || o == nil {
		return j == o
	}
	return j.node == o.node && j.domain == o.domain && j.resource == o.resource
}

// Matches implements the wildcard matching policy from spec.md §3: target is
// the concrete on-wire JID, j (the receiver) is the route pattern which may
// carry "*" in any component. opts restricts which components are compared;
// a zero opts always matches.
func (j *JID) Matches(target *JID, opts MatchOptions) bool {
	if opts&MatchesDomain != 0 {
		if j.domain != wildcard && j.domain != target.domain {
			return false
		}
	}
	if opts&MatchesNode != 0 {
		if target.node != "" {
			if j.node != wildcard && j.node != target.node {
				return false
			}
		}
	}
	if opts&MatchesResource != 0 {
		if target.resource != "" {
			if j.resource != wildcard && j.resource != target.resource {
				return false
			}
		}
	}
	return true
}

// MatchesRoute is the convenience form of Matches used by the routing
// fabric (router package): target is a concrete on-wire JID and pattern is
// the registered route JID. It implements spec.md §3's full matches(target,
// pattern) rule in one call, including the "bare target matches any route
// with matching domain and local" clause.
func MatchesRoute(target, pattern *JID) bool {
	if pattern.domain != wildcard && pattern.domain != target.domain {
		return false
	}
	if target.node != "" {
		if pattern.node != wildcard && pattern.node != target.node {
			return false
		}
	} else if pattern.node != "" && pattern.node != wildcard {
		return false
	}
	if target.resource != "" {
		if pattern.resource != "" && pattern.resource != wildcard && pattern.resource != target.resource {
			return false
		}
	}
	return true
}
