/*Package urn composes the stable identifiers of the crawler's entity graph.

A URN is a colon-delimited hierarchical identifier, for example
"urn:repo:12" or "urn:repo:12:issue:27:issue_comments". URNs are plain
values and compare literally.
*/
package urn

import (
	"fmt"
	"strings"
)

// URN is a stable entity identifier
type URN string

// String returns the URN as plain string
func (u URN) String() string {
	return string(u)
}

// Qualified appends the lowercased, colon-joined parts to the prefix
func Qualified(prefix URN, parts ...string) URN {
	b := strings.Builder{}
	b.WriteString(string(prefix))
	for _, part := range parts {
		b.WriteString(":")
		b.WriteString(strings.ToLower(part))
	}
	return URN(b.String())
}

// Entity returns the top-level URN for a typed entity, "urn:<type>:<id>"
func Entity(typ string, id string) URN {
	return URN("urn:" + typ + ":" + id)
}

// Child returns the URN of an entity subordinate to the given qualifier,
// "<qualifier>:<type>:<id>". Segments are passed through verbatim, callers
// choose the exact form; event type segments keep their upper camel case.
func Child(qualifier URN, typ string, id string) URN {
	return URN(string(qualifier) + ":" + typ + ":" + id)
}

// Collection returns the URN of a child collection, "<qualifier>:<name>".
// Pluralization is the caller's choice.
func Collection(qualifier URN, name string) URN {
	return URN(string(qualifier) + ":" + name)
}

// Relation returns the URN of a many-to-many relation collection,
// "<qualifier>:<name>:pages:*". The trailing wildcard stands for the
// paginated relation pages.
func Relation(qualifier URN, name string) URN {
	return URN(string(qualifier) + ":" + name + ":pages:*")
}

// ID renders a payload identifier as URN segment. GitHub identifiers arrive
// as JSON numbers or strings; commits use their sha.
func ID(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
