/*Package policy implements the traversal policy algebra of the crawler.

A TraversalPolicy decides, at every enqueue site, whether a request should
be handled at all, which freshness rule gates reprocessing, and which policy
the children of a request inherit.
*/
package policy

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Transitivity says how far child edges are followed
type Transitivity string

// all supported transitivity values
const (
	Shallow     Transitivity = "shallow"
	DeepShallow Transitivity = "deepShallow"
	DeepDeep    Transitivity = "deepDeep"
)

// Freshness says when an already stored document is handled again
type Freshness string

// all supported freshness values
const (
	Always   Freshness = "always"
	Match    Freshness = "match"
	Version  Freshness = "version"
	Mutables Freshness = "mutables"
)

// Fetch is the fetch strategy. It is consumed by the fetch layer only, the
// processor reads freshness and transitivity.
type Fetch string

// all supported fetch strategies
const (
	FetchNone          Fetch = "none"
	FetchStorage       Fetch = "storage"
	FetchOriginStorage Fetch = "originStorage"
	FetchMutables      Fetch = "mutables"
	FetchAlways        Fetch = "always"
)

// EdgeRole classifies the edge between a request and a child request
type EdgeRole string

// all supported edge roles
const (
	EdgeCollectionPage        EdgeRole = "collection-page"
	EdgeRootCollectionElement EdgeRole = "root-collection-element"
	EdgeCollectionElement     EdgeRole = "collection-element"
	EdgeResource              EdgeRole = "resource"
)

// TraversalPolicy is an immutable tuple of three orthogonal axes. Policies
// are value objects, transitions return new policies.
type TraversalPolicy struct {
	Transitivity Transitivity `json:"transitivity"`
	Freshness    Freshness    `json:"freshness"`
	Fetch        Fetch        `json:"fetch"`
}

// Default is the standard crawl policy: follow edges one level deep,
// refetch on etag mismatch
func Default() TraversalPolicy {
	return TraversalPolicy{Transitivity: DeepShallow, Freshness: Match, Fetch: FetchOriginStorage}
}

// Update is the user-initiated force refresh policy
func Update() TraversalPolicy {
	return TraversalPolicy{Transitivity: DeepDeep, Freshness: Always, Fetch: FetchAlways}
}

// Events is the policy for event timeline crawls
func Events() TraversalPolicy {
	return TraversalPolicy{Transitivity: Shallow, Freshness: Always, Fetch: FetchAlways}
}

// Reprocess replays stored documents through a newer processor without
// touching the origin
func Reprocess() TraversalPolicy {
	return TraversalPolicy{Transitivity: DeepShallow, Freshness: Version, Fetch: FetchStorage}
}

// ByName resolves a policy preset by its configuration name
func ByName(name string) (TraversalPolicy, error) {
	switch name {
	case "default", "":
		return Default(), nil
	case "update":
		return Update(), nil
	case "events":
		return Events(), nil
	case "reprocess":
		return Reprocess(), nil
	}
	return TraversalPolicy{}, fmt.Errorf("unknown traversal policy '%s'", name)
}

// childTransitivity is the transition table mapping (parent transitivity,
// edge role) to the child transitivity
var childTransitivity = map[Transitivity]map[EdgeRole]Transitivity{
	Shallow: {
		EdgeCollectionPage:        Shallow,
		EdgeRootCollectionElement: Shallow,
		EdgeCollectionElement:     Shallow,
		EdgeResource:              Shallow,
	},
	DeepShallow: {
		EdgeCollectionPage:        DeepShallow,
		EdgeRootCollectionElement: Shallow,
		EdgeCollectionElement:     DeepShallow,
		EdgeResource:              Shallow,
	},
	DeepDeep: {
		EdgeCollectionPage:        DeepDeep,
		EdgeRootCollectionElement: DeepShallow,
		EdgeCollectionElement:     DeepShallow,
		EdgeResource:              DeepShallow,
	},
}

// ChildFor returns the policy a child request inherits across an edge of
// the given role. Freshness and fetch propagate unchanged, except that the
// force-fetch of an update policy decays along the same column as
// transitivity: once the traversal leaves the forced subtree, children fall
// back to origin-or-storage fetching.
func (p TraversalPolicy) ChildFor(role EdgeRole) TraversalPolicy {
	child := p
	child.Transitivity = childTransitivity[p.Transitivity][role]
	if p.Fetch == FetchAlways && child.Transitivity != p.Transitivity {
		child.Fetch = FetchOriginStorage
	}
	return child
}

// ShouldReprocess applies the freshness gate: it reports whether a document
// in the given stored state is handled again by a processor of the given
// version. A stored version of 0 means the document has never been
// processed.
func (p TraversalPolicy) ShouldReprocess(storedVersion, processorVersion int, storedEtag, fetchedEtag string) bool {
	switch p.Freshness {
	case Always:
		return true
	case Match:
		return storedEtag == "" || storedEtag != fetchedEtag
	case Version, Mutables:
		return storedVersion < processorVersion
	}
	return true
}

// UnmarshalJSON validates the transitivity axis
func (t *Transitivity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = Transitivity(s)
	switch *t {
	case Shallow, DeepShallow, DeepDeep:
		return nil
	}
	return fmt.Errorf("%s is not a valid transitivity", s)
}

// UnmarshalJSON validates the freshness axis
func (f *Freshness) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = Freshness(s)
	switch *f {
	case Always, Match, Version, Mutables:
		return nil
	}
	return fmt.Errorf("%s is not a valid freshness", s)
}
