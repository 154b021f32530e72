package document

import (
	"github.com/relabs-tech/ghcrawler/core/urn"
)

// LinkType tags the three link shapes
type LinkType string

// all supported link shapes
const (
	// LinkResource is a singleton outbound edge
	LinkResource LinkType = "resource"
	// LinkCollection is a child collection fully enumerated under the
	// document's qualifier
	LinkCollection LinkType = "collection"
	// LinkRelation is a many-to-many edge living in its own collection,
	// its URN carries the pagination wildcard "pages:*"
	LinkRelation LinkType = "relation"
)

// Link is one typed entry in _metadata.links
type Link struct {
	Type  LinkType  `json:"type"`
	Href  urn.URN   `json:"href,omitempty"`
	Hrefs []urn.URN `json:"hrefs,omitempty"`
}

// Each Add call below is idempotent at the role level, later writes
// overwrite earlier ones.

// AddResource links a singleton outbound edge under the given role
func (d *Document) AddResource(role string, href urn.URN) {
	d.Meta.Links[role] = Link{Type: LinkResource, Href: href}
}

// AddResourceList links a list of outbound edges under one role, used for
// labels and assignees
func (d *Document) AddResourceList(role string, hrefs []urn.URN) {
	d.Meta.Links[role] = Link{Type: LinkResource, Hrefs: hrefs}
}

// AddCollection links an exhaustively crawled child collection
func (d *Document) AddCollection(role string, href urn.URN) {
	d.Meta.Links[role] = Link{Type: LinkCollection, Href: href}
}

// AddRelation links a many-to-many relation collection. The href ends in
// the pagination wildcard ":pages:*".
func (d *Document) AddRelation(role string, href urn.URN) {
	d.Meta.Links[role] = Link{Type: LinkRelation, Href: href}
}

// AddSelfAndSiblings is the conventional shorthand setting both the entity
// URN and the URN of its natural containing collection
func (d *Document) AddSelfAndSiblings(self, siblings urn.URN) {
	d.AddResource("self", self)
	d.AddCollection("siblings", siblings)
}
