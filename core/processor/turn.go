package processor

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/ghcrawler/core/document"
	"github.com/relabs-tech/ghcrawler/core/policy"
	"github.com/relabs-tech/ghcrawler/core/request"
	"github.com/relabs-tech/ghcrawler/core/urn"
)

// topLevel holds the entity types that live at the root of the URN graph.
// Their URNs never carry a qualifier prefix.
var topLevel = map[string]bool{
	"org":  true,
	"user": true,
	"repo": true,
	"team": true,
}

// turn is the per-request handler state. Follow-up requests are collected
// and flushed by dispatch after the handler succeeded, so a terminal
// handler enqueues nothing.
type turn struct {
	processor *Processor
	ctx       context.Context
	req       *request.Request
	doc       *document.Document
	rlog      *logrus.Entry
	children  []*request.Request
}

// qualifier returns the context qualifier of the request
func (t *turn) qualifier() urn.URN {
	return t.req.Context.Qualifier
}

// child collects a follow-up request. Requests without a URL are dropped,
// GitHub payloads omit URLs for some referenced entities.
func (t *turn) child(role policy.EdgeRole, typ, url string, qualifier urn.URN) {
	if url == "" {
		return
	}
	child := t.req.Child(role, typ, url)
	child.Context.Qualifier = qualifier
	t.children = append(t.children, child)
}

// resource links a referenced entity under the given role and enqueues it.
// Top-level entities get an unqualified URN and no qualifier context.
func (t *turn) resource(role, typ string, obj map[string]interface{}, qualifier urn.URN) urn.URN {
	if obj == nil {
		return ""
	}
	id, ok := obj["id"]
	if !ok {
		return ""
	}
	var u urn.URN
	var childQualifier urn.URN
	if topLevel[typ] {
		u = urn.Entity(typ, urn.ID(id))
	} else {
		u = urn.Child(qualifier, typ, urn.ID(id))
		childQualifier = qualifier
	}
	t.doc.AddResource(role, u)
	url, _ := obj["url"].(string)
	t.child(policy.EdgeResource, typ, url, childQualifier)
	return u
}

// collection links an exhaustively crawled child collection and enqueues
// its first page. The page request's qualifier is the owning entity, so the
// elements end up subordinate to it.
func (t *turn) collection(name, url string, owner urn.URN) {
	t.doc.AddCollection(name, urn.Collection(owner, name))
	t.child(policy.EdgeCollectionPage, name, url, owner)
}

// childResource enqueues a referenced entity whose payload stub carries a
// url but no id, so no link can be emitted for it
func (t *turn) childResource(typ, url string, qualifier urn.URN) {
	t.child(policy.EdgeResource, typ, url, qualifier)
}

// relation links a many-to-many relation collection and enqueues its first
// page, tagged with a relation descriptor carrying a fresh guid
func (t *turn) relation(name, url string, owner urn.URN) {
	t.doc.AddRelation(name, urn.Relation(owner, name))
	if url == "" {
		return
	}
	child := t.req.ChildRelation(name, url, request.Relation{
		Origin:    t.req.Type,
		Qualifier: owner,
		Type:      name,
	})
	t.children = append(t.children, child)
}
