package processor

import (
	"fmt"
	"strconv"

	"github.com/relabs-tech/ghcrawler/core/document"
	"github.com/relabs-tech/ghcrawler/core/policy"
	"github.com/relabs-tech/ghcrawler/core/request"
	"github.com/relabs-tech/ghcrawler/core/urn"
)

// collectionElements maps a collection type to the type of its elements.
// The events collections are polymorphic, their elements carry their own
// type.
var collectionElements = map[string]string{
	"orgs":            "org",
	"users":           "user",
	"repos":           "repo",
	"teams":           "team",
	"members":         "user",
	"team_members":    "user",
	"collaborators":   "user",
	"contributors":    "user",
	"subscribers":     "user",
	"issues":          "issue",
	"pull_requests":   "pull_request",
	"commits":         "commit",
	"issue_comments":  "issue_comment",
	"review_comments": "review_comment",
	"commit_comments": "commit_comment",
	"deployments":     "deployment",
	"statuses":        "status",
	"events":          "",
}

// rootCollections are the top-level listings. Their elements decay one
// traversal step further than interior collection elements.
var rootCollections = map[string]bool{
	"orgs":  true,
	"users": true,
}

func (p *Processor) registerCollections() {
	for name := range collectionElements {
		if name == "events" {
			p.handlers[name] = p.handleEventsPage
			continue
		}
		p.handlers[name] = handleCollectionPage
	}
}

// handleCollectionPage processes one page of a collection or relation. The
// fetch layer wraps the GitHub array into a document holding "elements".
func handleCollectionPage(t *turn) error {
	elements := t.doc.Objects("elements")
	elementType := collectionElements[t.req.Type]

	qualifier := t.qualifier()
	relation := t.req.Context.Relation
	if relation != nil {
		qualifier = relation.Qualifier
	}

	t.doc.AddResource("self", pageURN(qualifier, t.req))
	if relation != nil {
		t.doc.AddResource("origin", relation.Qualifier)
	}

	role := policy.EdgeCollectionElement
	if rootCollections[t.req.Type] {
		role = policy.EdgeRootCollectionElement
	}

	hrefs := make([]urn.URN, 0, len(elements))
	for _, element := range elements {
		id, ok := element["id"]
		if !ok {
			continue
		}
		hrefs = append(hrefs, elementURN(qualifier, elementType, urn.ID(id)))
	}
	t.doc.AddResourceList("resources", hrefs)

	for _, element := range elements {
		url, _ := element["url"].(string)
		elementQualifier := qualifier
		if topLevel[elementType] {
			elementQualifier = ""
		}
		t.child(role, elementType, url, elementQualifier)
	}
	return nil
}

// handleEventsPage routes an event timeline page through the event finder,
// so only events not yet present in the store fan out. Events have no URL
// of their own, the child requests carry the payload along.
func (p *Processor) handleEventsPage(t *turn) error {
	elements := t.doc.Objects("elements")

	qualifier := t.qualifier()
	t.doc.AddResource("self", pageURN(qualifier, t.req))

	fresh, err := p.FindNew(t.ctx, elements)
	if err != nil {
		return err
	}

	hrefs := make([]urn.URN, 0, len(fresh))
	for _, event := range fresh {
		eventType, _ := event["type"].(string)
		id, ok := event["id"]
		if !ok || eventType == "" {
			continue
		}
		hrefs = append(hrefs, elementURN(qualifier, eventType, urn.ID(id)))

		url := eventKey(event)
		if url == "" {
			continue
		}
		child := t.req.Child(policy.EdgeCollectionElement, eventType, url)
		child.Context.Qualifier = ""
		// the listing is the only source for the event body
		child.Policy.Fetch = policy.FetchNone
		child.Document = document.New(eventType, url, event)
		t.children = append(t.children, child)
	}
	t.doc.AddResourceList("resources", hrefs)
	return nil
}

// elementURN names a collection element. Top-level entities are unqualified.
func elementURN(qualifier urn.URN, typ, id string) urn.URN {
	if typ == "" || topLevel[typ] || qualifier == "" {
		if typ == "" {
			return urn.Entity("event", id)
		}
		return urn.Entity(typ, id)
	}
	return urn.Child(qualifier, typ, id)
}

// pageURN names one page of a collection, "<qualifier>:<name>:pages:<n>"
func pageURN(qualifier urn.URN, req *request.Request) urn.URN {
	name := req.Type
	if req.Context.Relation != nil {
		name = req.Context.Relation.Type
	}
	base := siblingsFor(qualifier, name)
	return urn.Child(base, "pages", strconv.Itoa(pageNumber(req.URL)))
}

// eventKey is the store key of one event payload, "<repo.url>/events/<id>"
func eventKey(event map[string]interface{}) string {
	repo, _ := event["repo"].(map[string]interface{})
	if repo == nil {
		return ""
	}
	repoURL, _ := repo["url"].(string)
	id, ok := event["id"]
	if repoURL == "" || !ok {
		return ""
	}
	return fmt.Sprintf("%s/events/%s", repoURL, urn.ID(id))
}
