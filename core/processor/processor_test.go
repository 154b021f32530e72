package processor_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/ghcrawler/core/document"
	"github.com/relabs-tech/ghcrawler/core/policy"
	"github.com/relabs-tech/ghcrawler/core/processor"
	"github.com/relabs-tech/ghcrawler/core/queue"
	"github.com/relabs-tech/ghcrawler/core/request"
	"github.com/relabs-tech/ghcrawler/core/store"
	"github.com/relabs-tech/ghcrawler/core/urn"
)

// run processes one request against a fresh store and queue and returns the
// produced document plus all queued follow-up requests in pop order
func run(t *testing.T, req *request.Request) (*document.Document, []*request.Request) {
	t.Helper()
	s := store.NewMemory()
	q := queue.NewMemory()
	p := processor.New(s, q)

	doc, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	return doc, drain(t, q)
}

func drain(t *testing.T, q *queue.Memory) []*request.Request {
	t.Helper()
	var requests []*request.Request
	for {
		delivery, err := q.Pop(context.Background())
		require.NoError(t, err)
		if delivery == nil {
			return requests
		}
		requests = append(requests, delivery.Request)
	}
}

func types(requests []*request.Request) []string {
	names := make([]string, 0, len(requests))
	for _, req := range requests {
		names = append(names, req.Type)
	}
	return names
}

func repoPayload() map[string]interface{} {
	return map[string]interface{}{
		"id":                float64(12),
		"owner":             map[string]interface{}{"id": float64(45), "url": "http://user/45"},
		"organization":      map[string]interface{}{"id": float64(24), "url": "http://org/24"},
		"teams_url":         "http://teams",
		"collaborators_url": "http://collaborators{/collaborator}",
		"commits_url":       "http://commits{/sha}",
		"contributors_url":  "http://contributors",
		"events_url":        "http://events",
		"issues_url":        "http://issues{/number}",
		"pulls_url":         "http://pulls{/number}",
		"subscribers_url":   "http://subscribers",
	}
}

func TestProcessRepo(t *testing.T) {
	req := request.New("repo", "http://foo/repo/12").WithPolicy(policy.Default())
	req.Document = document.New("repo", req.URL, repoPayload())

	doc, queued := run(t, req)

	assert.Equal(t, urn.URN("urn:repo:12"), doc.Self())
	assert.Equal(t, urn.URN("urn:user:45:repos"), doc.Meta.Links["siblings"].Href)
	assert.Equal(t, urn.URN("urn:user:45"), doc.Meta.Links["owner"].Href)
	assert.Equal(t, urn.URN("urn:org:24"), doc.Meta.Links["organization"].Href)
	assert.Equal(t, document.Link{Type: document.LinkRelation, Href: "urn:repo:12:teams:pages:*"}, doc.Meta.Links["teams"])
	for _, relation := range []string{"collaborators", "contributors", "subscribers"} {
		link := doc.Meta.Links[relation]
		assert.Equal(t, document.LinkRelation, link.Type, relation)
		assert.Equal(t, urn.Relation("urn:repo:12", relation), link.Href)
	}

	assert.Equal(t,
		[]string{"user", "org", "teams", "collaborators", "contributors", "subscribers", "issues", "commits", "events"},
		types(queued))

	for _, child := range queued {
		assert.False(t, strings.ContainsAny(child.URL, "{}"), "url %s has template variables", child.URL)
	}

	// the processing pass is stamped on the document
	assert.Equal(t, processor.Version, doc.Meta.Version)
	assert.NotEmpty(t, doc.Meta.ProcessedAt)
}

func TestProcessPullRequestEvent(t *testing.T) {
	req := request.New("PullRequestEvent", "http://repo/4/events/12345").WithPolicy(policy.Events())
	req.Document = document.New("PullRequestEvent", req.URL, map[string]interface{}{
		"id":    "12345",
		"actor": map[string]interface{}{"id": float64(3), "url": "http://user/3"},
		"repo":  map[string]interface{}{"id": float64(4), "url": "http://repo/4"},
		"org":   map[string]interface{}{"id": float64(5), "url": "http://org/5"},
		"payload": map[string]interface{}{
			"pull_request": map[string]interface{}{"id": float64(1), "url": "http://pull_request/1"},
		},
	})

	doc, queued := run(t, req)

	assert.Equal(t, urn.URN("urn:repo:4:PullRequestEvent:12345"), doc.Self())
	assert.Equal(t, urn.URN("urn:repo:4:events"), doc.Meta.Links["siblings"].Href)
	assert.Equal(t, urn.URN("urn:repo:4:pull_request:1"), doc.Meta.Links["pull_request"].Href)

	assert.Equal(t, []string{"user", "repo", "org", "pull_request"}, types(queued))
	assert.Equal(t, "http://pull_request/1", queued[3].URL)
	assert.Equal(t, urn.URN("urn:repo:4"), queued[3].Context.Qualifier)
}

func TestProcessStatusEventSynthesizesCommitLink(t *testing.T) {
	req := request.New("StatusEvent", "http://repo/4/events/777").WithPolicy(policy.Events())
	req.Document = document.New("StatusEvent", req.URL, map[string]interface{}{
		"id":   float64(777),
		"repo": map[string]interface{}{"id": float64(4), "url": "http://repo/4"},
		"payload": map[string]interface{}{
			"sha":   "a1b2",
			"state": "success",
		},
	})

	doc, queued := run(t, req)

	assert.Equal(t, urn.URN("urn:repo:4:commit:a1b2"), doc.Meta.Links["commit"].Href)
	// the sha is all we know, there is no URL to crawl
	for _, child := range queued {
		assert.NotEqual(t, "commit", child.Type)
	}
}

func TestProcessSkipsOnVersionFreshness(t *testing.T) {
	payload := repoPayload()
	req := request.New("repo", "http://foo/repo/12").
		WithPolicy(policy.TraversalPolicy{
			Transitivity: policy.DeepShallow,
			Freshness:    policy.Version,
			Fetch:        policy.FetchStorage,
		})
	req.Document = document.New("repo", req.URL, payload)
	req.Document.Meta.Version = processor.Version

	doc, queued := run(t, req)

	assert.Same(t, req.Document, doc)
	assert.Empty(t, doc.Meta.Links)
	assert.Empty(t, queued)
}

func TestProcessUnknownTypeIsSkipped(t *testing.T) {
	req := request.New("banana", "http://foo/banana/1").WithPolicy(policy.Default())
	req.Document = document.New("banana", req.URL, map[string]interface{}{"id": float64(1)})

	doc, queued := run(t, req)

	assert.Same(t, req.Document, doc)
	assert.Empty(t, queued)
}

func TestProcessMalformedEventIsTerminal(t *testing.T) {
	// an event without repo, team or org cannot be anchored in the graph
	req := request.New("PushEvent", "http://events/1").WithPolicy(policy.Events())
	req.Document = document.New("PushEvent", req.URL, map[string]interface{}{
		"id":      float64(1),
		"payload": map[string]interface{}{"commits": []interface{}{}},
	})

	doc, queued := run(t, req)

	assert.Same(t, req.Document, doc)
	assert.Empty(t, queued, "a malformed payload must not fan out")
}

func TestProcessMalformedEntityIsTerminal(t *testing.T) {
	req := request.New("repo", "http://foo/repo/12").WithPolicy(policy.Default())
	req.Document = document.New("repo", req.URL, map[string]interface{}{"name": "no id here"})

	doc, queued := run(t, req)

	assert.Same(t, req.Document, doc)
	assert.Empty(t, queued)
}

func TestRelationRequestsCarryDescriptor(t *testing.T) {
	req := request.New("repo", "http://foo/repo/12").WithPolicy(policy.Default())
	req.Document = document.New("repo", req.URL, repoPayload())

	_, queued := run(t, req)

	relations := 0
	for _, child := range queued {
		if child.Context.Relation == nil {
			continue
		}
		relations++
		assert.Equal(t, "repo", child.Context.Relation.Origin)
		assert.Equal(t, urn.URN("urn:repo:12"), child.Context.Relation.Qualifier)
		assert.Equal(t, child.Type, child.Context.Relation.Type)
		assert.NotEmpty(t, child.Context.Relation.GUID)
	}
	assert.Equal(t, 4, relations, "teams, collaborators, contributors, subscribers")
}

func TestProcessIsIdempotent(t *testing.T) {
	process := func() (*document.Document, []*request.Request) {
		req := request.New("repo", "http://foo/repo/12").WithPolicy(policy.Default())
		req.Document = document.New("repo", req.URL, repoPayload())
		return run(t, req)
	}

	firstDoc, firstQueued := process()
	secondDoc, secondQueued := process()

	assert.Equal(t, firstDoc.Meta.Links, secondDoc.Meta.Links)
	require.Equal(t, len(firstQueued), len(secondQueued))
	for i := range firstQueued {
		assert.Equal(t, firstQueued[i].Type, secondQueued[i].Type)
		assert.Equal(t, firstQueued[i].URL, secondQueued[i].URL)
		assert.Equal(t, firstQueued[i].Policy, secondQueued[i].Policy)
	}
}

func TestProcessCommitWithQualifier(t *testing.T) {
	req := request.New("commit", "http://repo/12/commits/a1b2").
		WithPolicy(policy.Default()).
		WithQualifier("urn:repo:12")
	req.Document = document.New("commit", req.URL, map[string]interface{}{
		"sha":          "a1b2",
		"author":       map[string]interface{}{"id": float64(45), "url": "http://user/45"},
		"comments_url": "http://repo/12/commits/a1b2/comments",
	})

	doc, queued := run(t, req)

	assert.Equal(t, urn.URN("urn:repo:12:commit:a1b2"), doc.Self())
	assert.Equal(t, urn.URN("urn:repo:12:commits"), doc.Meta.Links["siblings"].Href)
	assert.Equal(t, []string{"user", "commit_comments"}, types(queued))
}

func TestCanHandle(t *testing.T) {
	p := processor.New(store.NewMemory(), queue.NewMemory())
	ctx := context.Background()

	req := request.New("repo", "http://foo/repo/12").WithPolicy(policy.Default())
	assert.True(t, p.CanHandle(ctx, req))

	// a stored version from the future is left alone
	req.Document = document.New("repo", req.URL, repoPayload())
	req.Document.Meta.Version = processor.Version + 1
	assert.False(t, p.CanHandle(ctx, req))

	assert.False(t, p.CanHandle(ctx, request.New("banana", "http://banana")))
}
