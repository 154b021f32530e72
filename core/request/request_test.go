package request_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/ghcrawler/core/policy"
	"github.com/relabs-tech/ghcrawler/core/request"
)

func TestStripTemplate(t *testing.T) {
	cases := []struct{ in, want string }{
		{"http://x{/y}", "http://x"},
		{"http://commits{/sha}", "http://commits"},
		{"http://x{/y}/z{?page}", "http://x/z"},
		{"http://x", "http://x"},
		{"http://x{broken", "http://x"},
		{"", ""},
	}
	for _, c := range cases {
		if got := request.StripTemplate(c.in); got != c.want {
			t.Errorf("StripTemplate(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNewStripsTemplates(t *testing.T) {
	req := request.New("repo", "http://repos{/repo}")
	assert.Equal(t, "http://repos", req.URL)
	assert.False(t, strings.ContainsAny(req.URL, "{}"))
}

func TestChildInheritsContext(t *testing.T) {
	req := request.New("repo", "http://foo/repo/12").
		WithPolicy(policy.Default()).
		WithQualifier("urn:repo:12")

	child := req.Child(policy.EdgeResource, "user", "http://user/45{/detail}")
	assert.Equal(t, "user", child.Type)
	assert.Equal(t, "http://user/45", child.URL)
	assert.Equal(t, req.Context.Qualifier, child.Context.Qualifier)
	assert.Equal(t, policy.Shallow, child.Policy.Transitivity)
	assert.Equal(t, policy.Match, child.Policy.Freshness)
}

func TestChildRelationGeneratesGUID(t *testing.T) {
	req := request.New("repo", "http://foo/repo/12").WithPolicy(policy.Default())

	first := req.ChildRelation("teams", "http://teams", request.Relation{
		Origin:    "repo",
		Qualifier: "urn:repo:12",
		Type:      "teams",
	})
	second := req.ChildRelation("teams", "http://teams", request.Relation{
		Origin:    "repo",
		Qualifier: "urn:repo:12",
		Type:      "teams",
	})

	if assert.NotNil(t, first.Context.Relation) {
		assert.Equal(t, "repo", first.Context.Relation.Origin)
		assert.NotEmpty(t, first.Context.Relation.GUID)
	}
	// guids are fresh per enqueue
	assert.NotEqual(t, first.Context.Relation.GUID, second.Context.Relation.GUID)
}

func TestQualifierFallback(t *testing.T) {
	req := request.New("commit", "http://commit/a1")
	assert.Equal(t, "urn:repo:4", req.Qualifier("urn:repo:4").String())

	req.WithQualifier("urn:repo:12")
	assert.Equal(t, "urn:repo:12", req.Qualifier("urn:repo:4").String())
}
