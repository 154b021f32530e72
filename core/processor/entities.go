package processor

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/ghcrawler/core/urn"
)

func (p *Processor) registerEntities() {
	p.handlers["org"] = handleOrg
	p.handlers["user"] = handleUser
	p.handlers["repo"] = handleRepo
	p.handlers["team"] = handleTeam
	p.handlers["commit"] = handleCommit
	p.handlers["pull_request"] = handlePullRequest
	p.handlers["issue"] = handleIssue
	p.handlers["review_comment"] = handleComment("review_comment")
	p.handlers["issue_comment"] = handleComment("issue_comment")
	p.handlers["commit_comment"] = handleComment("commit_comment")
	p.handlers["deployment"] = handleDeployment
	p.handlers["status"] = handleStatus
}

// plural returns the plural collection name for an entity type. This is the
// algorithm used to name sibling collections.
func plural(singular string) string {
	if strings.HasSuffix(singular, "y") {
		return strings.TrimSuffix(singular, "y") + "ies"
	}
	return singular + "s"
}

// requireID reads the payload identifier at the given path, or reports the
// payload as malformed
func (t *turn) requireID(keys ...string) (string, error) {
	id := t.doc.ID(keys...)
	if id == "" {
		return "", fmt.Errorf("%w: no %s", errMalformed, strings.Join(keys, "."))
	}
	return id, nil
}

func handleOrg(t *turn) error {
	id, err := t.requireID("id")
	if err != nil {
		return err
	}
	self := urn.Entity("org", id)
	t.doc.AddSelfAndSiblings(self, urn.URN("urn:orgs"))

	t.relation("members", t.doc.String("members_url"), self)
	t.collection("repos", t.doc.String("repos_url"), self)
	t.collection("events", t.doc.String("events_url"), self)
	return nil
}

func handleUser(t *turn) error {
	id, err := t.requireID("id")
	if err != nil {
		return err
	}
	self := urn.Entity("user", id)
	t.doc.AddSelfAndSiblings(self, urn.URN("urn:users"))

	t.collection("repos", t.doc.String("repos_url"), self)
	return nil
}

func handleRepo(t *turn) error {
	id, err := t.requireID("id")
	if err != nil {
		return err
	}
	self := urn.Entity("repo", id)
	t.doc.AddResource("self", self)
	if owner := t.doc.ID("owner", "id"); owner != "" {
		t.doc.AddCollection("siblings", urn.Collection(urn.Entity("user", owner), "repos"))
	}

	t.resource("owner", "user", t.doc.Object("owner"), "")
	t.resource("organization", "org", t.doc.Object("organization"), "")

	t.relation("teams", t.doc.String("teams_url"), self)
	t.relation("collaborators", t.doc.String("collaborators_url"), self)
	t.relation("contributors", t.doc.String("contributors_url"), self)
	t.relation("subscribers", t.doc.String("subscribers_url"), self)

	t.collection("issues", t.doc.String("issues_url"), self)
	t.collection("commits", t.doc.String("commits_url"), self)
	t.collection("events", t.doc.String("events_url"), self)
	return nil
}

func handleTeam(t *turn) error {
	id, err := t.requireID("id")
	if err != nil {
		return err
	}
	self := urn.Entity("team", id)
	t.doc.AddResource("self", self)
	if org := t.doc.ID("organization", "id"); org != "" {
		t.doc.AddCollection("siblings", urn.Collection(urn.Entity("org", org), "teams"))
	}

	t.resource("organization", "org", t.doc.Object("organization"), "")

	// both edges are many-to-many: users serve on several teams, teams
	// hold several repos and repos belong to several teams
	t.relation("team_members", t.doc.String("members_url"), self)
	t.relation("repos", t.doc.String("repositories_url"), self)
	return nil
}

func handleCommit(t *turn) error {
	sha, err := t.requireID("sha")
	if err != nil {
		return err
	}
	qualifier := t.qualifier()
	var self urn.URN
	if qualifier != "" {
		self = urn.Child(qualifier, "commit", sha)
		t.doc.AddSelfAndSiblings(self, urn.Collection(qualifier, "commits"))
	} else {
		self = urn.Entity("commit", sha)
		t.doc.AddResource("self", self)
	}

	t.resource("author", "user", t.doc.Object("author"), "")
	t.resource("committer", "user", t.doc.Object("committer"), "")

	t.collection("commit_comments", t.doc.String("comments_url"), self)
	return nil
}

func handlePullRequest(t *turn) error {
	id, err := t.requireID("id")
	if err != nil {
		return err
	}
	qualifier := t.qualifier()
	self := childOrEntity(qualifier, "pull_request", id)
	t.doc.AddSelfAndSiblings(self, siblingsFor(qualifier, "pull_requests"))

	t.resource("user", "user", t.doc.Object("user"), "")
	t.resource("merged_by", "user", t.doc.Object("merged_by"), "")
	t.resource("assignee", "user", t.doc.Object("assignee"), "")
	t.resource("head", "repo", t.doc.Object("head", "repo"), "")
	t.resource("base", "repo", t.doc.Object("base", "repo"), "")

	t.collection("review_comments", t.doc.String("review_comments_url"), self)
	t.collection("commits", t.doc.String("commits_url"), self)
	return nil
}

func handleIssue(t *turn) error {
	id, err := t.requireID("id")
	if err != nil {
		return err
	}
	qualifier := t.qualifier()
	self := childOrEntity(qualifier, "issue", id)
	t.doc.AddSelfAndSiblings(self, siblingsFor(qualifier, "issues"))

	t.resource("user", "user", t.doc.Object("user"), "")
	t.resource("assignee", "user", t.doc.Object("assignee"), "")

	if milestone := t.doc.ID("milestone", "id"); milestone != "" {
		t.doc.AddResource("milestone", urn.Child(qualifier, "milestone", milestone))
	}
	labels := t.doc.Objects("labels")
	if len(labels) > 0 {
		hrefs := make([]urn.URN, 0, len(labels))
		for _, label := range labels {
			if id, ok := label["id"]; ok {
				hrefs = append(hrefs, urn.Child(qualifier, "label", urn.ID(id)))
			}
		}
		t.doc.AddResourceList("labels", hrefs)
	}

	t.collection("issue_comments", t.doc.String("comments_url"), self)

	// issues double as pull requests, the payload then carries a
	// pull_request stub with only a url
	if pr := t.doc.Object("pull_request"); pr != nil {
		if url, _ := pr["url"].(string); url != "" {
			t.childResource("pull_request", url, qualifier)
		}
	}
	return nil
}

// handleComment covers the three comment families. They share one shape:
// an id, a commenting user, and a natural collection under the qualifier.
func handleComment(typ string) handlerFunc {
	return func(t *turn) error {
		id, err := t.requireID("id")
		if err != nil {
			return err
		}
		qualifier := t.qualifier()
		self := childOrEntity(qualifier, typ, id)
		t.doc.AddSelfAndSiblings(self, siblingsFor(qualifier, plural(typ)))

		t.resource("user", "user", t.doc.Object("user"), "")
		return nil
	}
}

func handleDeployment(t *turn) error {
	id, err := t.requireID("id")
	if err != nil {
		return err
	}
	qualifier := t.qualifier()
	self := childOrEntity(qualifier, "deployment", id)
	t.doc.AddSelfAndSiblings(self, siblingsFor(qualifier, "deployments"))

	t.resource("creator", "user", t.doc.Object("creator"), "")
	return nil
}

func handleStatus(t *turn) error {
	id, err := t.requireID("id")
	if err != nil {
		return err
	}
	qualifier := t.qualifier()
	self := childOrEntity(qualifier, "status", id)
	t.doc.AddSelfAndSiblings(self, siblingsFor(qualifier, "statuses"))

	t.resource("creator", "user", t.doc.Object("creator"), "")
	return nil
}

// siblingsFor names the natural collection containing an entity. Entities
// without context fall back to a top-level collection URN.
func siblingsFor(qualifier urn.URN, name string) urn.URN {
	if qualifier == "" {
		return urn.URN("urn:" + name)
	}
	return urn.Collection(qualifier, name)
}

// childOrEntity builds a qualified URN, falling back to a top-level URN for
// requests that arrive without context
func childOrEntity(qualifier urn.URN, typ, id string) urn.URN {
	if qualifier == "" {
		return urn.Entity(typ, id)
	}
	return urn.Child(qualifier, typ, id)
}
