package processor

import (
	"fmt"

	"github.com/relabs-tech/ghcrawler/core/urn"
)

// eventScope is the shared part of every event handler: the URN of the
// repo, team or org the event is scoped to
type eventScope struct {
	t     *turn
	scope urn.URN
}

// resource links and enqueues an entity from the event payload
func (e *eventScope) resource(role, typ string, keys ...string) {
	obj := e.t.doc.Object(append([]string{"payload"}, keys...)...)
	e.t.resource(role, typ, obj, e.scope)
}

// link emits a resource link for a payload entity that is not crawled on
// its own, e.g. labels and milestones
func (e *eventScope) link(role, typ string, keys ...string) {
	obj := e.t.doc.Object(append([]string{"payload"}, keys...)...)
	if obj == nil {
		return
	}
	id, ok := obj["id"]
	if !ok {
		return
	}
	e.t.doc.AddResource(role, urn.Child(e.scope, typ, urn.ID(id)))
}

// eventHandler is the scaffold every *Event handler runs through: scope
// resolution, self and siblings, the actor/repo/org triple, then the
// family-specific payload linking
func eventHandler(link func(e *eventScope)) handlerFunc {
	return func(t *turn) error {
		id, err := t.requireID("id")
		if err != nil {
			return err
		}

		repo := t.doc.Object("repo")
		org := t.doc.Object("org")
		team := t.doc.Object("payload", "team")

		var scope urn.URN
		switch {
		case repo != nil && repo["id"] != nil:
			scope = urn.Entity("repo", urn.ID(repo["id"]))
		case team != nil && team["id"] != nil:
			scope = urn.Entity("team", urn.ID(team["id"]))
		case org != nil && org["id"] != nil:
			scope = urn.Entity("org", urn.ID(org["id"]))
		default:
			return fmt.Errorf("%w: event without repo, team or org", errMalformed)
		}

		self := urn.Child(scope, t.req.Type, id)
		t.doc.AddSelfAndSiblings(self, urn.Collection(scope, "events"))

		t.resource("actor", "user", t.doc.Object("actor"), "")
		t.resource("repo", "repo", repo, "")
		t.resource("org", "org", org, "")

		if link != nil {
			link(&eventScope{t: t, scope: scope})
		}
		return nil
	}
}

// eventPayloads enumerates the event families and how their distinguishing
// payload entities are linked. A nil entry means the scaffold already
// covers everything the payload offers.
var eventPayloads = map[string]func(e *eventScope){
	"CheckRunEvent":   func(e *eventScope) { e.link("check_run", "check_run", "check_run") },
	"CheckSuiteEvent": func(e *eventScope) { e.link("check_suite", "check_suite", "check_suite") },
	"CommitCommentEvent": func(e *eventScope) {
		e.resource("comment", "commit_comment", "comment")
		commitID := e.t.doc.String("payload", "comment", "commit_id")
		if commitID == "" {
			return
		}
		e.t.doc.AddResource("commit", urn.Child(e.scope, "commit", commitID))
		// the payload has no commit url, synthesize it from the repo
		if repoURL := e.t.doc.String("repo", "url"); repoURL != "" {
			e.t.childResource("commit", repoURL+"/commits/"+commitID, e.scope)
		}
	},
	"CreateEvent":     nil,
	"DeleteEvent":     nil,
	"DeploymentEvent": func(e *eventScope) { e.resource("deployment", "deployment", "deployment") },
	"DeploymentStatusEvent": func(e *eventScope) {
		e.resource("deployment", "deployment", "deployment")
		e.link("deployment_status", "status", "deployment_status")
	},
	"ForkEvent":   func(e *eventScope) { e.resource("forkee", "repo", "forkee") },
	"GollumEvent": nil,
	"IssueCommentEvent": func(e *eventScope) {
		e.resource("comment", "issue_comment", "comment")
		e.resource("issue", "issue", "issue")
	},
	"IssuesEvent": func(e *eventScope) { e.resource("issue", "issue", "issue") },
	"LabelEvent":  func(e *eventScope) { e.link("label", "label", "label") },
	"MemberEvent": func(e *eventScope) { e.resource("member", "user", "member") },
	"MembershipEvent": func(e *eventScope) {
		e.resource("member", "user", "member")
		e.resource("team", "team", "team")
	},
	"MilestoneEvent":     func(e *eventScope) { e.link("milestone", "milestone", "milestone") },
	"OrganizationEvent":  func(e *eventScope) { e.resource("membership_user", "user", "membership", "user") },
	"OrgBlockEvent":      func(e *eventScope) { e.resource("blocked_user", "user", "blocked_user") },
	"PageBuildEvent":     func(e *eventScope) { e.link("page_build", "page_build", "build") },
	"ProjectCardEvent":   func(e *eventScope) { e.link("project_card", "project_card", "project_card") },
	"ProjectColumnEvent": func(e *eventScope) { e.link("project_column", "project_column", "project_column") },
	"ProjectEvent":       func(e *eventScope) { e.link("project", "project", "project") },
	"PublicEvent":        nil,
	"PullRequestEvent":   func(e *eventScope) { e.resource("pull_request", "pull_request", "pull_request") },
	"PullRequestReviewEvent": func(e *eventScope) {
		e.link("review", "review", "review")
		e.resource("pull_request", "pull_request", "pull_request")
	},
	"PullRequestReviewCommentEvent": func(e *eventScope) {
		e.resource("comment", "review_comment", "comment")
		e.resource("pull_request", "pull_request", "pull_request")
	},
	"PushEvent": func(e *eventScope) {
		commits := e.t.doc.Objects("payload", "commits")
		if len(commits) == 0 {
			return
		}
		hrefs := make([]urn.URN, 0, len(commits))
		for _, commit := range commits {
			sha, _ := commit["sha"].(string)
			if sha == "" {
				continue
			}
			hrefs = append(hrefs, urn.Child(e.scope, "commit", sha))
			if url, _ := commit["url"].(string); url != "" {
				e.t.childResource("commit", url, e.scope)
			}
		}
		e.t.doc.AddResourceList("commits", hrefs)
	},
	"ReleaseEvent":    func(e *eventScope) { e.link("release", "release", "release") },
	"RepositoryEvent": func(e *eventScope) { e.resource("repository", "repo", "repository") },
	"StatusEvent": func(e *eventScope) {
		// statuses reference their commit by sha only, no url is known so
		// nothing is enqueued
		if sha := e.t.doc.String("payload", "sha"); sha != "" {
			e.t.doc.AddResource("commit", urn.Child(e.scope, "commit", sha))
		}
	},
	"TeamEvent": func(e *eventScope) {
		e.resource("team", "team", "team")
		e.resource("repository", "repo", "repository")
	},
	"TeamAddEvent": func(e *eventScope) {
		e.resource("team", "team", "team")
		e.resource("repository", "repo", "repository")
	},
	"WatchEvent": nil,
}

func (p *Processor) registerEvents() {
	for name, link := range eventPayloads {
		p.handlers[name] = eventHandler(link)
	}
}
