package policy_test

import (
	"testing"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/ghcrawler/core/policy"
)

// the full transitivity transition table
func TestChildTransitivity(t *testing.T) {
	cases := []struct {
		parent policy.Transitivity
		role   policy.EdgeRole
		want   policy.Transitivity
	}{
		{policy.Shallow, policy.EdgeCollectionPage, policy.Shallow},
		{policy.Shallow, policy.EdgeRootCollectionElement, policy.Shallow},
		{policy.Shallow, policy.EdgeCollectionElement, policy.Shallow},
		{policy.Shallow, policy.EdgeResource, policy.Shallow},

		{policy.DeepShallow, policy.EdgeCollectionPage, policy.DeepShallow},
		{policy.DeepShallow, policy.EdgeRootCollectionElement, policy.Shallow},
		{policy.DeepShallow, policy.EdgeCollectionElement, policy.DeepShallow},
		{policy.DeepShallow, policy.EdgeResource, policy.Shallow},

		{policy.DeepDeep, policy.EdgeCollectionPage, policy.DeepDeep},
		{policy.DeepDeep, policy.EdgeRootCollectionElement, policy.DeepShallow},
		{policy.DeepDeep, policy.EdgeCollectionElement, policy.DeepShallow},
		{policy.DeepDeep, policy.EdgeResource, policy.DeepShallow},
	}
	for _, c := range cases {
		p := policy.TraversalPolicy{Transitivity: c.parent, Freshness: policy.Match, Fetch: policy.FetchOriginStorage}
		child := p.ChildFor(c.role)
		if child.Transitivity != c.want {
			t.Errorf("childFor(%s, %s): got %s, want %s", c.parent, c.role, child.Transitivity, c.want)
		}
		if child.Freshness != p.Freshness {
			t.Errorf("childFor(%s, %s): freshness changed to %s", c.parent, c.role, child.Freshness)
		}
	}
}

func TestFetchAlwaysDecays(t *testing.T) {
	update := policy.Update()

	// the transitivity stays deepDeep across a collection page, so the
	// force-fetch survives
	page := update.ChildFor(policy.EdgeCollectionPage)
	if page.Fetch != policy.FetchAlways {
		t.Errorf("page child of update policy: got fetch %s, want %s", page.Fetch, policy.FetchAlways)
	}

	// the element leaves the forced subtree
	element := update.ChildFor(policy.EdgeRootCollectionElement)
	if element.Fetch != policy.FetchOriginStorage {
		t.Errorf("element child of update policy: got fetch %s, want %s", element.Fetch, policy.FetchOriginStorage)
	}
}

func TestShouldReprocess(t *testing.T) {
	cases := []struct {
		name          string
		freshness     policy.Freshness
		storedVersion int
		storedEtag    string
		fetchedEtag   string
		want          bool
	}{
		{"always reprocesses", policy.Always, 12, "a", "a", true},
		{"match with differing etags", policy.Match, 12, "a", "b", true},
		{"match with equal etags", policy.Match, 12, "a", "a", false},
		{"match with no stored etag", policy.Match, 12, "", "", true},
		{"version below", policy.Version, 11, "", "", true},
		{"version reached", policy.Version, 12, "", "", false},
		{"version above", policy.Version, 13, "", "", false},
		{"mutables below", policy.Mutables, 0, "", "", true},
		{"mutables reached", policy.Mutables, 12, "", "", false},
	}
	for _, c := range cases {
		p := policy.TraversalPolicy{Transitivity: policy.DeepShallow, Freshness: c.freshness}
		got := p.ShouldReprocess(c.storedVersion, 12, c.storedEtag, c.fetchedEtag)
		if got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestByName(t *testing.T) {
	for name, want := range map[string]policy.TraversalPolicy{
		"":          policy.Default(),
		"default":   policy.Default(),
		"update":    policy.Update(),
		"events":    policy.Events(),
		"reprocess": policy.Reprocess(),
	} {
		got, err := policy.ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ByName(%q): got %+v, want %+v", name, got, want)
		}
	}
	if _, err := policy.ByName("everything"); err == nil {
		t.Error("ByName accepted an unknown policy name")
	}
}

func TestUnmarshalValidation(t *testing.T) {
	var p policy.TraversalPolicy
	good := `{"transitivity":"deepShallow","freshness":"match","fetch":"originStorage"}`
	if err := json.Unmarshal([]byte(good), &p); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}
	if p != policy.Default() {
		t.Errorf("got %+v, want the default policy", p)
	}

	for _, bad := range []string{
		`{"transitivity":"sideways"}`,
		`{"freshness":"stale"}`,
		`{"transitivity":42}`,
	} {
		if err := json.Unmarshal([]byte(bad), &p); err == nil {
			t.Errorf("invalid policy %s accepted", bad)
		}
	}
}
