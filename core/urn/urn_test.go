package urn_test

import (
	"testing"

	"github.com/relabs-tech/ghcrawler/core/urn"
)

func TestBuilders(t *testing.T) {
	cases := []struct {
		name string
		got  urn.URN
		want urn.URN
	}{
		{"entity", urn.Entity("repo", "12"), "urn:repo:12"},
		{"child", urn.Child("urn:repo:12", "issue", "27"), "urn:repo:12:issue:27"},
		{"child keeps case", urn.Child("urn:repo:4", "PullRequestEvent", "12345"), "urn:repo:4:PullRequestEvent:12345"},
		{"collection", urn.Collection("urn:repo:12", "issues"), "urn:repo:12:issues"},
		{"relation", urn.Relation("urn:repo:12", "teams"), "urn:repo:12:teams:pages:*"},
		{"qualified lowercases", urn.Qualified("urn", "Repo", "12"), "urn:repo:12"},
		{"qualified empty parts", urn.Qualified("urn:repo:12"), "urn:repo:12"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestID(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{"a1b2", "a1b2"},
		{float64(12345), "12345"},
		{float64(7.0), "7"},
		{42, "42"},
		{int64(43), "43"},
		{true, "true"},
	}
	for _, c := range cases {
		if got := urn.ID(c.in); got != c.want {
			t.Errorf("ID(%v): got %q, want %q", c.in, got, c.want)
		}
	}
}
