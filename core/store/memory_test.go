package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/ghcrawler/core/document"
	"github.com/relabs-tech/ghcrawler/core/store"
	"github.com/relabs-tech/ghcrawler/core/urn"
)

func repoDoc(id, url string) *document.Document {
	doc := document.New("repo", url, map[string]interface{}{"id": id})
	doc.AddResource("self", urn.Entity("repo", id))
	return doc
}

func TestMemoryRoundTrip(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	doc := repoDoc("12", "http://repo/12")
	doc.Meta.Etag = `"abc"`
	require.NoError(t, s.Upsert(ctx, doc))

	got, err := s.Get(ctx, "repo", "http://repo/12")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, urn.URN("urn:repo:12"), got.Self())

	// lookups are typed
	wrongType, err := s.Get(ctx, "org", "http://repo/12")
	require.NoError(t, err)
	assert.Nil(t, wrongType)

	etag, err := s.Etag(ctx, "repo", "http://repo/12")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, etag)

	missing, err := s.Get(ctx, "repo", "http://repo/13")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryUpsertRequiresSelf(t *testing.T) {
	s := store.NewMemory()
	unanchored := document.New("repo", "http://repo/12", map[string]interface{}{})
	assert.Error(t, s.Upsert(context.Background(), unanchored))
}

func TestMemoryLastWriterWins(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	first := repoDoc("12", "http://repo/12")
	first.Meta.Version = 11
	require.NoError(t, s.Upsert(ctx, first))

	second := repoDoc("12", "http://repo/12")
	second.Meta.Version = 12
	require.NoError(t, s.Upsert(ctx, second))

	got, err := s.Get(ctx, "repo", "http://repo/12")
	require.NoError(t, err)
	assert.Equal(t, 12, got.Meta.Version)

	count, err := s.Count(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryListAndDelete(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, repoDoc("2", "http://repo/2")))
	require.NoError(t, s.Upsert(ctx, repoDoc("1", "http://repo/1")))

	summaries, err := s.List(ctx, "repo")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, urn.URN("urn:repo:1"), summaries[0].URN)
	assert.Equal(t, urn.URN("urn:repo:2"), summaries[1].URN)

	require.NoError(t, s.Delete(ctx, "repo", "urn:repo:1"))
	count, err := s.Count(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// deleting a missing document is not an error
	require.NoError(t, s.Delete(ctx, "repo", "urn:repo:99"))
}

func TestMemoryFailAll(t *testing.T) {
	s := store.NewMemory()
	s.FailAll = true
	ctx := context.Background()

	_, err := s.Get(ctx, "repo", "http://repo/12")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorIs(t, s.Upsert(ctx, repoDoc("12", "http://repo/12")), store.ErrUnavailable)
}
