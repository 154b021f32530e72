package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/ghcrawler/core/queue"
	"github.com/relabs-tech/ghcrawler/core/request"
)

func TestPriorityOrder(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()

	require.NoError(t, q.Queue(ctx, request.New("repo", "http://normal/1")))
	require.NoError(t, q.Push(ctx, []*request.Request{request.New("orgs", "http://soon/1")}, request.PrioritySoon))
	require.NoError(t, q.Push(ctx, []*request.Request{request.New("org", "http://later/1")}, request.PriorityLater))
	require.NoError(t, q.Push(ctx, []*request.Request{request.New("user", "http://immediate/1")}, request.PriorityImmediate))
	require.NoError(t, q.Queue(ctx, request.New("repo", "http://normal/2")))

	var urls []string
	for {
		delivery, err := q.Pop(ctx)
		require.NoError(t, err)
		if delivery == nil {
			break
		}
		require.NoError(t, delivery.Done())
		urls = append(urls, delivery.Request.URL)
	}

	assert.Equal(t, []string{
		"http://immediate/1",
		"http://soon/1",
		"http://normal/1",
		"http://normal/2",
		"http://later/1",
	}, urls)
	assert.Equal(t, 0, q.Len())
}

func TestFailRequeues(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()

	require.NoError(t, q.Queue(ctx, request.New("repo", "http://repo/1")))

	delivery, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, delivery)
	require.NoError(t, delivery.Fail())

	// the failed request comes around again
	again, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "http://repo/1", again.Request.URL)

	empty, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
