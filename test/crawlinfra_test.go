package test

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"

	"github.com/relabs-tech/ghcrawler/core/document"
	"github.com/relabs-tech/ghcrawler/core/notify"
	"github.com/relabs-tech/ghcrawler/core/policy"
	"github.com/relabs-tech/ghcrawler/core/request"
	"github.com/relabs-tech/ghcrawler/core/urn"
)

// CrawlInfraTestSuite exercises the crawler's postgres and kafka backends
// against real containers
type CrawlInfraTestSuite struct {
	IntegrationTestSuite
}

func TestCrawlInfraTestSuite(t *testing.T) {
	suite.Run(t, &CrawlInfraTestSuite{})
}

func (s *CrawlInfraTestSuite) TestQueuePriorityOrder() {
	ctx := context.Background()

	later := request.New("repo", "http://origin/repos/contoso/later").WithPolicy(policy.Default())
	soon := request.New("repo", "http://origin/repos/contoso/soon").WithPolicy(policy.Default())
	normal := request.New("repo", "http://origin/repos/contoso/normal").WithPolicy(policy.Default())

	s.Require().NoError(s.queue.Push(ctx, []*request.Request{later}, request.PriorityLater))
	s.Require().NoError(s.queue.Push(ctx, []*request.Request{soon}, request.PrioritySoon))
	s.Require().NoError(s.queue.Push(ctx, []*request.Request{normal}, request.PriorityNormal))

	var urls []string
	for {
		delivery, err := s.queue.Pop(ctx)
		s.Require().NoError(err)
		if delivery == nil {
			break
		}
		urls = append(urls, delivery.Request.URL)
		s.Require().NoError(delivery.Done())
	}

	s.Assert().Equal([]string{
		"http://origin/repos/contoso/soon",
		"http://origin/repos/contoso/normal",
		"http://origin/repos/contoso/later",
	}, urls)
}

func (s *CrawlInfraTestSuite) TestQueueFailRedelivers() {
	ctx := context.Background()

	req := request.New("org", "http://origin/orgs/contoso").WithPolicy(policy.Default())
	s.Require().NoError(s.queue.Queue(ctx, req))

	delivery, err := s.queue.Pop(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(delivery)
	s.Require().NoError(delivery.Fail())

	// the failed request becomes eligible again
	time.Sleep(50 * time.Millisecond)
	retried, err := s.queue.Pop(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(retried)
	s.Assert().Equal(req.URL, retried.Request.URL)

	health, err := s.queue.Health()
	s.Require().NoError(err)
	s.Assert().Equal(int64(1), health.Pending)

	s.Require().NoError(retried.Done())

	health, err = s.queue.Health()
	s.Require().NoError(err)
	s.Assert().Equal(int64(0), health.Pending)
}

func (s *CrawlInfraTestSuite) TestStoreRoundTrip() {
	ctx := context.Background()

	doc := document.New("repo", "http://origin/repos/contoso/demo", map[string]interface{}{
		"id":   float64(12),
		"name": "demo",
	})
	doc.AddResource("self", urn.Entity("repo", "12"))
	doc.Meta.Etag = `"v1"`
	doc.Meta.Version = 12
	s.Require().NoError(s.store.Upsert(ctx, doc))

	got, err := s.store.Get(ctx, "repo", "http://origin/repos/contoso/demo")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Assert().Equal(urn.URN("urn:repo:12"), got.Self())
	s.Assert().Equal("demo", got.String("name"))

	etag, err := s.store.Etag(ctx, "repo", "http://origin/repos/contoso/demo")
	s.Require().NoError(err)
	s.Assert().Equal(`"v1"`, etag)

	// last writer wins on the same urn
	doc.Meta.Etag = `"v2"`
	s.Require().NoError(s.store.Upsert(ctx, doc))
	etag, err = s.store.Etag(ctx, "repo", "http://origin/repos/contoso/demo")
	s.Require().NoError(err)
	s.Assert().Equal(`"v2"`, etag)

	summaries, err := s.store.List(ctx, "repo")
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.Assert().Equal(urn.URN("urn:repo:12"), summaries[0].URN)

	s.Require().NoError(s.store.Delete(ctx, "repo", "urn:repo:12"))
	count, err := s.store.Count(ctx, "repo")
	s.Require().NoError(err)
	s.Assert().Equal(0, count)
}

func (s *CrawlInfraTestSuite) TestStateRoundTrip() {
	seeds := s.state.Accessor("seed")

	s.Require().NoError(seeds.Write("http://origin/orgs/contoso", "events"))

	var policyName string
	at, err := seeds.Read("http://origin/orgs/contoso", &policyName)
	s.Require().NoError(err)
	s.Assert().False(at.IsZero())
	s.Assert().Equal("events", policyName)

	// prefixes keep accessors apart
	var other string
	at, err = s.state.Accessor("service").Read("http://origin/orgs/contoso", &other)
	s.Require().NoError(err)
	s.Assert().True(at.IsZero())

	s.Require().NoError(seeds.Delete("http://origin/orgs/contoso"))
	at, err = seeds.Read("http://origin/orgs/contoso", &policyName)
	s.Require().NoError(err)
	s.Assert().True(at.IsZero())
}

func (s *CrawlInfraTestSuite) TestKafkaNotifyRoundTrip() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := notify.Message{
		Type: "repo",
		URN:  "urn:repo:12",
		URL:  "http://origin/repos/contoso/demo",
	}
	s.Require().NoError(s.notifier.Notify(ctx, msg))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   []string{s.kafkaAddr},
		Topic:     "ghcrawler.changes",
		Partition: 0,
		MaxWait:   time.Second,
	})
	defer reader.Close()

	received, err := reader.ReadMessage(ctx)
	s.Require().NoError(err)
	s.Assert().Equal("urn:repo:12", string(received.Key))

	var got notify.Message
	s.Require().NoError(json.Unmarshal(received.Value, &got))
	s.Assert().Equal(msg, got)
}
