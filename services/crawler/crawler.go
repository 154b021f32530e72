// The crawler service runs the GitHub crawl loop against postgres, with a
// small operational HTTP surface for health and version.
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/ghcrawler/core/blob"
	"github.com/relabs-tech/ghcrawler/core/config"
	"github.com/relabs-tech/ghcrawler/core/crawler"
	"github.com/relabs-tech/ghcrawler/core/csql"
	"github.com/relabs-tech/ghcrawler/core/fetch"
	"github.com/relabs-tech/ghcrawler/core/logger"
	"github.com/relabs-tech/ghcrawler/core/notify"
	"github.com/relabs-tech/ghcrawler/core/policy"
	"github.com/relabs-tech/ghcrawler/core/processor"
	"github.com/relabs-tech/ghcrawler/core/queue"
	"github.com/relabs-tech/ghcrawler/core/state"
	"github.com/relabs-tech/ghcrawler/core/store"
)

// Version is the version of the current build, set at link time
var Version = "unset"

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres     string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	Schema       string `env:"SCHEMA,default=ghcrawler" description:"the database schema of this deployment"`
	Port         string `env:"PORT,default=3000" description:"the port the HTTP surface listens on"`
	GithubToken  string `env:"GITHUB_TOKEN,default=" description:"a GitHub personal access token"`
	CrawlConfig  string `env:"CRAWL_CONFIG,required" description:"path to the crawl configuration file"`
	BlobFolder   string `env:"BLOB_FOLDER,default=" description:"folder for the raw payload archive, empty disables archiving"`
	KafkaBrokers string `env:"KAFKA_BROKERS,default=" description:"comma separated kafka brokers, empty disables notifications"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=ghcrawler.changes" description:"the kafka topic for change notifications"`
	Concurrency  int    `env:"CONCURRENCY,default=4" description:"number of parallel crawl workers"`
}

func main() {
	logger.InitLogger(logrus.InfoLevel)
	rlog := logger.Default()

	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	configJSON, err := os.ReadFile(service.CrawlConfig)
	if err != nil {
		panic(err)
	}
	crawlConfig, err := config.Parse(configJSON)
	if err != nil {
		panic(err)
	}

	db := csql.OpenWithSchema(service.Postgres, service.Schema)
	defer db.Close()

	documents := store.NewPostgres(db)
	requests := queue.NewPostgres(db)
	crawlState := state.New(db)

	if err := crawlState.Accessor("service").Write("version", Version); err != nil {
		panic(err)
	}

	var archive blob.Driver = blob.None{}
	if service.BlobFolder != "" {
		archive, err = blob.NewFilesystem(service.BlobFolder)
		if err != nil {
			panic(err)
		}
	}

	var notifier notify.Notifier = notify.None{}
	if service.KafkaBrokers != "" {
		kafkaConfig := notify.KafkaConfiguration{}
		if err := envdecode.Decode(&kafkaConfig); err != nil {
			panic(err)
		}
		notifier, err = notify.NewKafka(kafkaConfig)
		if err != nil {
			panic(err)
		}
		defer notifier.Close()
	}

	var tokens fetch.TokenSource
	if service.GithubToken != "" {
		tokens = fetch.StaticToken(service.GithubToken)
	}

	c := crawler.New(&crawler.Builder{
		Queue:       requests,
		Fetcher:     fetch.New(nil, tokens, documents),
		Processor:   processor.New(documents, requests),
		Store:       documents,
		Blobs:       archive,
		Notifier:    notifier,
		Concurrency: service.Concurrency,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seeds, err := crawlConfig.Requests()
	if err != nil {
		panic(err)
	}
	seeded := crawlState.Accessor("seed")
	for _, seed := range seeds {
		var lastPolicy policy.TraversalPolicy
		if at, err := seeded.Read(seed.URL, &lastPolicy); err == nil && !at.IsZero() {
			rlog.Infoln("seed", seed.URL, "last pushed", at)
		}
	}
	if err := c.Seed(ctx, seeds); err != nil {
		panic(err)
	}
	for _, seed := range seeds {
		if err := seeded.Write(seed.URL, seed.Policy); err != nil {
			rlog.Warnln("record seed:", err)
		}
	}
	c.RunAsync(ctx, 0)

	router := mux.NewRouter()
	logger.AddCrawlID(router)
	handleVersion(router)
	handleHealth(router, requests)

	rlog.Infoln("listen on port :" + service.Port)
	http.ListenAndServe(":"+service.Port, handlers.CompressHandler(router))
}

func handleVersion(router *mux.Router) {
	router.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		data, _ := json.Marshal(map[string]string{"version": Version})
		w.Write(data)
	}).Methods(http.MethodOptions, http.MethodGet)
}

func handleHealth(router *mux.Router, requests *queue.Postgres) {
	router.HandleFunc("/ghcrawler/health", func(w http.ResponseWriter, r *http.Request) {
		health, err := requests.Health()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		data, _ := json.Marshal(health)
		w.Write(data)
	}).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/ghcrawler/health/purge", func(w http.ResponseWriter, r *http.Request) {
		if err := requests.Purge(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodOptions, http.MethodPost)
}
