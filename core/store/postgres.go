package store

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/ghcrawler/core/csql"
	"github.com/relabs-tech/ghcrawler/core/document"
	"github.com/relabs-tech/ghcrawler/core/urn"
)

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 30 * time.Second
)

// Postgres is the postgres implementation of the document store
type Postgres struct {
	db    *csql.DB
	cache *readCache
}

// NewPostgres creates the document table in the database's schema (if it
// does not exist) and returns the store
func NewPostgres(db *csql.DB) *Postgres {
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `."_document_"
(urn varchar NOT NULL,
type varchar NOT NULL,
url varchar NOT NULL,
document json NOT NULL,
version integer NOT NULL DEFAULT 0,
etag varchar NOT NULL DEFAULT '',
processed_at timestamp NOT NULL,
PRIMARY KEY(urn)
);
CREATE index IF NOT EXISTS document_type_url_index ON ` + db.Schema + `."_document_"(type,url);`)

	if err != nil {
		panic(err)
	}
	return &Postgres{
		db:    db,
		cache: newReadCache(defaultCacheSize, defaultCacheTTL),
	}
}

// Get returns the stored document for the given type and source URL. The
// read goes through the process-local TTL cache.
func (s *Postgres) Get(ctx context.Context, typ, url string) (*document.Document, error) {
	if doc, ok := s.cache.get(url); ok {
		return doc, nil
	}

	var rawDocument json.RawMessage
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM `+s.db.Schema+`."_document_" WHERE type=$1 AND url=$2;`,
		typ, url).Scan(&rawDocument)
	if err == csql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %v: %w", typ, url, err, ErrUnavailable)
	}

	doc := &document.Document{}
	if err = json.Unmarshal(rawDocument, doc); err != nil {
		return nil, fmt.Errorf("get %s %s: corrupt document: %s", typ, url, err.Error())
	}
	s.cache.put(url, doc)
	return doc, nil
}

// Etag returns the stored etag for the given type and source URL
func (s *Postgres) Etag(ctx context.Context, typ, url string) (string, error) {
	var etag string
	err := s.db.QueryRowContext(ctx,
		`SELECT etag FROM `+s.db.Schema+`."_document_" WHERE type=$1 AND url=$2;`,
		typ, url).Scan(&etag)
	if err == csql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("etag %s %s: %v: %w", typ, url, err, ErrUnavailable)
	}
	return etag, nil
}

// Upsert writes the document keyed by its self URN, last writer wins
func (s *Postgres) Upsert(ctx context.Context, doc *document.Document) error {
	self := doc.Self()
	if self == "" {
		return fmt.Errorf("upsert %s %s: document has no self link", doc.Meta.Type, doc.Meta.URL)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.db.Schema+`."_document_"(urn,type,url,document,version,etag,processed_at)
VALUES($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (urn) DO UPDATE SET type=$2,url=$3,document=$4,version=$5,etag=$6,processed_at=$7;`,
		string(self), doc.Meta.Type, doc.Meta.URL, string(body), doc.Meta.Version, doc.Meta.Etag, now)
	if err != nil {
		return fmt.Errorf("upsert %s: %v: %w", self, err, ErrUnavailable)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("could not upsert %s", self)
	}
	s.cache.drop(doc.Meta.URL)
	return nil
}

// List returns summaries of all stored documents of one type
func (s *Postgres) List(ctx context.Context, typ string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT urn, url, version, etag, processed_at FROM `+s.db.Schema+`."_document_" WHERE type=$1 ORDER BY urn;`,
		typ)
	if err != nil {
		return nil, fmt.Errorf("list %s: %v: %w", typ, err, ErrUnavailable)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var summary Summary
		if err := rows.Scan(&summary.URN, &summary.URL, &summary.Version, &summary.Etag, &summary.ProcessedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// Delete removes the document with the given URN
func (s *Postgres) Delete(ctx context.Context, typ string, u urn.URN) error {
	var url string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM `+s.db.Schema+`."_document_" WHERE type=$1 AND urn=$2 RETURNING url;`,
		typ, string(u)).Scan(&url)
	if err == csql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s: %v: %w", u, err, ErrUnavailable)
	}
	s.cache.drop(url)
	return nil
}

// Count returns the number of stored documents of one type
func (s *Postgres) Count(ctx context.Context, typ string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM `+s.db.Schema+`."_document_" WHERE type=$1;`,
		typ).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %v: %w", typ, err, ErrUnavailable)
	}
	return count, nil
}
