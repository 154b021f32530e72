package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/ghcrawler/core/csql"
	"github.com/relabs-tech/ghcrawler/core/logger"
	"github.com/relabs-tech/ghcrawler/core/request"
)

// Postgres is the postgres implementation of the crawl queue. Requests are
// rows in a single table; Pop claims the next row with FOR UPDATE SKIP
// LOCKED, so any number of crawler processes can share one queue. Failed
// requests are retried a few times with increasing timeout before they are
// left behind as deadletters.
type Postgres struct {
	db *csql.DB

	insertQuery string
	popQuery    string
	deleteQuery string
	failQuery   string
}

// NewPostgres creates the request table in the database's schema (if it
// does not exist) and returns the queue
func NewPostgres(db *csql.DB) *Postgres {
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `."_request_"
(serial SERIAL,
priority INTEGER NOT NULL DEFAULT 2,
type VARCHAR NOT NULL,
url VARCHAR NOT NULL,
body JSON NOT NULL,
context JSON NOT NULL DEFAULT'{}'::jsonb,
timestamp TIMESTAMP NOT NULL DEFAULT now(),
attempts_left INTEGER NOT NULL,
scheduled_at TIMESTAMP,
PRIMARY KEY(serial)
);
CREATE index IF NOT EXISTS requests_priority_index ON ` + db.Schema + `._request_(priority,serial);
CREATE index IF NOT EXISTS requests_scheduled_at_index ON ` + db.Schema + `._request_(scheduled_at);
`)
	if err != nil {
		panic(err)
	}

	q := &Postgres{db: db}

	q.insertQuery = `INSERT INTO ` + db.Schema + `."_request_"
(priority,type,url,body,context,timestamp,attempts_left)
VALUES($1,$2,$3,$4,$5,$6,4);`

	q.popQuery = `UPDATE ` + db.Schema + `."_request_"
SET attempts_left = attempts_left - 1,
scheduled_at = CASE WHEN attempts_left>3 then $2 WHEN attempts_left=3 THEN $3 ELSE $4 END::TIMESTAMP
WHERE serial = (
SELECT serial
 FROM ` + db.Schema + `."_request_"
 WHERE attempts_left > 0 AND (scheduled_at IS NULL OR $1 > scheduled_at)
 ORDER BY priority, serial
 FOR UPDATE SKIP LOCKED
 LIMIT 1
)
RETURNING serial, body, context;`

	q.deleteQuery = `DELETE FROM ` + db.Schema + `."_request_"
WHERE serial = $1 AND attempts_left < 4 RETURNING serial;`

	q.failQuery = `UPDATE ` + db.Schema + `."_request_"
SET scheduled_at = $2 WHERE serial = $1;`

	return q
}

// Queue enqueues a single request at normal priority
func (q *Postgres) Queue(ctx context.Context, req *request.Request) error {
	return q.Push(ctx, []*request.Request{req}, request.PriorityNormal)
}

// Push bulk-enqueues requests at the given priority in one transaction
func (q *Postgres) Push(ctx context.Context, reqs []*request.Request, priority request.Priority) error {
	if len(reqs) == 0 {
		return nil
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("push: %s", err.Error())
	}
	now := time.Now().UTC()
	contextData := logger.SerializeLoggerContext(ctx)
	for _, req := range reqs {
		body, err := json.Marshal(req)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err = tx.ExecContext(ctx, q.insertQuery,
			rank(priority), req.Type, req.URL, body, contextData, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("push %s %s: %s", req.Type, req.URL, err.Error())
		}
	}
	return tx.Commit()
}

// Pop claims the next request in priority order. The claim decrements the
// attempts counter and blocks the row for a retry window, Done releases the
// row for good.
func (q *Postgres) Pop(ctx context.Context) (*Delivery, error) {
	now := time.Now().UTC()
	var (
		serial      int
		body        []byte
		contextData []byte
	)
	err := q.db.QueryRowContext(ctx, q.popQuery,
		now,
		now.Add(5*time.Minute),  // first retry timeout
		now.Add(15*time.Minute), // second retry timeout
		now.Add(45*time.Minute), // third retry timeout before we give up
	).Scan(&serial, &body, &contextData)
	if err == csql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop: %s", err.Error())
	}

	req := &request.Request{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("pop #%d: corrupt request: %s", serial, err.Error())
	}

	return &Delivery{
		Request: req,
		Done: func() error {
			var deleted int
			err := q.db.QueryRow(q.deleteQuery, serial).Scan(&deleted)
			if err != nil && err != csql.ErrNoRows {
				return fmt.Errorf("done #%d: %s", serial, err.Error())
			}
			return nil
		},
		Fail: func() error {
			// make the row eligible again right away, the attempts
			// counter was already decremented by the claim
			_, err := q.db.Exec(q.failQuery, serial, time.Now().UTC())
			return err
		},
	}, nil
}

// Health reports queue depth and deadletter counters
type Health struct {
	Pending int64 `json:"pending"`
	Failing int64 `json:"failing"`
	Failed  int64 `json:"failed"`
	Overdue int64 `json:"overdue"`
}

// Health returns the queue's health counters. Failed requests are
// deadletters that exhausted their attempts.
func (q *Postgres) Health() (Health, error) {
	health := Health{}

	pendingQuery := `SELECT count(*) from ` + q.db.Schema + `._request_ WHERE attempts_left > 0;`
	if err := q.db.QueryRow(pendingQuery).Scan(&health.Pending); err != nil {
		return health, err
	}

	failingQuery := `SELECT count(*) from ` + q.db.Schema + `._request_ WHERE attempts_left > 0 AND attempts_left < 3;`
	if err := q.db.QueryRow(failingQuery).Scan(&health.Failing); err != nil {
		return health, err
	}

	failedQuery := `SELECT count(*) from ` + q.db.Schema + `._request_ WHERE attempts_left = 0;`
	if err := q.db.QueryRow(failedQuery).Scan(&health.Failed); err != nil {
		return health, err
	}

	tenMinutesAgo := time.Now().UTC().Add(-10 * time.Minute)
	overdueQuery := `SELECT count(*) from ` + q.db.Schema + `._request_ WHERE attempts_left > 0 AND
((scheduled_at IS NULL AND $1 > timestamp) OR (scheduled_at IS NOT NULL AND $1 > scheduled_at));`
	if err := q.db.QueryRow(overdueQuery, tenMinutesAgo).Scan(&health.Overdue); err != nil {
		return health, err
	}

	return health, nil
}

// Purge deletes deadletters, i.e. requests that exhausted their attempts
func (q *Postgres) Purge() error {
	_, err := q.db.Exec(`DELETE from ` + q.db.Schema + `._request_ WHERE attempts_left = 0;`)
	return err
}
