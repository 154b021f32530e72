/*Package state provides persistent crawl bookkeeping in a SQL database.

The crawler uses it to remember things that must survive restarts but do
not belong into the document store, like the deployed service version and
the time each configured seed was last pushed.

The package uses JSON to serialize the data.
*/
package state

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/ghcrawler/core/csql"
)

// New creates the state table in the database's schema (if it does not
// exist) and returns the state store
func New(db *csql.DB) State {
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `."_state_"
(key varchar NOT NULL,
value json NOT NULL,
timestamp timestamp NOT NULL,
PRIMARY KEY(key)
);`)

	if err != nil {
		panic(err)
	}
	return State{db: db}
}

// State is a persistent key value store for crawl bookkeeping
type State struct {
	db *csql.DB
}

// Accessor is an accessor with optional prefix
type Accessor struct {
	Prefix string
	State  State
}

// Accessor returns a state accessor with prefix
func (s State) Accessor(prefix string) Accessor {
	return Accessor{
		Prefix: prefix,
		State:  s,
	}
}

// Read reads a value. It returns the time when the value was written, or
// a zero timestamp if there is no value.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (a Accessor) Read(key string, value interface{}) (time.Time, error) {
	var (
		rawValue  json.RawMessage
		timestamp time.Time
	)
	if len(a.Prefix) > 0 {
		key = a.Prefix + ":" + key
	}

	err := a.State.db.QueryRow(
		`SELECT value, timestamp FROM `+a.State.db.Schema+`."_state_" WHERE key=$1;`,
		key).Scan(&rawValue, &timestamp)
	if err == csql.ErrNoRows {
		return timestamp, nil
	}
	if err != nil {
		return timestamp, fmt.Errorf("cannot read key '%s': %s", key, err.Error())
	}
	err = json.Unmarshal(rawValue, &value)

	return timestamp, err
}

// Write writes a value.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (a Accessor) Write(key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if len(a.Prefix) > 0 {
		key = a.Prefix + ":" + key
	}
	now := time.Now().UTC()
	res, err := a.State.db.Exec(
		`INSERT INTO `+a.State.db.Schema+`."_state_"(key,value,timestamp)
VALUES($1,$2,$3)
ON CONFLICT (key) DO UPDATE SET value=$2,timestamp=$3;`,
		key, string(body), now)

	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("could not write key %s", key)
	}
	return nil
}

// Delete deletes a value.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (a Accessor) Delete(key string) error {
	if len(a.Prefix) > 0 {
		key = a.Prefix + ":" + key
	}
	_, err := a.State.db.Exec(
		`DELETE FROM `+a.State.db.Schema+`."_state_" WHERE key=$1;`,
		key)

	return err
}
