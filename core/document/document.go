/*Package document holds the canonical document model of the crawler.

A document is the fetched JSON payload of a GitHub entity plus a _metadata
object carrying its type, source URL, version and typed links into the URN
graph.
*/
package document

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/ghcrawler/core/urn"
)

// Metadata is the _metadata object injected into every canonical document
type Metadata struct {
	Type        string                 `json:"type"`
	URL         string                 `json:"url"`
	Links       map[string]Link        `json:"links"`
	Version     int                    `json:"version,omitempty"`
	Etag        string                 `json:"etag,omitempty"`
	FetchedAt   string                 `json:"fetchedAt,omitempty"`
	ProcessedAt string                 `json:"processedAt,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// Document is a fetched JSON payload with canonical metadata
type Document struct {
	Body map[string]interface{}
	Meta Metadata
}

// New creates a document for the given payload. The links map is always
// non-nil, handlers populate it.
func New(typ, url string, body map[string]interface{}) *Document {
	return &Document{
		Body: body,
		Meta: Metadata{
			Type:  typ,
			URL:   url,
			Links: map[string]Link{},
		},
	}
}

// Self returns the canonical URN of the document, or the empty URN if the
// document has not been linked yet
func (d *Document) Self() urn.URN {
	if d == nil {
		return ""
	}
	if link, ok := d.Meta.Links["self"]; ok {
		return link.Href
	}
	return ""
}

// Stamp records the processing pass on the document
func (d *Document) Stamp(version int, now time.Time) {
	d.Meta.Version = version
	d.Meta.ProcessedAt = now.UTC().Format(time.RFC3339)
}

// String looks up a nested string value in the payload, following the given
// key path. It returns the empty string when any path element is missing or
// has a different shape.
func (d *Document) String(keys ...string) string {
	v := d.value(keys)
	s, _ := v.(string)
	return s
}

// ID looks up a nested identifier in the payload and renders it as URN
// segment. It returns the empty string when the path is missing.
func (d *Document) ID(keys ...string) string {
	v := d.value(keys)
	if v == nil {
		return ""
	}
	return urn.ID(v)
}

// Object looks up a nested JSON object in the payload
func (d *Document) Object(keys ...string) map[string]interface{} {
	v := d.value(keys)
	o, _ := v.(map[string]interface{})
	return o
}

// Objects looks up a nested JSON array of objects in the payload
func (d *Document) Objects(keys ...string) []map[string]interface{} {
	v := d.value(keys)
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	objects := make([]map[string]interface{}, 0, len(raw))
	for _, e := range raw {
		if o, ok := e.(map[string]interface{}); ok {
			objects = append(objects, o)
		}
	}
	return objects
}

func (d *Document) value(keys []string) interface{} {
	if d == nil || d.Body == nil {
		return nil
	}
	var v interface{} = d.Body
	for _, key := range keys {
		o, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		v, ok = o[key]
		if !ok {
			return nil
		}
	}
	return v
}

// MarshalJSON renders the payload with the _metadata object merged in
func (d *Document) MarshalJSON() ([]byte, error) {
	merged := make(map[string]interface{}, len(d.Body)+1)
	for k, v := range d.Body {
		merged[k] = v
	}
	merged["_metadata"] = d.Meta
	return json.Marshal(merged)
}

// UnmarshalJSON splits the stored form back into payload and metadata
func (d *Document) UnmarshalJSON(data []byte) error {
	var merged map[string]interface{}
	if err := json.Unmarshal(data, &merged); err != nil {
		return err
	}
	if raw, ok := merged["_metadata"]; ok {
		meta, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(meta, &d.Meta); err != nil {
			return err
		}
		delete(merged, "_metadata")
	}
	if d.Meta.Links == nil {
		d.Meta.Links = map[string]Link{}
	}
	d.Body = merged
	return nil
}
