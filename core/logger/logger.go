/*Package logger provides context loggers for the crawler.

Every crawl request gets a logger carrying a crawl ID, so that all log
statements produced while fetching and processing one request can be
correlated. The crawl ID travels with the request through the queues.
*/
package logger

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextLoggerValues struct {
	CrawlID string `json:"crawlID"`
}

// Type for the context keys
type contextKeyCrawlLoggerType struct{}

var contextKeyCrawlLogger = &contextKeyCrawlLoggerType{}

// Context key for the crawl ID
const crawlIDLoggerKey string = "crawlID"

// InitLogger sets up the custom time formatter for all log statements.
func InitLogger(logLevel logrus.Level) {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	logrus.SetFormatter(customFormatter)
	customFormatter.FullTimestamp = true
	logrus.SetLevel(logLevel)
}

// AddCrawlID adds a logger with a new crawl ID if no logger exists yet for
// the context. This is used for the service's HTTP surface.
func AddCrawlID(router *mux.Router) {

	withID := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, _ := ContextWithLogger(r.Context())
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	router.Use(withID)
}

// Default returns a logger without a crawl ID.
func Default() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// ContextWithLogger returns a new context with a logger if the given context
// has no logger yet. If the context already has a logger the given context
// will be returned.
func ContextWithLogger(ctx context.Context) (context.Context, *logrus.Entry) {
	if ctx == nil {
		ctx = context.Background()
	} else {
		rlog := loggerFromContext(ctx)
		if rlog != nil {
			return ctx, rlog
		}
	}
	id, _ := uuid.NewUUID()
	rlog := logrus.WithField(crawlIDLoggerKey, id.String())
	return context.WithValue(ctx, contextKeyCrawlLogger, rlog), rlog
}

// ContextWithLoggerFromData returns a context with a logger. If the context
// does not have a logger yet, the logger is constructed from the provided
// serialized data, typically read back from a queue. If the construction
// fails because of invalid data a new logger is created and added to the
// context.
func ContextWithLoggerFromData(ctx context.Context, data []byte) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	rlog := loggerFromContext(ctx)
	if rlog != nil {
		return ctx
	}

	var ok bool
	ctx, ok = deserializeLoggerContext(ctx, data)
	if !ok {
		ctx, _ = ContextWithLogger(ctx)
	}
	return ctx
}

func loggerFromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return nil
	}
	rlog, ok := ctx.Value(contextKeyCrawlLogger).(*logrus.Entry)
	if !ok {
		return nil
	}
	return rlog
}

// FromContext returns the logger from the context. If the context does not
// have a logger a new logger is returned. If the provided context is nil,
// the default logger will be returned.
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	rlog := loggerFromContext(ctx)
	if rlog == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return rlog
}

// SerializeLoggerContext extracts the logger from the context and returns a
// json representation of the relevant parameters. Queues store this blob
// next to the request.
func SerializeLoggerContext(ctx context.Context) []byte {
	ctxValues := loggerValues(ctx)
	if ctxValues.CrawlID == "" {
		return []byte("{}")
	}

	res, err := json.Marshal(ctxValues)
	if err != nil {
		return []byte("{}")
	}
	return res
}

// CrawlIDFromContext returns the crawl id for the given context.
func CrawlIDFromContext(ctx context.Context) string {
	v := loggerValues(ctx)
	return v.CrawlID
}

func loggerValues(ctx context.Context) contextLoggerValues {
	var ctxValues contextLoggerValues

	if ctx == nil {
		return ctxValues
	}
	rlog, ok := ctx.Value(contextKeyCrawlLogger).(*logrus.Entry)
	if !ok {
		return ctxValues
	}

	if rlog.Data[crawlIDLoggerKey] != nil {
		if s, ok := rlog.Data[crawlIDLoggerKey].(string); ok {
			ctxValues.CrawlID = s
		}
	}
	return ctxValues
}

// deserializeLoggerContext creates a logger from the provided json data and
// returns a new context with this logger.
func deserializeLoggerContext(ctx context.Context, data []byte) (context.Context, bool) {
	var ctxValues contextLoggerValues
	err := json.Unmarshal(data, &ctxValues)
	if err != nil || len(ctxValues.CrawlID) < 1 {
		return ctx, false
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rlog := logrus.WithField(crawlIDLoggerKey, ctxValues.CrawlID)
	return context.WithValue(ctx, contextKeyCrawlLogger, rlog), true
}
