// Package slowlog assembles MySQL slow query log text into normalized,
// fingerprinted query records.
//
// Lines are classified one at a time. SQL text is collected until the next
// "# User@Host:" header, at which point the collected statement is
// normalized and handed to the caller's Sink together with the header
// stats that preceded it. Processing is synchronous: the sink runs to
// completion before the next line is read.
package slowlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"slowlog-digest/normalize"
)

// DefaultMaxLineSize bounds a single log line; longer lines fail the read.
const DefaultMaxLineSize = 512 * 1024 * 1024

type options struct {
	logger      *zap.Logger
	normalizer  *normalize.Normalizer
	digester    normalize.Digester
	clock       clock.Clock
	strictStats bool
	onSkip      func(Skipped)
	maxLineSize int
}

// Option configures a processing call.
type Option func(*options)

// WithLogger sets the diagnostic logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNormalizer sets the statement normalizer. A Normalizer must not be
// shared between concurrent calls. Defaults to a fresh normalize.New().
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(o *options) { o.normalizer = n }
}

// WithDigester sets the fingerprint function. Defaults to the TiDB digest.
func WithDigester(d normalize.Digester) Option {
	return func(o *options) { o.digester = d }
}

// WithClock sets the clock supplying the timestamp used until the first
// "# Time:" header is seen.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithStrictStats makes a malformed "# Query_time:" line abort processing
// with its *StatsError instead of skipping the entry it belongs to.
func WithStrictStats() Option {
	return func(o *options) { o.strictStats = true }
}

// WithSkipHandler is called for every entry that is dropped because its
// statement does not normalize or its stats line is malformed.
func WithSkipHandler(fn func(Skipped)) Option {
	return func(o *options) { o.onSkip = fn }
}

// WithMaxLineSize overrides DefaultMaxLineSize.
func WithMaxLineSize(n int) Option {
	return func(o *options) { o.maxLineSize = n }
}

func buildOptions(opts []Option) *options {
	o := &options{maxLineSize: DefaultMaxLineSize}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.L()
	}
	if o.normalizer == nil {
		o.normalizer = normalize.New()
	}
	if o.digester == nil {
		o.digester = normalize.TiDBDigester{}
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	return o
}

// ProcessFile processes the slow log at path.
func ProcessFile(path string, sink Sink, opts ...Option) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open slow log %s: %w", path, err)
	}
	defer f.Close()
	return ProcessReader(f, sink, opts...)
}

// ProcessReader processes slow log text from r, calling sink once per
// normalized entry. Read errors abort the call; entries that fail to
// normalize are logged, reported to the skip handler and skipped.
// SQL collected after the last "# User@Host:" header is discarded.
func ProcessReader(r io.Reader, sink Sink, opts ...Option) error {
	o := buildOptions(opts)
	acc := newAccumulator(o.clock.Now().UTC())

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, o.maxLineSize)), o.maxLineSize)

	for scanner.Scan() {
		line, err := Classify(scanner.Text())
		if err != nil {
			var se *StatsError
			if o.strictStats || !errors.As(err, &se) {
				return err
			}
			o.logger.Warn("malformed stats line", zap.String("line", se.Line), zap.Error(err))
			acc.markBroken(err)
			continue
		}

		switch line.Kind {
		case KindNoise:
			if line.Text != "" {
				o.logger.Debug("ignoring header comment", zap.String("line", line.Text))
			}
		case KindTimestamp:
			acc.setTime(line.Time)
		case KindStats:
			acc.setStats(line)
		case KindSession:
			acc.setSession(line)
		case KindUserHost:
			if entry, ok, broken := acc.flush(); ok {
				if broken != nil {
					o.skip(entry, broken)
				} else {
					o.emit(entry, sink)
				}
			}
			acc.begin(line)
		case KindFragment:
			acc.appendFragment(line.Text)
		default:
			return fmt.Errorf("unhandled line kind %s", line.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read slow log: %w", err)
	}
	return nil
}

func (o *options) emit(entry RawEntry, sink Sink) {
	formatted, err := o.normalizer.Normalize(entry.SQL)
	if err != nil {
		o.skip(entry, err)
		return
	}
	sink(Query{
		Query:       entry.SQL,
		Formatted:   formatted,
		Fingerprint: o.digester.Digest(formatted),
		SQLType:     normalize.SQLType(formatted),
		Stats:       entry.Stats,
	})
}

func (o *options) skip(entry RawEntry, err error) {
	o.logger.Warn("skipping slow log entry",
		zap.String("sql", entry.SQL),
		zap.String("user", entry.Stats.User),
		zap.Time("ts", entry.Stats.Time),
		zap.Error(err),
	)
	if o.onSkip != nil {
		o.onSkip(Skipped{Entry: entry, Err: err})
	}
}
