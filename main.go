package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"slowlog-digest/normalize"
	"slowlog-digest/slowlog"
)

type options struct {
	mode        string
	slowIn      string
	slowOut     string
	driver      string
	dsn         string
	table       string
	port        string
	brokers     string
	topic       string
	sasl        string
	saslUser    string
	saslPass    string
	tls         bool
	tlsInsecure bool
	digest      string
	top         int
	lang        string
	logLevel    string
	config      string
	strictStats bool

	i18n *I18n
}

// T translates a user facing message in the selected language.
func (o *options) T(key string, args ...interface{}) string {
	return o.i18n.T(o.lang, key, args...)
}

// readerOptions builds the slow log processing options selected by flags.
func (o *options) readerOptions(logger *zap.Logger, onSkip func(slowlog.Skipped)) ([]slowlog.Option, error) {
	digester, err := normalize.DigesterByName(o.digest)
	if err != nil {
		return nil, err
	}
	opts := []slowlog.Option{
		slowlog.WithLogger(logger),
		slowlog.WithDigester(digester),
		slowlog.WithSkipHandler(onSkip),
	}
	if o.strictStats {
		opts = append(opts, slowlog.WithStrictStats())
	}
	return opts, nil
}

func newFlagSet(o *options) *flag.FlagSet {
	fs := flag.NewFlagSet("slowlog-digest", flag.ContinueOnError)
	fs.StringVar(&o.mode, "mode", "", "Mode of operation: parse, aggregate, load, report, publish")

	fs.StringVar(&o.slowIn, "slow-in", "", "Path to slow query log file")
	fs.StringVar(&o.slowOut, "slow-out", "", "Path to JSON lines output (parse) or input glob (load)")
	fs.StringVar(&o.driver, "driver", "mysql", "Database driver for load/report: mysql, sqlite")
	fs.StringVar(&o.dsn, "db", "username:password@tcp(localhost:3306)/test", "Database connection string")
	fs.StringVar(&o.table, "table", "slow_query", "Name of the table to load into and report from")
	fs.StringVar(&o.port, "port", ":8081", "Report Web port")
	fs.StringVar(&o.brokers, "brokers", "", "Comma separated Kafka brokers")
	fs.StringVar(&o.topic, "topic", "", "Kafka topic")
	fs.StringVar(&o.sasl, "sasl", "", "SASL mechanism: plain, scram-sha256, scram-sha512")
	fs.StringVar(&o.saslUser, "sasl-user", "", "SASL username")
	fs.StringVar(&o.saslPass, "sasl-pass", "", "SASL password")
	fs.BoolVar(&o.tls, "tls", false, "Connect to Kafka over TLS")
	fs.BoolVar(&o.tlsInsecure, "tls-insecure", false, "Skip Kafka TLS certificate verification")
	fs.StringVar(&o.digest, "digest", "tidb", "Fingerprint digest: tidb (sha256), sha1")
	fs.IntVar(&o.top, "top", 0, "Limit aggregate output to the N most expensive fingerprints")
	fs.StringVar(&o.lang, "lang", "en", "Message language: en, zh")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&o.config, "config", "", "TOML file with flag defaults")
	fs.BoolVar(&o.strictStats, "strict-stats", false, "Abort on a malformed Query_time line instead of skipping the entry")
	return fs
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o := &options{}
	fs := newFlagSet(o)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if o.config != "" {
		if err := loadConfig(fs, o.config); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		o.slowIn = expandHome(o.slowIn, home)
		o.slowOut = expandHome(o.slowOut, home)
		if o.driver == "sqlite" {
			o.dsn = expandHome(o.dsn, home)
		}
	}

	i18n, err := NewI18n("en")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if !i18n.Supports(o.lang) {
		fmt.Fprintf(stderr, "unsupported -lang %q\n", o.lang)
		return 2
	}
	o.i18n = i18n
	if o.mode == "" {
		fmt.Fprintln(stdout, o.T("usage"))
		return 1
	}

	logger := newLogger(stderr, o.logLevel, o.mode == "parse" && o.slowOut == "")
	defer logger.Sync()
	defer zap.ReplaceGlobals(logger)()

	switch o.mode {
	case "parse":
		err = ParseLogs(o, stdout)
	case "aggregate":
		err = Aggregate(o, stdout)
	case "load":
		err = LoadData(ctx, o)
	case "report":
		err = Report(ctx, o)
	case "publish":
		err = Publish(ctx, o)
	default:
		fmt.Fprintln(stdout, o.T("invalid_mode", o.mode))
		return 1
	}
	if err != nil {
		logger.Error(o.T("mode_failed", o.mode), zap.Error(err))
		return 1
	}
	return 0
}
