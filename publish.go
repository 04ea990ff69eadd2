package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"

	"slowlog-digest/slowlog"
)

const publishBatch = 100

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publish sends every normalized entry of -slow-in to -topic, keyed by
// fingerprint so one query shape always lands on the same partition.
func Publish(ctx context.Context, o *options) error {
	brokers := splitBrokers(o.brokers)
	if o.slowIn == "" || len(brokers) == 0 || o.topic == "" {
		return errors.New(o.T("missing_flags", "publish", "-slow-in, -brokers, -topic"))
	}

	transport, err := buildTransport(o)
	if err != nil {
		return err
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        o.topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    publishBatch,
		BatchTimeout: 50 * time.Millisecond,
		Transport:    transport,
	}

	zap.L().Info(o.T("publish_connect"),
		zap.Strings("brokers", brokers),
		zap.String("topic", o.topic),
		zap.String("sasl", saslSummary(o)),
		zap.Bool("tls", o.tls),
	)

	n, err := publishRecords(ctx, o, w)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close kafka writer: %w", cerr)
	}
	if err != nil {
		return err
	}
	zap.L().Info(o.T("publish_complete"), zap.Int("messages", n))
	return nil
}

func publishRecords(ctx context.Context, o *options, w messageWriter) (int, error) {
	f, err := os.Open(o.slowIn)
	if err != nil {
		return 0, fmt.Errorf("open slow log %s: %w", o.slowIn, err)
	}
	defer f.Close()

	opts, err := o.readerOptions(zap.L(), nil)
	if err != nil {
		return 0, err
	}

	var (
		pending []kafka.Message
		sent    int
		pubErr  error
	)
	flush := func() {
		if pubErr != nil || len(pending) == 0 {
			return
		}
		if err := w.WriteMessages(ctx, pending...); err != nil {
			pubErr = fmt.Errorf("write messages: %w", err)
			return
		}
		sent += len(pending)
		pending = nil
	}

	err = slowlog.ProcessReader(contextReader{ctx, f}, func(q slowlog.Query) {
		if pubErr != nil {
			return
		}
		msg, err := newMessage(q)
		if err != nil {
			pubErr = err
			return
		}
		pending = append(pending, msg)
		if len(pending) == publishBatch {
			flush()
		}
	}, opts...)
	if err != nil {
		return sent, err
	}
	flush()
	return sent, pubErr
}

func newMessage(q slowlog.Query) (kafka.Message, error) {
	value, err := json.Marshal(q)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode record: %w", err)
	}
	return kafka.Message{
		Key:   []byte(q.Fingerprint),
		Value: value,
		Time:  q.Time,
		Headers: []kafka.Header{
			{Key: "sql_type", Value: []byte(q.SQLType)},
		},
	}, nil
}

// contextReader stops the slow log scan once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func buildTransport(o *options) (*kafka.Transport, error) {
	t := &kafka.Transport{
		DialTimeout: 10 * time.Second,
	}
	if o.tls {
		t.TLS = &tls.Config{
			InsecureSkipVerify: o.tlsInsecure,
			MinVersion:         tls.VersionTLS12,
		}
	}
	switch strings.ToLower(strings.TrimSpace(o.sasl)) {
	case "":
		// no SASL
	case "plain":
		t.SASL = plain.Mechanism{
			Username: o.saslUser,
			Password: o.saslPass,
		}
	case "scram-sha256":
		mech, err := scram.Mechanism(scram.SHA256, o.saslUser, o.saslPass)
		if err != nil {
			return nil, fmt.Errorf("scram-sha256: %w", err)
		}
		t.SASL = mech
	case "scram-sha512":
		mech, err := scram.Mechanism(scram.SHA512, o.saslUser, o.saslPass)
		if err != nil {
			return nil, fmt.Errorf("scram-sha512: %w", err)
		}
		t.SASL = mech
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", o.sasl)
	}
	return t, nil
}

func saslSummary(o *options) string {
	if o.sasl == "" {
		return "none"
	}
	if o.saslUser != "" {
		return o.sasl + "(user=" + o.saslUser + ")"
	}
	return o.sasl
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
