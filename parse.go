package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"slowlog-digest/slowlog"
)

// ParseLogs writes every normalized entry of -slow-in as one JSON line to
// -slow-out, or to stdout when -slow-out is empty.
func ParseLogs(o *options, stdout io.Writer) (err error) {
	if o.slowIn == "" {
		return errors.New(o.T("missing_flags", "parse", "-slow-in"))
	}

	out := stdout
	if o.slowOut != "" {
		f, cerr := os.Create(o.slowOut)
		if cerr != nil {
			return fmt.Errorf("create output file: %w", cerr)
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close output file: %w", cerr)
			}
		}()
		out = f
	}

	start := time.Now()
	w := bufio.NewWriter(out)
	n, skipped, err := writeRecords(o, w)
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	zap.L().Info(o.T("parsing_complete"),
		zap.String("file", o.slowIn),
		zap.Int("entries", n),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func writeRecords(o *options, w io.Writer) (n, skipped int, err error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	opts, err := o.readerOptions(zap.L(), func(slowlog.Skipped) { skipped++ })
	if err != nil {
		return 0, 0, err
	}

	var writeErr error
	err = slowlog.ProcessFile(o.slowIn, func(q slowlog.Query) {
		if writeErr != nil {
			return
		}
		if writeErr = enc.Encode(q); writeErr == nil {
			n++
		}
	}, opts...)
	if err != nil {
		return n, skipped, err
	}
	if writeErr != nil {
		return n, skipped, fmt.Errorf("write output: %w", writeErr)
	}
	return n, skipped, nil
}
