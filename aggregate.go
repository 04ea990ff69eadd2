package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/zap"
	"golang.org/x/term"

	"slowlog-digest/slowlog"
)

// Aggregate groups the entries of -slow-in by fingerprint and prints one
// line per fingerprint, most expensive in total first.
func Aggregate(o *options, stdout io.Writer) error {
	if o.slowIn == "" {
		return errors.New(o.T("missing_flags", "aggregate", "-slow-in"))
	}

	opts, err := o.readerOptions(zap.L(), nil)
	if err != nil {
		return err
	}

	agg := newAggregator()
	if err := slowlog.ProcessFile(o.slowIn, agg.add, opts...); err != nil {
		return err
	}
	return agg.write(stdout, o.top, o.T("aggregate_header", len(agg.byDigest), agg.total))
}

type aggregator struct {
	byDigest map[string]*DigestSummary
	total    int
}

func newAggregator() *aggregator {
	return &aggregator{byDigest: make(map[string]*DigestSummary)}
}

func (a *aggregator) add(q slowlog.Query) {
	s, ok := a.byDigest[q.Fingerprint]
	if !ok {
		s = &DigestSummary{}
		a.byDigest[q.Fingerprint] = s
	}
	s.add(q)
	a.total++
}

// sorted returns summaries by total query time descending, ties by count
// then fingerprint. top > 0 truncates.
func (a *aggregator) sorted(top int) []*DigestSummary {
	out := make([]*DigestSummary, 0, len(a.byDigest))
	for _, s := range a.byDigest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTime != out[j].TotalTime {
			return out[i].TotalTime > out[j].TotalTime
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out
}

var aggregateColumns = []string{
	"fingerprint", "type", "count", "total_s", "avg_s", "max_s",
	"avg_lock_s", "avg_rows_sent", "avg_rows_examined", "sample",
}

// write renders a table when w is a terminal and TSV for pipes.
func (a *aggregator) write(w io.Writer, top int, header string) error {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return a.writeTable(w, top, header)
	}
	return a.writeTSV(w, top)
}

func (a *aggregator) writeTSV(w io.Writer, top int) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, strings.Join(aggregateColumns, "\t"))
	for _, s := range a.sorted(top) {
		fmt.Fprintln(bw, strings.Join(summaryRow(s, s.Fingerprint), "\t"))
	}
	return bw.Flush()
}

func (a *aggregator) writeTable(w io.Writer, top int, header string) error {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers(aggregateColumns...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, s := range a.sorted(top) {
		t.Row(summaryRow(s, shortDigest(s.Fingerprint))...)
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n", lipgloss.NewStyle().Bold(true).Render(header), t.Render())
	return err
}

func summaryRow(s *DigestSummary, digest string) []string {
	return []string{
		digest,
		s.SQLType,
		strconv.Itoa(s.Count),
		strconv.FormatFloat(s.TotalTime, 'f', 6, 64),
		strconv.FormatFloat(s.AvgTime(), 'f', 6, 64),
		strconv.FormatFloat(s.MaxTime, 'f', 6, 64),
		strconv.FormatFloat(s.AvgLock(), 'f', 6, 64),
		strconv.FormatFloat(s.AvgRowsSent(), 'f', 1, 64),
		strconv.FormatFloat(s.AvgRowsExamined(), 'f', 1, 64),
		strings.ReplaceAll(s.Sample, "\t", " "),
	}
}

func shortDigest(d string) string {
	if len(d) > 16 {
		return d[:16]
	}
	return d
}
