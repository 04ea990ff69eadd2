package main

import "slowlog-digest/slowlog"

// DigestSummary aggregates the entries that share one fingerprint.
type DigestSummary struct {
	Fingerprint  string
	SQLType      string
	Sample       string
	Count        int
	TotalTime    float64
	MaxTime      float64
	TotalLock    float64
	RowsSent     uint64
	RowsExamined uint64
}

func (s *DigestSummary) add(q slowlog.Query) {
	if s.Count == 0 {
		s.Fingerprint = q.Fingerprint
		s.SQLType = q.SQLType
		s.Sample = q.Formatted
	}
	s.Count++
	s.TotalTime += q.QueryTime
	s.TotalLock += q.LockTime
	if q.QueryTime > s.MaxTime {
		s.MaxTime = q.QueryTime
	}
	s.RowsSent += q.RowsSent
	s.RowsExamined += q.RowsExamined
}

func (s *DigestSummary) AvgTime() float64 { return s.avg(s.TotalTime) }
func (s *DigestSummary) AvgLock() float64 { return s.avg(s.TotalLock) }

func (s *DigestSummary) AvgRowsSent() float64     { return s.avg(float64(s.RowsSent)) }
func (s *DigestSummary) AvgRowsExamined() float64 { return s.avg(float64(s.RowsExamined)) }

func (s *DigestSummary) avg(total float64) float64 {
	if s.Count == 0 {
		return 0
	}
	return total / float64(s.Count)
}

// QueryResult is one report section: a query over the loaded table and its rows.
type QueryResult struct {
	Title   string
	Columns []string
	Rows    [][]interface{}
	Error   error
}
