package slowlog

import "time"

// Stats is the header metadata of one slow log entry.
type Stats struct {
	User         string    `json:"user"`
	Host         string    `json:"host"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Schema       string    `json:"schema,omitempty"`
	Time         time.Time `json:"ts"`
	QueryTime    float64   `json:"query_time"`
	LockTime     float64   `json:"lock_time"`
	RowsSent     uint64    `json:"rows_sent"`
	RowsExamined uint64    `json:"rows_examined"`
}

// RawEntry is an assembled statement before normalization.
type RawEntry struct {
	SQL   string
	Stats Stats
}

// Query is a normalized slow log entry, the payload handed to a Sink.
type Query struct {
	// Query is the statement as logged, trimmed.
	Query string `json:"query"`
	// Formatted is the statement with every literal replaced by "?".
	Formatted   string `json:"formatted"`
	Fingerprint string `json:"fingerprint"`
	SQLType     string `json:"sql_type"`
	Stats
}

// Sink receives each normalized entry. A panic in the sink propagates out
// of the processing call.
type Sink func(Query)

// Skipped describes an entry that was dropped instead of emitted.
type Skipped struct {
	Entry RawEntry
	Err   error
}
