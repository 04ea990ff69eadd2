package slowlog

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind is the category of a slow log line.
type Kind int

const (
	// KindFragment is SQL text belonging to the statement being assembled.
	KindFragment Kind = iota
	// KindNoise carries nothing query relevant and is dropped.
	KindNoise
	// KindTimestamp is a "# Time:" header.
	KindTimestamp
	// KindUserHost is a "# User@Host:" header, the entry boundary.
	KindUserHost
	// KindStats is a "# Query_time:" header.
	KindStats
	// KindSession is a MariaDB "# Thread_id: ... Schema: ..." header.
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindNoise:
		return "noise"
	case KindTimestamp:
		return "timestamp"
	case KindUserHost:
		return "user_host"
	case KindStats:
		return "stats"
	case KindSession:
		return "session"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Line is a classified line. Only the fields of its Kind are set; Text
// holds a fragment, or an unrecognized header comment for KindNoise.
type Line struct {
	Kind Kind
	Text string

	Time time.Time

	User         string
	Host         string
	ConnectionID string
	Schema       string

	QueryTime    float64
	LockTime     float64
	RowsSent     uint64
	RowsExamined uint64
}

var (
	reBin    = regexp.MustCompile(`^/`)
	reSet    = regexp.MustCompile(`^SET (?:last_insert_id|insert_id|timestamp)`)
	reUse    = regexp.MustCompile(`^(?i)use `)
	reBanner = regexp.MustCompile(`^(?i)(?:Tcp|Time)`)

	reTimeISO = regexp.MustCompile(`^#\s*Time:\s+(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})(?:\.(\d+))?(Z|[+-]\d{2}:\d{2})`)
	reTime56  = regexp.MustCompile(`^#\s*Time:\s+(\d{2})(\d{2})(\d{2})\s+(\d{1,2}):(\d{2}):(\d{2})`)

	reUserHost = regexp.MustCompile(`^#\s*User@Host:\s+(.+?)\s+@\s+(\S*?)\s*\[(.*?)\]`)
	reConnID   = regexp.MustCompile(`\bId:\s*(\d+)`)

	reStatsHdr = regexp.MustCompile(`^#\s*Query_time:`)
	reStats    = regexp.MustCompile(`^#\s*Query_time:\s*(\S+)\s+Lock_time:\s*(\S+)\s+Rows_sent:\s*(\S+)\s+Rows_examined:\s*(\S+)`)
	reSession  = regexp.MustCompile(`^#\s*Thread_id:`)
	reThread   = regexp.MustCompile(`Thread_id:\s*(\d+)`)
	reSchema   = regexp.MustCompile(`Schema: (\S*)`)
)

var (
	errNotDuration = errors.New("not a non-negative number")
	errTruncated   = errors.New("missing Lock_time, Rows_sent or Rows_examined")
)

// StatsError reports a "# Query_time:" line whose numbers do not parse.
type StatsError struct {
	Line  string
	Field string
	Value string
	Err   error
}

func (e *StatsError) Error() string {
	return fmt.Sprintf("malformed %s %q in stats line: %v", e.Field, e.Value, e.Err)
}

func (e *StatsError) Unwrap() error { return e.Err }

// IsNoise reports whether line is a server banner, a session SET, a USE
// statement or a connection banner.
func IsNoise(line string) bool {
	return reBin.MatchString(line) ||
		reSet.MatchString(line) ||
		reUse.MatchString(line) ||
		reBanner.MatchString(line)
}

// Classify categorizes a single line. The only error is a *StatsError for
// a stats line with malformed numbers.
func Classify(line string) (Line, error) {
	if IsNoise(line) {
		return Line{Kind: KindNoise}, nil
	}
	if ts, ok := ParseTimestamp(line); ok {
		return Line{Kind: KindTimestamp, Time: ts}, nil
	}
	if l, ok := parseUserHost(line); ok {
		return l, nil
	}
	if m := reStats.FindStringSubmatch(line); m != nil {
		return parseStats(line, m)
	}
	if reStatsHdr.MatchString(line) {
		return Line{}, &StatsError{Line: line, Field: "header", Value: line, Err: errTruncated}
	}
	if reSession.MatchString(line) {
		l := Line{Kind: KindSession}
		l.ConnectionID, l.Schema = parseSession(line)
		return l, nil
	}
	// Any other header comment: "#" runs to end of line in MySQL, joined
	// into the statement it would comment out everything after it.
	// Text is kept so the reader can report it.
	if strings.HasPrefix(line, "#") {
		return Line{Kind: KindNoise, Text: line}, nil
	}
	return Line{Kind: KindFragment, Text: line}, nil
}

// ParseTimestamp extracts a "# Time:" header as a UTC instant truncated to
// whole seconds. Accepted forms are 2006-01-02T15:04:05.000000Z, the same
// with a numeric offset, and the MySQL 5.6 "060102 15:04:05" form read as UTC.
func ParseTimestamp(line string) (time.Time, bool) {
	if m := reTimeISO.FindStringSubmatch(line); m != nil {
		loc := time.UTC
		if m[8] != "Z" {
			offset, ok := parseOffset(m[8])
			if !ok {
				return time.Time{}, false
			}
			loc = time.FixedZone(m[8], offset)
		}
		return buildTime(m[1], m[2], m[3], m[4], m[5], m[6], loc, 0)
	}
	if m := reTime56.FindStringSubmatch(line); m != nil {
		return buildTime(m[1], m[2], m[3], m[4], m[5], m[6], time.UTC, 2000)
	}
	return time.Time{}, false
}

func buildTime(year, month, day, hour, minute, second string, loc *time.Location, century int) (time.Time, bool) {
	var v [6]int
	for i, s := range []string{year, month, day, hour, minute, second} {
		n, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, false
		}
		v[i] = n
	}
	v[0] += century
	if v[1] < 1 || v[1] > 12 || v[3] > 23 || v[4] > 59 || v[5] > 59 {
		return time.Time{}, false
	}
	t := time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], v[5], 0, loc)
	if t.Day() != v[2] {
		// time.Date normalizes Feb 30 into March
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseOffset(s string) (int, bool) {
	hours, err := strconv.Atoi(s[1:3])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(s[4:6])
	if err != nil || hours > 14 || minutes > 59 {
		return 0, false
	}
	offset := hours*3600 + minutes*60
	if s[0] == '-' {
		offset = -offset
	}
	return offset, true
}

func parseUserHost(line string) (Line, bool) {
	m := reUserHost.FindStringSubmatch(line)
	if m == nil {
		return Line{}, false
	}
	host := m[3]
	if host == "" {
		host = m[2]
	}
	l := Line{Kind: KindUserHost, User: m[1], Host: host}
	if id := reConnID.FindStringSubmatch(line[len(m[0]):]); id != nil {
		l.ConnectionID = id[1]
	}
	return l, true
}

func parseStats(line string, m []string) (Line, error) {
	l := Line{Kind: KindStats}
	var err error
	if l.QueryTime, err = parseSeconds(m[1]); err != nil {
		return Line{}, &StatsError{Line: line, Field: "Query_time", Value: m[1], Err: err}
	}
	if l.LockTime, err = parseSeconds(m[2]); err != nil {
		return Line{}, &StatsError{Line: line, Field: "Lock_time", Value: m[2], Err: err}
	}
	if l.RowsSent, err = strconv.ParseUint(m[3], 10, 64); err != nil {
		return Line{}, &StatsError{Line: line, Field: "Rows_sent", Value: m[3], Err: err}
	}
	if l.RowsExamined, err = strconv.ParseUint(m[4], 10, 64); err != nil {
		return Line{}, &StatsError{Line: line, Field: "Rows_examined", Value: m[4], Err: err}
	}
	l.ConnectionID, l.Schema = parseSession(line[len(m[0]):])
	return l, nil
}

func parseSeconds(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotDuration
	}
	return f, nil
}

func parseSession(s string) (threadID, schema string) {
	if m := reThread.FindStringSubmatch(s); m != nil {
		threadID = m[1]
	}
	if m := reSchema.FindStringSubmatch(s); m != nil {
		schema = m[1]
	}
	return threadID, schema
}
