package slowlog

import (
	"strings"
	"time"
)

// accumulator is the per-stream assembly state: the SQL collected since the
// last boundary and the stats of the entry being assembled.
type accumulator struct {
	pending strings.Builder
	current Stats
	// broken holds the stats error of the entry being assembled, if any.
	broken error
}

func newAccumulator(now time.Time) *accumulator {
	return &accumulator{current: Stats{Time: now}}
}

func (a *accumulator) appendFragment(text string) {
	a.pending.WriteByte(' ')
	a.pending.WriteString(text)
}

func (a *accumulator) setTime(t time.Time) {
	a.current.Time = t
}

func (a *accumulator) setStats(l Line) {
	a.current.QueryTime = l.QueryTime
	a.current.LockTime = l.LockTime
	a.current.RowsSent = l.RowsSent
	a.current.RowsExamined = l.RowsExamined
	a.setSession(l)
}

func (a *accumulator) setSession(l Line) {
	if l.ConnectionID != "" {
		a.current.ConnectionID = l.ConnectionID
	}
	if l.Schema != "" {
		a.current.Schema = l.Schema
	}
}

func (a *accumulator) markBroken(err error) {
	a.broken = err
}

// flush hands out the completed entry and clears the SQL buffer. ok is false
// when nothing but whitespace was collected. broken is the stats error of
// that entry, if any.
func (a *accumulator) flush() (entry RawEntry, ok bool, broken error) {
	text := strings.TrimSpace(a.pending.String())
	broken = a.broken
	a.pending.Reset()
	a.broken = nil
	if text == "" {
		return RawEntry{}, false, nil
	}
	return RawEntry{SQL: text, Stats: a.current}, true, broken
}

// begin records the boundary header for the next entry. Call it only after
// flush so the flushed entry keeps its own user and host. Session fields
// belong to one entry and are cleared; timestamp and numeric stats persist
// until replaced.
func (a *accumulator) begin(l Line) {
	a.current.User = l.User
	a.current.Host = l.Host
	a.current.ConnectionID = l.ConnectionID
	a.current.Schema = ""
}
