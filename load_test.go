package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"slowlog-digest/slowlog"
)

func sqliteOptions(t *testing.T) *options {
	t.Helper()
	o := testOptions(t)
	o.dsn = filepath.Join(t.TempDir(), "digest.db")
	return o
}

func writeRecordsFile(t *testing.T, path string, n int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := 0; i < n; i++ {
		q := slowlog.Query{
			Query:       fmt.Sprintf("SELECT * FROM t WHERE id = %d", i),
			Formatted:   "SELECT * FROM t WHERE id = ?",
			Fingerprint: fmt.Sprintf("fp%d", i%3),
			SQLType:     "select",
			Stats: slowlog.Stats{
				User:         "app[app]",
				Host:         "10.0.0.1",
				Time:         time.Unix(1700000000+int64(i), 0).UTC(),
				QueryTime:    0.5,
				RowsExamined: 10,
			},
		}
		if err := enc.Encode(q); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
}

func countRows(t *testing.T, o *options, where string, args ...interface{}) int {
	t.Helper()
	db, err := sql.Open("sqlite", o.dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM "+o.table+" "+where, args...).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestLoadData(t *testing.T) {
	o := sqliteOptions(t)
	dir := t.TempDir()
	writeRecordsFile(t, filepath.Join(dir, "slow-a.json"), batchSize+250)
	writeRecordsFile(t, filepath.Join(dir, "slow-b.json"), 10)
	writeRecordsFile(t, filepath.Join(dir, "slow-c.json"), 0)
	o.slowOut = filepath.Join(dir, "slow-*.json")

	if err := LoadData(context.Background(), o); err != nil {
		t.Fatalf("LoadData failed: %v", err)
	}
	if n := countRows(t, o, ""); n != batchSize+260 {
		t.Errorf("Expected %d rows, got %d", batchSize+260, n)
	}
	if n := countRows(t, o, "WHERE file_name = ?", "slow-b.json"); n != 10 {
		t.Errorf("Expected 10 rows from slow-b.json, got %d", n)
	}
	if n := countRows(t, o, "WHERE fingerprint = ? AND ts = ? AND file_name = ?", "fp0", 1700000000, "slow-a.json"); n != 1 {
		t.Errorf("Expected the first record with its timestamp, got %d", n)
	}

	// loading again appends
	if err := LoadData(context.Background(), o); err != nil {
		t.Fatalf("LoadData failed: %v", err)
	}
	if n := countRows(t, o, ""); n != 2*(batchSize+260) {
		t.Errorf("Expected %d rows, got %d", 2*(batchSize+260), n)
	}
}

func TestLoadData_SkipsMalformedLines(t *testing.T) {
	o := sqliteOptions(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "slow.json")
	writeRecordsFile(t, path, 2)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintln(f, "{not json")
	fmt.Fprintln(f)
	f.Close()
	o.slowOut = path

	if err := LoadData(context.Background(), o); err != nil {
		t.Fatalf("LoadData failed: %v", err)
	}
	if n := countRows(t, o, ""); n != 2 {
		t.Errorf("Expected 2 rows, got %d", n)
	}
}

func TestLoadData_Errors(t *testing.T) {
	o := sqliteOptions(t)
	o.slowOut = filepath.Join(t.TempDir(), "none-*.json")
	if err := LoadData(context.Background(), o); err == nil || !strings.Contains(err.Error(), "no files match") {
		t.Errorf("Expected no files error, got %v", err)
	}

	o.table = "slow_query; DROP TABLE x"
	if err := LoadData(context.Background(), o); err == nil || !strings.Contains(err.Error(), "invalid table name") {
		t.Errorf("Expected invalid table error, got %v", err)
	}

	o = sqliteOptions(t)
	o.slowOut = ""
	if err := LoadData(context.Background(), o); err == nil {
		t.Error("Expected missing flag error")
	}
}

func TestBuildInsertQuery(t *testing.T) {
	records := []slowlog.Query{{Fingerprint: "a"}, {Fingerprint: "b"}}
	query, args := buildInsertQuery(records, "f.json", "slow_query")
	if !strings.HasPrefix(query, "INSERT INTO slow_query (fingerprint, ") {
		t.Errorf("query = %q", query)
	}
	if strings.Count(query, "?") != 2*insertColumns {
		t.Errorf("Expected %d placeholders in %q", 2*insertColumns, query)
	}
	if len(args) != 2*insertColumns {
		t.Errorf("Expected %d args, got %d", 2*insertColumns, len(args))
	}
	if args[insertColumns-1] != "f.json" || args[insertColumns] != "b" {
		t.Errorf("Unexpected args %v", args)
	}
}

func TestOpenStore(t *testing.T) {
	o := testOptions(t)
	o.driver = "mysql"
	o.dsn = "user:pass@tcp(127.0.0.1:3306)/slow"
	db, err := openStore(o)
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	db.Close()

	o.dsn = "not a dsn"
	if _, err := openStore(o); err == nil {
		t.Error("Expected a dsn error")
	}

	o.driver = "postgres"
	if _, err := openStore(o); err == nil || !strings.Contains(err.Error(), `unsupported driver "postgres"`) {
		t.Errorf("Expected unsupported driver error, got %v", err)
	}
}
