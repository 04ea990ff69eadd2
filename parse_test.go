package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"slowlog-digest/slowlog"
)

const sampleSlowLog = `/usr/sbin/mysqld, Version: 5.7.44 (MySQL Community Server (GPL)). started with:
Tcp port: 3306  Unix socket: /var/lib/mysql/mysql.sock
Time                 Id Command    Argument
# Time: 2024-08-30T06:09:28.060156Z
# User@Host: t1[t1] @ localhost [127.0.0.1]  Id:     9
# Query_time: 0.000065  Lock_time: 0.000022 Rows_sent: 0  Rows_examined: 1
SET timestamp=1724998168;
UPDATE stock SET s_quantity = 86, s_ytd = s_ytd + 4, s_order_cnt = s_order_cnt + 1, s_remote_cnt = s_remote_cnt + 0 WHERE s_i_id = 52521 AND s_w_id = 3;
# Time: 2024-08-30T06:09:28.060206Z
# User@Host: t1[t1] @ localhost [127.0.0.1]  Id:     6
# Query_time: 0.000109  Lock_time: 0.000030 Rows_sent: 0  Rows_examined: 1
SET timestamp=1724998168;
UPDATE district SET d_next_o_id = 4172 + 1 WHERE d_id = 1 AND d_w_id = 6;
# Time: 2024-01-19T16:29:48.141142Z
# User@Host: t1[t1] @  [10.2.103.21]  Id:   797
# Query_time: 0.000038  Lock_time: 0.000000 Rows_sent: 1  Rows_examined: 1
SET timestamp=1705681788;
SELECT c FROM sbtest1 WHERE id=250438;
# Time: 240119 16:29:48
# User@Host: t1[t1] @  [10.2.103.21]  Id:   797
# Query_time: 0.000038  Lock_time: 0.000000 Rows_sent: 1  Rows_examined: 1
SET timestamp=1705681788;
SELECT c FROM sbtest1 WHERE id=250439;
# Time: 231106  0:06:36
# User@Host: coplo2o[coplo2o] @  [10.0.2.34]  Id: 45827727
# Query_time: 1.066695  Lock_time: 0.000042 Rows_sent: 1  Rows_examined: 7039 Thread_id: 45827727 Schema: db Errno: 0 Killed: 0 Bytes_received: 0 Bytes_sent: 165 Read_first: 0 Read_last: 0 Read_key: 1 Read_next: 7039 Read_prev: 0 Read_rnd: 0 Read_rnd_next: 0 Sort_merge_passes: 0 Sort_range_count: 0 Sort_rows: 0 Sort_scan_count: 0 Created_tmp_disk_tables: 0 Created_tmp_tables: 0 Start: 2023-11-06T00:06:35.589701 End: 2023-11-06T00:06:36.656396 Launch_time: 0.000000
# QC_Hit: No  Full_scan: No  Full_join: No  Tmp_table: No  Tmp_table_on_disk: No  Filesort: No  Filesort_on_disk: No
use db;
SET timestamp=1699200395;
SELECT c FROM sbtest1 WHERE id=250438;
# User@Host: coplo2o[coplo2o] @  [10.0.2.34]  Id: 45827727
`

func testOptions(t *testing.T) *options {
	t.Helper()
	i18n, err := NewI18n("en")
	if err != nil {
		t.Fatalf("NewI18n failed: %v", err)
	}
	return &options{
		driver: "sqlite",
		table:  "slow_query",
		digest: "tidb",
		lang:   "en",
		i18n:   i18n,
	}
}

func writeSlowLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slow.log")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test input file: %v", err)
	}
	return path
}

func readRecords(t *testing.T, data []byte) []slowlog.Query {
	t.Helper()
	var out []slowlog.Query
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var q slowlog.Query
		if err := json.Unmarshal(scanner.Bytes(), &q); err != nil {
			t.Fatalf("Failed to unmarshal JSON: %v", err)
		}
		out = append(out, q)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Error reading output: %v", err)
	}
	return out
}

func TestParseLogs(t *testing.T) {
	o := testOptions(t)
	o.slowIn = writeSlowLog(t, sampleSlowLog)
	o.slowOut = filepath.Join(t.TempDir(), "out.json")

	if err := ParseLogs(o, nil); err != nil {
		t.Fatalf("ParseLogs failed: %v", err)
	}
	data, err := os.ReadFile(o.slowOut)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}
	actual := readRecords(t, data)

	expected := []struct {
		connectionID string
		queryTime    float64
		sql          string
		rowsSent     uint64
		user         string
		host         string
		schema       string
		sqlType      string
		ts           time.Time
	}{
		{"9", 0.000065, "UPDATE stock SET s_quantity = 86, s_ytd = s_ytd + 4, s_order_cnt = s_order_cnt + 1, s_remote_cnt = s_remote_cnt + 0 WHERE s_i_id = 52521 AND s_w_id = 3;",
			0, "t1[t1]", "127.0.0.1", "", "update", time.Date(2024, 8, 30, 6, 9, 28, 0, time.UTC)},
		{"6", 0.000109, "UPDATE district SET d_next_o_id = 4172 + 1 WHERE d_id = 1 AND d_w_id = 6;",
			0, "t1[t1]", "127.0.0.1", "", "update", time.Date(2024, 1, 19, 16, 29, 48, 0, time.UTC)},
		{"797", 0.000038, "SELECT c FROM sbtest1 WHERE id=250438;",
			1, "t1[t1]", "10.2.103.21", "", "select", time.Date(2024, 1, 19, 16, 29, 48, 0, time.UTC)},
		{"797", 0.000038, "SELECT c FROM sbtest1 WHERE id=250439;",
			1, "t1[t1]", "10.2.103.21", "", "select", time.Date(2023, 11, 6, 0, 6, 36, 0, time.UTC)},
		{"45827727", 1.066695, "SELECT c FROM sbtest1 WHERE id=250438;",
			1, "coplo2o[coplo2o]", "10.0.2.34", "db", "select", time.Date(2023, 11, 6, 0, 6, 36, 0, time.UTC)},
	}

	if len(actual) != len(expected) {
		t.Fatalf("Output length does not match expected length.\nActual: %v\nExpected: %v", len(actual), len(expected))
	}

	for i, want := range expected {
		got := actual[i]
		if got.ConnectionID != want.connectionID ||
			!floatEquals(got.QueryTime, want.queryTime) ||
			got.Query != want.sql ||
			got.RowsSent != want.rowsSent ||
			got.User != want.user ||
			got.Host != want.host ||
			got.Schema != want.schema ||
			got.SQLType != want.sqlType ||
			!got.Time.Equal(want.ts) {
			t.Errorf("Output does not match expected output at index %d.\nActual: %+v\nExpected: %+v", i, got, want)
		}
	}

	if actual[2].Formatted != "SELECT c FROM sbtest1 WHERE id = ?" {
		t.Errorf("Formatted = %q", actual[2].Formatted)
	}
	if actual[2].Fingerprint != actual[3].Fingerprint || actual[3].Fingerprint != actual[4].Fingerprint {
		t.Errorf("Fingerprints differ for the same query shape: %q %q %q", actual[2].Fingerprint, actual[3].Fingerprint, actual[4].Fingerprint)
	}
	if actual[0].Fingerprint == actual[1].Fingerprint {
		t.Errorf("Different updates share fingerprint %q", actual[0].Fingerprint)
	}
	if strings.Contains(actual[0].Formatted, "52521") {
		t.Errorf("Literal left in %q", actual[0].Formatted)
	}
}

func TestParseLogs_Stdout(t *testing.T) {
	o := testOptions(t)
	o.slowIn = writeSlowLog(t, sampleSlowLog)
	o.digest = "sha1"

	var buf bytes.Buffer
	if err := ParseLogs(o, &buf); err != nil {
		t.Fatalf("ParseLogs failed: %v", err)
	}
	records := readRecords(t, buf.Bytes())
	if len(records) != 5 {
		t.Fatalf("Expected 5 records, got %d", len(records))
	}
	for _, r := range records {
		if len(r.Fingerprint) != 40 {
			t.Errorf("Expected a sha1 fingerprint, got %q", r.Fingerprint)
		}
	}
}

func TestParseLogs_Errors(t *testing.T) {
	o := testOptions(t)
	if err := ParseLogs(o, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "-slow-in") {
		t.Errorf("Expected missing flag error, got %v", err)
	}

	o.slowIn = filepath.Join(t.TempDir(), "missing.log")
	if err := ParseLogs(o, &bytes.Buffer{}); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}

	o.slowIn = writeSlowLog(t, sampleSlowLog)
	o.digest = "md5"
	if err := ParseLogs(o, &bytes.Buffer{}); err == nil {
		t.Error("Expected an error for an unsupported digest")
	}
}

func floatEquals(a, b float64) bool {
	const epsilon = 1e-9
	return (a-b) < epsilon && (b-a) < epsilon
}
