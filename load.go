package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"slowlog-digest/slowlog"
)

const (
	batchSize = 1000
	workers   = 4

	insertColumns = 14
)

// LoadData inserts the JSON lines files matching -slow-out into -table.
// Files are loaded by a bounded pool of workers; every failure is reported.
func LoadData(ctx context.Context, o *options) error {
	if o.dsn == "" || o.slowOut == "" || o.table == "" {
		return errors.New(o.T("missing_flags", "load", "-db, -slow-out, -table"))
	}

	zap.L().Info(o.T("load_config", batchSize, workers))

	db, err := openStore(o)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := createTableIfNotExists(db, o.table); err != nil {
		return fmt.Errorf("create table %s: %w", o.table, err)
	}
	zap.L().Info(o.T("table_ready"), zap.String("table", o.table))

	filePaths, err := filepath.Glob(o.slowOut)
	if err != nil {
		return fmt.Errorf("find files: %w", err)
	}
	if len(filePaths) == 0 {
		return fmt.Errorf("no files match %s", o.slowOut)
	}
	return processFilesParallel(ctx, filePaths, o.table, db, func(fileName string, n int) {
		zap.L().Info(o.T("file_loaded"), zap.String("file", fileName), zap.Int("rows", n))
	})
}

func processFilesParallel(ctx context.Context, filePaths []string, tableName string, db *sql.DB, done func(string, int)) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	semaphore := make(chan struct{}, workers)

	for _, filePath := range filePaths {
		wg.Add(1)
		go func(fp string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fileName := filepath.Base(fp)
			n, err := processFile(ctx, fp, fileName, tableName, db)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("process file %s: %w", fileName, err))
				mu.Unlock()
				return
			}
			done(fileName, n)
		}(filePath)
	}

	wg.Wait()
	return errs
}

func processFile(ctx context.Context, filePath, fileName, tableName string, db *sql.DB) (int, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), slowlog.DefaultMaxLineSize)

	var (
		batch []slowlog.Query
		total int
		line  int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := insertBatch(ctx, batch, fileName, tableName, db); err != nil {
			return fmt.Errorf("insert batch ending at line %d: %w", line, err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var q slowlog.Query
		if err := json.Unmarshal([]byte(text), &q); err != nil {
			zap.L().Warn("skipping malformed record", zap.String("file", fileName), zap.Int("line", line), zap.Error(err))
			continue
		}
		batch = append(batch, q)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, fmt.Errorf("read: %w", err)
	}
	return total, flush()
}

func insertBatch(ctx context.Context, records []slowlog.Query, fileName, tableName string, db *sql.DB) error {
	query, args := buildInsertQuery(records, fileName, tableName)
	_, err := db.ExecContext(ctx, query, args...)
	return err
}

func buildInsertQuery(records []slowlog.Query, fileName, tableName string) (string, []interface{}) {
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", insertColumns), ", ") + ")"
	valueStrings := make([]string, 0, len(records))
	valueArgs := make([]interface{}, 0, len(records)*insertColumns)

	for _, r := range records {
		valueStrings = append(valueStrings, placeholders)
		valueArgs = append(valueArgs,
			r.Fingerprint, r.SQLType, r.Query, r.Formatted,
			r.User, r.Host, r.ConnectionID, r.Schema,
			r.Time.Unix(), r.QueryTime, r.LockTime,
			int64(r.RowsSent), int64(r.RowsExamined),
			fileName,
		)
	}

	query := fmt.Sprintf("INSERT INTO %s (fingerprint, sql_type, sql_text, formatted, user_name, host, connection_id, schema_name, ts, query_time, lock_time, rows_sent, rows_examined, file_name) VALUES %s",
		tableName, strings.Join(valueStrings, ","))
	return query, valueArgs
}
