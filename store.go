package main

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// openStore opens the load/report database. SQLite is limited to a single
// connection; its writers would otherwise fail with SQLITE_BUSY.
func openStore(o *options) (*sql.DB, error) {
	if !validTable.MatchString(o.table) {
		return nil, errors.New(o.T("invalid_table", o.table))
	}

	switch o.driver {
	case "mysql":
		cfg, err := mysql.ParseDSN(o.dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		zap.L().Debug("opening mysql store", zap.String("addr", cfg.Addr), zap.String("db", cfg.DBName), zap.String("user", cfg.User))
		return sql.Open("mysql", cfg.FormatDSN())
	case "sqlite":
		db, err := sql.Open("sqlite", o.dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
		return db, nil
	default:
		return nil, errors.New(o.T("unsupported_driver", o.driver))
	}
}

// createTableIfNotExists uses column types both MySQL and SQLite accept.
func createTableIfNotExists(db *sql.DB, tableName string) error {
	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		fingerprint varchar(64) NOT NULL,
		sql_type varchar(16) DEFAULT NULL,
		sql_text longtext,
		formatted longtext,
		user_name varchar(128) DEFAULT NULL,
		host varchar(255) DEFAULT NULL,
		connection_id varchar(32) DEFAULT NULL,
		schema_name varchar(64) DEFAULT NULL,
		ts bigint DEFAULT NULL,
		query_time double DEFAULT NULL,
		lock_time double DEFAULT NULL,
		rows_sent bigint DEFAULT NULL,
		rows_examined bigint DEFAULT NULL,
		file_name varchar(255) NOT NULL
	)`, tableName)

	_, err := db.Exec(createTableSQL)
	return err
}
