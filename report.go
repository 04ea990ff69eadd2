package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type reportQuery struct {
	title string
	sql   string
}

// reportQueries are written in the SQL subset shared by MySQL and SQLite.
// %[1]s is the table name.
var reportQueries = []reportQuery{
	{"1. Top by total time", `SELECT
            fingerprint, sql_type,
            COUNT(*) AS exec_cnts,
            ROUND(SUM(query_time), 6) AS total_s,
            ROUND(AVG(query_time), 6) AS avg_s,
            ROUND(MAX(query_time), 6) AS max_s,
            ROUND(AVG(lock_time), 6) AS avg_lock_s,
            ROUND(AVG(rows_examined), 1) AS avg_rows_examined,
            MIN(formatted) AS sample_sql_text
        FROM %[1]s
        GROUP BY fingerprint, sql_type
        ORDER BY SUM(query_time) DESC, fingerprint
        LIMIT 100`},
	{"2. Top by executions", `SELECT
            fingerprint, sql_type,
            COUNT(*) AS exec_cnts,
            ROUND(AVG(query_time), 6) AS avg_s,
            ROUND(AVG(rows_sent), 1) AS avg_rows_sent,
            MIN(formatted) AS sample_sql_text
        FROM %[1]s
        GROUP BY fingerprint, sql_type
        ORDER BY COUNT(*) DESC, fingerprint
        LIMIT 100`},
	{"3. Top by rows examined", `SELECT
            fingerprint, sql_type,
            COUNT(*) AS exec_cnts,
            SUM(rows_examined) AS rows_examined,
            ROUND(AVG(rows_examined), 1) AS avg_rows_examined,
            MIN(formatted) AS sample_sql_text
        FROM %[1]s
        GROUP BY fingerprint, sql_type
        ORDER BY SUM(rows_examined) DESC, fingerprint
        LIMIT 100`},
	{"4. RT distribution", `SELECT
            CASE
                WHEN query_time < 0.001 THEN '1. <1ms'
                WHEN query_time < 0.01 THEN '2. 1ms~10ms'
                WHEN query_time < 0.1 THEN '3. 10ms~100ms'
                WHEN query_time < 1 THEN '4. 100ms~1s'
                WHEN query_time < 10 THEN '5. 1s~10s'
                ELSE '6. >10s'
            END AS rt_bucket,
            COUNT(*) AS exec_cnts,
            COUNT(DISTINCT fingerprint) AS fingerprints,
            ROUND(SUM(query_time), 6) AS total_s
        FROM %[1]s
        GROUP BY rt_bucket
        ORDER BY rt_bucket`},
	{"5. By user", `SELECT
            user_name,
            COUNT(*) AS exec_cnts,
            COUNT(DISTINCT fingerprint) AS fingerprints,
            ROUND(SUM(query_time), 6) AS total_s
        FROM %[1]s
        GROUP BY user_name
        ORDER BY SUM(query_time) DESC, user_name`},
	{"6. By SQL type", `SELECT
            sql_type,
            COUNT(*) AS exec_cnts,
            ROUND(SUM(query_time), 6) AS total_s,
            ROUND(AVG(query_time), 6) AS avg_s
        FROM %[1]s
        GROUP BY sql_type
        ORDER BY SUM(query_time) DESC, sql_type`},
}

const reportTemplate = `
<!DOCTYPE html>
<html>
<head>
    <title>slow log report</title>
    <style>
        body { margin: 0; padding: 0; display: flex; }
        nav {
            position: fixed;
            left: 0;
            top: 0;
            height: 100%;
            width: 240px;
            background-color: #F5F5F5;
            padding: 20px;
            padding-top: 36px;
            box-sizing: border-box;
            overflow-y: auto;
        }
        nav a { text-decoration: none; font-weight: bold; color: #1e88e5; }
        nav ul { list-style: none; padding: 0; margin: 0; }
        nav ul li { margin-bottom: 10px; }
        main { flex: 1; padding: 20px; margin-left: 240px; }
        .blue-bar {
            background-color: rgba(173, 216, 230, 0.05);
            color: #333;
            font-size: 20px;
            font-weight: bold;
            padding: 10px;
            margin-top: 10px;
            margin-bottom: 10px;
            width: 100%;
            box-sizing: border-box;
            text-align: center;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        .nav-heading { font-size: 20px; font-weight: bold; color: navy; margin-bottom: 20px; }
        table { border-collapse: collapse; width: 100%; table-layout: fixed; margin-bottom: 30px; }
        th, td {
            border: 1px solid #ddd;
            padding: 8px;
            text-align: left;
            overflow: hidden;
            white-space: nowrap;
            text-overflow: ellipsis;
        }
        th { background-color: #f2f2f2; }
        #preview {
            position: fixed;
            background-color: white;
            border: 1px solid #ccc;
            padding: 10px;
            display: none;
            z-index: 9999;
            width: 500px;
            min-width: 500px;
            font-size: 15px;
        }
    </style>
</head>
<body>
    <nav>
        <ul>
            <li class="nav-heading">Slow Log Report</li>
            <li>{{ .Table }}</li>
            {{range .Sections}}
            <li><a href="#{{ .Title }}">{{ .Title }}</a></li>
            {{end}}
        </ul>
    </nav>
    <main>
        {{range $query := .Sections}}
        <div class="blue-bar" id="{{ $query.Title }}">{{ $query.Title }}</div>
        {{with $query.Error}}
        <p>Error: {{ . }}</p>
        {{else}}
        <table>
            <tr>
                {{range $query.Columns}}
                <th>{{.}}</th>
                {{end}}
            </tr>
                {{range $query.Rows}}
                <tr>
                    {{range $index, $value := .}}
                        {{if eq (index $query.Columns $index) "sample_sql_text"}}
                            <td class="previewable">{{$value}}</td>
                        {{else}}
                            <td>{{$value}}</td>
                        {{end}}
                    {{end}}
                </tr>
                {{end}}
        </table>
        {{end}}
        {{end}}
    </main>

    <div id="preview"></div>

    <script>
        var previewableCells = document.querySelectorAll('.previewable');

        document.addEventListener('mousemove', function(event) {
            previewableCells.forEach(function(cell) {
                var rect = cell.getBoundingClientRect();
                if (event.clientX >= rect.left && event.clientX <= rect.right &&
                    event.clientY >= rect.top && event.clientY <= rect.bottom) {
                    showPreview(cell.textContent, event.clientX, event.clientY);
                }
            });
        });

        previewableCells.forEach(function(cell) {
            cell.addEventListener('mouseleave', function() {
                document.getElementById('preview').style.display = 'none';
            });
        });

        function showPreview(content, x, y) {
            var preview = document.getElementById('preview');
            preview.textContent = content;
            preview.style.display = 'block';
            var rightEdge = document.body.clientWidth - x;
            preview.style.left = (rightEdge > 500 ? x + 10 : x - 510) + 'px';
            preview.style.top = (y + 10) + 'px';
        }
    </script>

</body>
</html>
`

var reportPage = template.Must(template.New("webpage").Parse(reportTemplate))

// Report serves the HTML report on -port until ctx is done.
func Report(ctx context.Context, o *options) error {
	if o.dsn == "" || o.table == "" {
		return errors.New(o.T("missing_flags", "report", "-db, -table"))
	}

	db, err := openStore(o)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := &http.Server{
		Addr:              o.port,
		Handler:           newReportHandler(db, o.table),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	zap.L().Info(o.T("report_listening"), zap.String("addr", o.port), zap.String("table", o.table))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func newReportHandler(db *sql.DB, tableName string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		sections := make([]QueryResult, 0, len(reportQueries))
		for _, q := range reportQueries {
			sections = append(sections, runReportQuery(r.Context(), db, q.title, fmt.Sprintf(q.sql, tableName)))
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := reportPage.Execute(w, struct {
			Table    string
			Sections []QueryResult
		}{tableName, sections}); err != nil {
			zap.L().Error("render report", zap.Error(err))
		}
	})
	return mux
}

func runReportQuery(ctx context.Context, db *sql.DB, title, query string) QueryResult {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return QueryResult{Title: title, Error: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResult{Title: title, Error: err}
	}

	var rowsData [][]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return QueryResult{Title: title, Error: err}
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rowsData = append(rowsData, values)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{Title: title, Error: err}
	}

	return QueryResult{Title: title, Columns: columns, Rows: rowsData}
}
