package main

var translations = map[string]map[string]string{
	"en": {
		"usage": `Usage: ./slowlog-digest -mode [parse|aggregate|load|report|publish]
    1. parse mode: ./slowlog-digest -mode parse -slow-in <slow_query_log> [-slow-out <json_lines_file>]
    2. aggregate mode: ./slowlog-digest -mode aggregate -slow-in <slow_query_log> [-top N]
    3. load mode: ./slowlog-digest -mode load -driver <mysql|sqlite> -db <DB_CONN_STRING> -slow-out <json_lines_glob> -table <slow_query>
    4. report mode: ./slowlog-digest -mode report -driver <mysql|sqlite> -db <DB_CONN_STRING> -table <slow_query> -port ':8081'
    5. publish mode: ./slowlog-digest -mode publish -slow-in <slow_query_log> -brokers <host:port,...> -topic <topic> [-sasl plain -sasl-user u -sasl-pass p -tls]`,
		"invalid_mode":       "Invalid mode %q. Available modes: parse, aggregate, load, report, publish",
		"mode_failed":        "%s failed",
		"missing_flags":      "%s mode requires %s",
		"parsing_complete":   "slow log parsed",
		"aggregate_header":   "%d fingerprints, %d queries",
		"load_config":        "load batch size: %d, load workers: %d",
		"table_ready":        "table ready",
		"file_loaded":        "completed loading file",
		"report_listening":   "report server listening",
		"publish_connect":    "publishing to kafka",
		"publish_complete":   "publish completed",
		"invalid_table":      "invalid table name %q",
		"unsupported_driver": "unsupported driver %q",
	},
	"zh": {
		"usage": `用法: ./slowlog-digest -mode [parse|aggregate|load|report|publish]
    1. 解析模式: ./slowlog-digest -mode parse -slow-in <慢查询日志> [-slow-out <JSON行输出文件>]
    2. 聚合模式: ./slowlog-digest -mode aggregate -slow-in <慢查询日志> [-top N]
    3. 加载模式: ./slowlog-digest -mode load -driver <mysql|sqlite> -db <数据库连接串> -slow-out <JSON行文件通配> -table <slow_query>
    4. 报告模式: ./slowlog-digest -mode report -driver <mysql|sqlite> -db <数据库连接串> -table <slow_query> -port ':8081'
    5. 发布模式: ./slowlog-digest -mode publish -slow-in <慢查询日志> -brokers <host:port,...> -topic <主题> [-sasl plain -sasl-user u -sasl-pass p -tls]`,
		"invalid_mode":       "无效的模式 %q。可用模式: parse, aggregate, load, report, publish",
		"mode_failed":        "%s 执行失败",
		"missing_flags":      "%s 模式需要参数 %s",
		"parsing_complete":   "完成慢查询日志解析",
		"aggregate_header":   "%d 个指纹，%d 条查询",
		"load_config":        "加载批量大小: %d，加载并发: %d",
		"table_ready":        "数据表已就绪",
		"file_loaded":        "完成文件加载",
		"report_listening":   "报告服务已启动",
		"publish_connect":    "开始发布到 kafka",
		"publish_complete":   "发布完成",
		"invalid_table":      "无效的表名 %q",
		"unsupported_driver": "不支持的驱动 %q",
	},
}
