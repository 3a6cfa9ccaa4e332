// Package config loads application configuration from environment variables.
//
// Every variable carries the HORECA_ prefix:
//
//	HORECA_DATABASE_URL="postgres://localhost/horeca?sslmode=disable"  # required
//	HORECA_DB_MAX_CONNS="25"
//	HORECA_DB_MIN_CONNS="2"
//	HORECA_DB_CONN_TIMEOUT="5s"
//	HORECA_DB_CONN_MAX_LIFETIME="1h"
//	HORECA_DB_CONN_MAX_IDLE_TIME="30m"
//	HORECA_LOG_LEVEL="info"            # debug, info, warn, error
//	HORECA_METRICS_ENABLED="true"
//	HORECA_OTEL_ENABLED="false"
//	HORECA_OTEL_ENDPOINT="localhost:4317"
//	HORECA_OTEL_SERVICE_NAME="horeca-access"
//	HORECA_OTEL_INSECURE="true"
//	HORECA_MENU_REGISTRY_PATH=""       # YAML menu; empty uses the built-in one
//	HORECA_AUDIT_ENABLED="true"
//
// Load parses the environment with envconfig and validates the result.
package config
