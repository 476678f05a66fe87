//go:build libsql

package db

// The libSQL driver links a native library through cgo, so it is only
// compiled into binaries built with -tags libsql.
import _ "github.com/tursodatabase/go-libsql"
