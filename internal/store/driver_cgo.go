//go:build cgo

package store

// Register the libsql driver. go-libsql requires cgo, so the blank import
// lives behind the same build tag as the cgo-only store tests.
import _ "github.com/tursodatabase/go-libsql"
