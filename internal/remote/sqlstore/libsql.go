//go:build cgo

package sqlstore

// The libSQL driver links a native library and is only available in cgo
// builds.
import _ "github.com/tursodatabase/go-libsql"
