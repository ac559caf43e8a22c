package store

import (
	"errors"
	"net/url"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// sqliteDefaults are applied to every SQLite DSN that does not set them.
// Write transactions take the database lock at BEGIN and wait for it through
// the busy timeout, so two writers never deadlock upgrading a read lock.
var sqliteDefaults = [][2]string{
	{"_busy_timeout", "5000"},
	{"_txlock", "immediate"},
}

// sqliteDSN returns dsn with the missing connection defaults appended.
func sqliteDSN(dsn string) string {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return dsn
	}
	var extra []string
	for _, kv := range sqliteDefaults {
		if !query.Has(kv[0]) {
			extra = append(extra, kv[0]+"="+kv[1])
		}
	}
	if len(extra) == 0 {
		return dsn
	}
	if rawQuery != "" {
		extra = append([]string{rawQuery}, extra...)
	}
	return path + "?" + strings.Join(extra, "&")
}

// isSQLiteBusy reports whether err is SQLite giving up on a lock held by
// another connection.
func isSQLiteBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
