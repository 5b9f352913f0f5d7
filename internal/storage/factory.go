package storage

import (
	"fmt"
	"strings"
)

const DefaultStoreKind = "memory"

// StoreKinds lists the backends NewStore understands.
var StoreKinds = []string{"memory", "sqlite", "mysql"}

// NewStore returns an uninitialized store for kind. dsn is the sqlite file
// path or the mysql DSN; the memory store ignores it.
func NewStore(kind, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(dsn)
	case "mysql":
		return NewMySQLStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported store backend %q (want one of %s)", kind, strings.Join(StoreKinds, ", "))
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
