package dialect

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Profile{
		"oracle":     func() Profile { return Oracle{} },
		"postgres":   func() Profile { return Postgres{} },
		"postgresql": func() Profile { return Postgres{} },
		"pgx":        func() Profile { return Postgres{} },
		"mysql":      func() Profile { return MySQL{} },
		"mariadb":    func() Profile { return MySQL{} },
		"sqlite":     func() Profile { return SQLite{} },
		"sqlite3":    func() Profile { return SQLite{} },
		"sqlserver":  func() Profile { return SQLServer{} },
		"mssql":      func() Profile { return SQLServer{} },
	}
)

// Register adds or replaces a profile factory under name.
func Register(name string, factory func() Profile) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// Lookup returns a fresh profile registered under name.
func Lookup(name string) (Profile, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownDialectError{Name: name, Available: Names()}
	}
	return factory(), nil
}

// Names returns all registered dialect names (sorted).
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownDialectError is returned when an unknown dialect is requested.
type UnknownDialectError struct {
	Name      string
	Available []string
}

func (e *UnknownDialectError) Error() string {
	return fmt.Sprintf("unknown dialect %q, available: %s", e.Name, strings.Join(e.Available, ", "))
}
