package journal

import (
	"fmt"

	"github.com/rs/zerolog"
)

const (
	TypeFile   = "file"
	TypeSQLite = "sqlite"
)

// Open builds the store named by typ. For "file" location is a directory,
// for "sqlite" it is the database path.
func Open(typ, location string, log zerolog.Logger) (Store, error) {
	switch typ {
	case TypeFile, "":
		return NewFileStore(location, log), nil
	case TypeSQLite:
		s, err := NewSQLite(location, log)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store type %q (want %q or %q)", typ, TypeFile, TypeSQLite)
}
