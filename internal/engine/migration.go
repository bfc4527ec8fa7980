package engine

import "fmt"

// Migrate copies every collection from src to dst. This works for:
// - JSON files -> SQLite (the "Upgrade")
// - SQLite -> JSON files (the "Backup/Export")
// It returns the number of collections copied.
func Migrate(src Persister, dst Persister) (int, error) {
	all, err := src.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("failed to load source collections: %w", err)
	}

	n := 0
	for name, docs := range all {
		if err := dst.SaveCollection(name, docs); err != nil {
			return n, fmt.Errorf("failed to save collection %s in destination: %w", name, err)
		}
		n++
	}
	return n, nil
}
