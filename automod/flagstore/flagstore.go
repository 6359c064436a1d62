// Persistent per-key flag sets. The moderation engine records which casts it has hidden (and how), so duplicate deliveries don't hide or log twice.
package flagstore

import (
	"context"
)

type FlagStore interface {
	Get(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key string, flags []string) error
	// does not error if flags not in set
	Remove(ctx context.Context, key string, flags []string) error
}

// Helper which checks for a single flag on a key
func Has(ctx context.Context, fs FlagStore, key, flag string) (bool, error) {
	flags, err := fs.Get(ctx, key)
	if err != nil {
		return false, err
	}
	for _, f := range flags {
		if f == flag {
			return true, nil
		}
	}
	return false, nil
}

func dedupeStrings(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range in {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}
