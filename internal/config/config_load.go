package config

import "github.com/mozi-run/mozi/internal/configstore"

// Store is the subset of internal/configstore.Store this package reads
// from. Declared locally so config never imports configstore's mutation
// surface, only Current().
type Store interface {
	Current() configstore.Snapshot
}

// Load derives a typed Config from store's current snapshot. Call again
// after any configstore mutation to pick up the new document — this package
// holds no cache of its own.
func Load(store Store) (*Config, error) {
	return FromRaw(store.Current().Raw)
}
