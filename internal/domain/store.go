package domain

// ScheduleStore persists cache entries. Each put replaces the whole entry
// atomically; a record that cannot be decoded reads as absent.
type ScheduleStore interface {
	GetEntry(key CacheKey) (CacheEntry, bool)
	PutEntry(entry CacheEntry) error
	Entries() ([]CacheEntry, error)
}

// FavoriteStore persists the ordered favorites list.
type FavoriteStore interface {
	GetFavorites() ([]FavoriteRef, error)
	SaveFavorites(favs []FavoriteRef) error
}

// IdentityStore persists the installation identity.
type IdentityStore interface {
	GetIdentity() (InstallationIdentity, bool)
	SaveIdentity(id InstallationIdentity) error
}

// Store is the full persistent state of an installation.
type Store interface {
	ScheduleStore
	FavoriteStore
	IdentityStore

	// InvalidateAll wipes every cached schedule.
	InvalidateAll() error
	Close() error
}
