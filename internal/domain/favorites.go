package domain

import "fmt"

// FavoriteRef pins a TV channel or radio station for quick access and
// background refresh.
type FavoriteRef struct {
	Kind       Kind       `json:"kind"`
	ProviderID ProviderID `json:"provider_id"`
	SourceID   SourceID   `json:"source_id"`
	Name       string     `json:"name"`
}

// Validate rejects kinds other than tv and radio and incomplete refs.
func (f FavoriteRef) Validate() error {
	if f.Kind != KindTV && f.Kind != KindRadio {
		return fmt.Errorf("favorites hold tv or radio sources, not %q", f.Kind)
	}
	if f.ProviderID == "" || f.SourceID == "" {
		return fmt.Errorf("favorite needs a provider and a source")
	}
	return nil
}

// Same reports whether both refs point at the same source.
func (f FavoriteRef) Same(other FavoriteRef) bool {
	return f.Kind == other.Kind && f.ProviderID == other.ProviderID && f.SourceID == other.SourceID
}

// Key returns the cache key of the favorite's schedule on day.
func (f FavoriteRef) Key(day Date) CacheKey {
	return CacheKey{ProviderID: f.ProviderID, SourceID: f.SourceID, Day: day}
}
