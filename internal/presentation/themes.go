package presentation

// OverrideLookup reports the overriding theme id a consumer has configured
// for a theme slot, if any.
type OverrideLookup func(consumerID string, tt ThemeType) (themeID string, ok bool)

// ThemeLookup fetches a theme by id from the catalog for its slot.
type ThemeLookup func(tt ThemeType, id string) (*Theme, bool)

// Resolver computes the effective theme for a consumer: a per-consumer
// override when one exists and still resolves, otherwise the session's
// global theme. Overrides are a convenience, so a missing or dangling
// override is treated as "no override" rather than an error and can never
// block a broadcast.
type Resolver struct {
	overrides OverrideLookup
	themes    ThemeLookup
}

// NewResolver builds a resolver from the two injected lookups. Either may
// be nil, in which case resolution always falls back to the global theme.
func NewResolver(overrides OverrideLookup, themes ThemeLookup) *Resolver {
	return &Resolver{overrides: overrides, themes: themes}
}

// Resolve returns the effective theme for consumerID in slot tt.
func (r *Resolver) Resolve(consumerID string, tt ThemeType, global *Theme) *Theme {
	if r == nil || r.overrides == nil || r.themes == nil {
		return global
	}
	id, ok := r.overrides(consumerID, tt)
	if !ok {
		return global
	}
	theme, ok := r.themes(tt, id)
	if !ok {
		return global
	}
	return theme
}
