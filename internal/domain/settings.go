package domain

// Danmaku scroll speed bounds in seconds, matching the overlay renderer.
const (
	MinDanmakuSpeed     = 5
	MaxDanmakuSpeed     = 60
	DefaultDanmakuSpeed = 10
)

// RuntimeSettings are the operator-tunable presentation settings. They are
// stored server-side and pushed to subscribers on change.
type RuntimeSettings struct {
	GroupAliases   map[string]string `json:"group_aliases"`
	FavoriteGroups []string          `json:"favorite_groups"`
	DanmakuSpeed   int               `json:"danmaku_speed"`
}

// DefaultRuntimeSettings returns the settings used before an operator has
// saved anything.
func DefaultRuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		GroupAliases:   make(map[string]string),
		FavoriteGroups: []string{},
		DanmakuSpeed:   DefaultDanmakuSpeed,
	}
}

// Group is one distinct chat group, with the latest session that maps to it.
type Group struct {
	SessionRef int64  `json:"id,string"`
	GroupID    string `json:"group_id"`
	Alias      string `json:"alias,omitempty"`
}
