package models

// PresenceEntry describes one online member of a channel.
type PresenceEntry struct {
	User        string `json:"user"`
	Name        string `json:"name,omitempty"`
	ConnectedAt int64  `json:"connectedAt,omitempty"` // unix ms
}
