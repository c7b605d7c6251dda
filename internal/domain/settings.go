package domain

// UserSettings holds per-user preferences read by delivery collaborators.
type UserSettings struct {
	UserID         string `json:"userId"`
	ArchiveEnabled bool   `json:"archiveEnabled"`
}

func DefaultUserSettings(userID string) UserSettings {
	return UserSettings{UserID: userID, ArchiveEnabled: true}
}
