package models

import "time"

// UserProfilesTable is the DynamoDB table holding user profiles.
const UserProfilesTable = "UserProfiles"

// UserProfile is the subset of the external profile record this service reads.
type UserProfile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// UserStats are derived counts written back to the profile store.
type UserStats struct {
	TotalMatches    int       `json:"totalMatches"`
	RevealedMatches int       `json:"revealedMatches"`
	ArchivedMatches int       `json:"archivedMatches"`
	UpdatedAt       time.Time `json:"statsUpdatedAt"`
}
