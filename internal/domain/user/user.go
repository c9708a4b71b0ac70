package user

// User is the public profile. ID is derived from the display name.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"`
}

// CredentialRecord is one entry of the users map kept in the local store.
type CredentialRecord struct {
	User         User   `json:"user"`
	PasswordHash string `json:"passwordHash"`
	LastLoginAt  int64  `json:"lastLoginAt"`
}
