package user

import "time"

type User struct {
	ID        string    `json:"id"`
	ClerkID   string    `json:"clerkId"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Handle    string    `json:"handle"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProfileCompleted reports whether the account can publish stories.
// Accounts created from a bare Clerk webhook may still be missing a
// username or handle until onboarding finishes.
func (u *User) ProfileCompleted() bool {
	return u.Username != "" && u.Handle != ""
}
