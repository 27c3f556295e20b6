package models

type User struct {
	ID       int    `json:"id"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	UserType string `json:"user_type,omitempty"` // "jefatura", "terreno" or "oferente"
}

// Session is the authenticated identity the background tasks report under.
// Zero values mean the field is absent from the store.
type Session struct {
	AccessToken string `json:"-"`
	UserID      int    `json:"user_id"`
}

// Complete reports whether both the token and the user id are present
func (s Session) Complete() bool {
	return s.AccessToken != "" && s.UserID != 0
}
