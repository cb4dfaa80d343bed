package session

import "time"

// User is the identity projection of the logged-in user. It is the only part of
// the session that may be returned to the client.
type User struct {
	Subject           string `json:"sub"`
	Name              string `json:"name,omitempty"`
	GivenName         string `json:"givenName,omitempty"`
	FamilyName        string `json:"familyName,omitempty"`
	Email             string `json:"email,omitempty"`
	PreferredUsername string `json:"preferredUsername,omitempty"`
}

// DisplayName returns the best available human readable name.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.PreferredUsername != "":
		return u.PreferredUsername
	case u.Email != "":
		return u.Email
	default:
		return u.Subject
	}
}

// Credentials is the OAuth credential bundle. It never leaves the server.
type Credentials struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
	// ExpiresAt is the access token expiry in epoch milliseconds.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

func (c Credentials) Expiry() time.Time {
	return time.UnixMilli(c.ExpiresAt)
}

// Session is a value. Functions that change a session return a new one.
type Session struct {
	User       User        `json:"user"`
	Secure     Credentials `json:"secure"`
	LoggedInAt time.Time   `json:"loggedInAt"`
}

func (s Session) IsZero() bool {
	return s.User == User{} && s.Secure == Credentials{} && s.LoggedInAt.IsZero()
}

// Anonymous reports whether the session carries no access token.
func (s Session) Anonymous() bool {
	return s.Secure.AccessToken == ""
}

// WithCredentials returns a copy of the session holding the given credentials.
func (s Session) WithCredentials(c Credentials) Session {
	s.Secure = c
	return s
}

// Public is the client visible part of a session.
type Public struct {
	User       User      `json:"user"`
	LoggedInAt time.Time `json:"loggedInAt"`
}

func (s Session) Public() Public {
	return Public{User: s.User, LoggedInAt: s.LoggedInAt}
}

// ExpiresAt computes the epoch millisecond expiry of a token issued at now.
func ExpiresAt(now time.Time, expiresIn time.Duration) int64 {
	return now.Add(expiresIn).UnixMilli()
}
