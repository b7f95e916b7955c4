package models

// UserProfile is the signed-in user as returned by GET /auth/me.
type UserProfile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AuthResponse is the payload of a successful login or registration.
type AuthResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Profile extracts the user profile carried by an auth response.
func (r AuthResponse) Profile() UserProfile {
	return UserProfile{ID: r.UserID, Username: r.Username, Email: r.Email}
}

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is the register request body. Password confirmation is a form
// concern and never part of the wire payload.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate carries a partial profile edit; nil fields are left untouched.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

// Apply merges the update into p and returns the result.
func (u ProfileUpdate) Apply(p UserProfile) UserProfile {
	if u.Username != nil {
		p.Username = *u.Username
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	return p
}

// Merge folds next into u; fields set in next win.
func (u ProfileUpdate) Merge(next ProfileUpdate) ProfileUpdate {
	if next.Username != nil {
		u.Username = next.Username
	}
	if next.Email != nil {
		u.Email = next.Email
	}
	return u
}
