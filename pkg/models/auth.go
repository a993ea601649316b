package models

import "strconv"

// AuthState is the state of the client session.
type AuthState int

const (
	LoggedOut AuthState = iota
	LoggedIn
)

func (s AuthState) String() string {
	if s == LoggedIn {
		return "LoggedIn"
	}
	return "LoggedOut"
}

// User is the identity record returned by the authentication endpoint.
type User struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by POST /auth/login. The user object is
// optional; not every backend returns it.
type LoginResponse struct {
	Token string    `json:"token"`
	User  *wireUser `json:"user,omitempty"`
}

// wireUser tolerates numeric or string user ids.
type wireUser struct {
	RawID any    `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ToUser converts the optional response user into a User. ok is false when
// the response carried none.
func (r LoginResponse) ToUser() (User, bool) {
	if r.User == nil {
		return User{}, false
	}
	u := User{Email: r.User.Email, Role: r.User.Role}
	switch id := r.User.RawID.(type) {
	case string:
		u.ID = id
	case float64:
		u.ID = strconv.FormatFloat(id, 'f', -1, 64)
	}
	return u, true
}
