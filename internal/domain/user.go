package domain

import "errors"

var (
	// ErrNotAuthenticated is returned when an action needs an active identity.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrForbidden is returned when the active identity may not perform an action.
	ErrForbidden = errors.New("forbidden")
)

// AdminUserID is the pool entry treated as administrator. This is a demo
// stand-in and not an authorization model.
const AdminUserID int64 = 1

// User is the identity a session acts as.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Username  string `json:"username"`
}

// IsAdmin reports whether user is the administrator.
func (u *User) IsAdmin() bool {
	return u != nil && u.ID == AdminUserID
}

// CatalogUserName is the nested name object of a remote user record.
type CatalogUserName struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

// CatalogUser is a user record as served by the remote catalog API.
type CatalogUser struct {
	ID       int64           `json:"id"`
	Email    string          `json:"email"`
	Username string          `json:"username"`
	Name     CatalogUserName `json:"name"`
	Phone    string          `json:"phone"`
}

// AsUser maps the remote record to an identity.
func (u CatalogUser) AsUser() User {
	return User{
		ID:        u.ID,
		FirstName: u.Name.Firstname,
		LastName:  u.Name.Lastname,
		Email:     u.Email,
		Username:  u.Username,
	}
}

// AsClient maps the remote record to an api-sourced client.
func (u CatalogUser) AsClient() Client {
	return Client{
		ID:        u.ID,
		FirstName: u.Name.Firstname,
		LastName:  u.Name.Lastname,
		Email:     u.Email,
		Username:  u.Username,
		Phone:     u.Phone,
		Source:    SourceAPI,
	}
}
