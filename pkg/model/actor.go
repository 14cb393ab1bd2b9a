package model

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleStaff    Role = "STAFF"
	RoleAdmin    Role = "ADMIN"
)

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsPrivileged() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

// CanAccess reports whether the actor may read or change a booking owned by
// customerID.
func (a Actor) CanAccess(customerID string) bool {
	if a.IsPrivileged() {
		return true
	}
	return a.ID != "" && a.ID == customerID
}
