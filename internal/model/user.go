package model

// Contact is the subset of a user record needed by notification
// collaborators.  Users themselves are managed by the identity service; this
// service only reads them.
type Contact struct {
    UserID   uint64 `json:"user_id"`   // users.id
    Email    string `json:"email"`     // users.email
    Phone    string `json:"phone"`     // users.phone
    FullName string `json:"full_name"` // users.full_name
}
