package models

// User is an account entity. Password holds the already-hashed credential;
// hashing happens outside this layer. GUI marks accounts allowed into the
// administrative interface.
type User struct {
	Core
	Email    string
	Password string
	Admin    bool
	GUI      bool
}

func (*User) EntityType() string { return EntityTypeUser }

// NewUser creates an unpersisted user.
func NewUser(name, email, hashedPassword string) *User {
	return &User{Core: Core{Name: name}, Email: email, Password: hashedPassword}
}
