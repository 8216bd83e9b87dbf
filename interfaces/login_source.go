package interfaces

// Login is one mailbox credential pair.
type Login struct {
	Username string
	Password string
}

// LoginSource yields the ordered list of mailbox credentials. Implementations
// may be static or refresh from a directory on an interval.
type LoginSource interface {
	Name() string
	Logins() []Login
	Close()
}
