package logins

import (
	"github.com/mailstash/mailstash/interfaces"
)

type staticLoginSource struct {
	logins []interfaces.Login
}

// NewStaticLoginSource pairs users with passwords positionally. A missing
// password yields an empty one rather than dropping the user.
func NewStaticLoginSource(users, passwords []string) interfaces.LoginSource {
	logins := make([]interfaces.Login, 0, len(users))
	for i, user := range users {
		if user == "" {
			continue
		}
		login := interfaces.Login{Username: user}
		if i < len(passwords) {
			login.Password = passwords[i]
		}
		logins = append(logins, login)
	}
	return &staticLoginSource{logins: logins}
}

func (s *staticLoginSource) Name() string {
	return "static login source"
}

func (s *staticLoginSource) Logins() []interfaces.Login {
	return s.logins
}

func (s *staticLoginSource) Close() {}
