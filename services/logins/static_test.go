package logins

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailstash/mailstash/interfaces"
)

func TestStaticLoginSource_PairsPositionally(t *testing.T) {
	source := NewStaticLoginSource(
		[]string{"alice", "bob"},
		[]string{"secret1", "secret2"},
	)
	defer source.Close()

	assert.Equal(t, []interfaces.Login{
		{Username: "alice", Password: "secret1"},
		{Username: "bob", Password: "secret2"},
	}, source.Logins())
}

func TestStaticLoginSource_MissingPassword(t *testing.T) {
	source := NewStaticLoginSource([]string{"alice", "bob"}, []string{"secret1"})

	logins := source.Logins()
	assert.Len(t, logins, 2)
	assert.Equal(t, "", logins[1].Password)
}

func TestStaticLoginSource_SkipsEmptyUsers(t *testing.T) {
	source := NewStaticLoginSource([]string{"", "alice"}, []string{"x", "y"})

	logins := source.Logins()
	assert.Len(t, logins, 1)
	assert.Equal(t, "alice", logins[0].Username)
	assert.Equal(t, "y", logins[0].Password)
}

func TestFirstRDNValue(t *testing.T) {
	assert.Equal(t, "jdoe", firstRDNValue("uid=jdoe,dc=example,dc=com"))
	assert.Equal(t, "", firstRDNValue(""))
}
