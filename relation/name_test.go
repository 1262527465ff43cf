package relation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	t.Parallel()

	users := NewName("users", "", "")
	assert.Same(t, users, NewName("users", "users", ""))
	assert.Equal(t, "users", users.Dataset())
	assert.False(t, users.Aliased())

	people := users.As("people")
	assert.NotSame(t, users, people)
	assert.Same(t, people, NewName("users", "users", "people"))
	assert.Equal(t, "users", users.Key())
	assert.Equal(t, "people", people.Key())
	assert.False(t, users.Equal(people))
	assert.True(t, people.Equal(NewName("users", "", "people")))
	assert.False(t, users.Equal(nil))

	tests := []struct {
		name *Name
		want string
	}{
		{name: users, want: "users"},
		{name: NewName("admins", "users", ""), want: "admins on users"},
		{name: people, want: "users on users as people"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.name.String())
	}
}

func TestName_Concurrent(t *testing.T) {
	t.Parallel()

	const n = 16
	got := make([]*Name, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = NewName("accounts", "", "concurrent")
		}()
	}
	wg.Wait()
	for _, name := range got {
		assert.Same(t, got[0], name)
	}
}
