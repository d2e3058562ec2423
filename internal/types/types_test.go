package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoomKey(t *testing.T) {
	tcases := []struct {
		name    string
		input   string
		want    RoomKey
		subject string
		slug    string
		err     bool
	}{
		{name: "valid key", input: "physics/kinematics", want: "physics/kinematics", subject: "physics", slug: "kinematics"},
		{name: "surrounding spaces", input: "  math/algebra ", want: "math/algebra", subject: "math", slug: "algebra"},
		{name: "missing slash", input: "physics", err: true},
		{name: "empty subject", input: "/kinematics", err: true},
		{name: "empty slug", input: "physics/", err: true},
		{name: "too many parts", input: "a/b/c", err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := ParseRoomKey(tc.input)
			if tc.err {
				assert.ErrorIs(t, err, ErrInvalidRoomKey, "expected invalid room key error")
				return
			}

			assert.NoError(t, err, "expected no error parsing %q", tc.input)
			assert.Equal(t, tc.want, key, "expected room key to match")
			assert.Equal(t, tc.subject, key.Subject(), "expected subject to match")
			assert.Equal(t, tc.slug, key.Slug(), "expected slug to match")
		})
	}
}

func TestRoom_Key(t *testing.T) {
	r := Room{Subject: "chemistry", Slug: "organic", Title: "Organic Chemistry"}
	assert.Equal(t, RoomKey("chemistry/organic"), r.Key(), "expected room key to be subject/slug")
}
