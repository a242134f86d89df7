package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRankOrder(t *testing.T) {
	require.Less(t, Rank(RoleUser), Rank(RoleEditor))
	require.Less(t, Rank(RoleEditor), Rank(RoleAdmin))
	require.Equal(t, -1, Rank(Role("superuser")))
}

func TestAuthorize(t *testing.T) {
	cases := []struct {
		caller, min Role
		want        bool
	}{
		{RoleAdmin, RoleEditor, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleEditor, RoleEditor, true},
		{RoleEditor, RoleAdmin, false},
		{RoleUser, RoleAdmin, false},
		{RoleUser, RoleUser, true},
		{Role("superuser"), RoleUser, false},
		{RoleAdmin, Role("superuser"), false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Authorize(tc.caller, tc.min),
			"authorize(%s, %s)", tc.caller, tc.min)
	}
}

func TestValid(t *testing.T) {
	require.True(t, Valid(RoleUser))
	require.True(t, Valid(RoleEditor))
	require.True(t, Valid(RoleAdmin))
	require.False(t, Valid(Role("")))
	require.False(t, Valid(Role("root")))
}
