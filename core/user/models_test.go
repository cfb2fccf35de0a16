package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUser_roles(t *testing.T) {
	tests := []struct {
		roles                                 []string
		isAdmin, isTeacher, isParent, isStaff bool
	}{
		{roles: []string{RoleParent}, isParent: true},
		{roles: []string{RoleTeacher}, isTeacher: true, isStaff: true},
		{roles: []string{RoleAdminPrincipal}, isAdmin: true, isStaff: true},
		{roles: []string{RoleParent, RoleTeacher}, isTeacher: true, isParent: true, isStaff: true},
		{roles: nil},
	}
	for _, tc := range tests {
		usr := User{Roles: tc.roles}
		assert.Equal(t, tc.isAdmin, usr.IsAdmin(), tc.roles)
		assert.Equal(t, tc.isTeacher, usr.IsTeacher(), tc.roles)
		assert.Equal(t, tc.isParent, usr.IsParent(), tc.roles)
		assert.Equal(t, tc.isStaff, usr.IsStaff(), tc.roles)
	}

	assert.Equal(t, 30, MaxRolePriority([]string{RoleParent, RoleAdminOwner, RoleTeacher}))
	assert.Equal(t, 0, MaxRolePriority([]string{"lol"}))
	assert.True(t, (&User{Roles: []string{RoleAdmin}}).HasAnyRole(StaffRoles...))
	assert.False(t, (&User{Roles: []string{RoleParent}}).HasAnyRole(StaffRoles...))
}

func TestUser_RequiresVerification(t *testing.T) {
	teacher := User{Roles: []string{RoleTeacher}}
	parent := User{Roles: []string{RoleParent}}

	assert.True(t, teacher.RequiresVerification())
	assert.False(t, parent.RequiresVerification())

	teacher.EmailVerifiedAt = time.Now()
	assert.False(t, teacher.RequiresVerification())
}

func TestUser_password(t *testing.T) {
	var usr User
	assert.NoError(t, usr.SetPassword("Passw0rd!"))
	assert.NotEqual(t, []byte("Passw0rd!"), usr.PasswordHash)
	assert.NoError(t, usr.CheckPassword("Passw0rd!"))
	assert.Error(t, usr.CheckPassword("passw0rd!"))
}

func TestPasswordPolicyViolation(t *testing.T) {
	tests := []struct {
		pwd   string
		attrs []string
		want  string
	}{
		{pwd: "Pa0!", want: pwdMinLenTag},
		{pwd: "Passw0rd !", want: pwdNoSpaceTag},
		{pwd: "12345678", want: pwdNotAllNumTag},
		{pwd: "password", want: pwdComplexityTag},
		{pwd: "Password1", want: pwdComplexityTag},
		{pwd: "Amani.Kab1", attrs: []string{"Amani Kabila"}, want: pwdAttrSimTag},
		{pwd: "Passw0rd!", attrs: []string{"Amani Kabila", "amani@test.cd"}},
		{pwd: "Passw0rd!", attrs: []string{""}},
	}
	for _, tc := range tests {
		t.Run(tc.pwd, func(t *testing.T) {
			assert.Equal(t, tc.want, PasswordPolicyViolation(tc.pwd, tc.attrs...))
		})
	}
}
