package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/user"
	dummydb "github.com/trezcool/masomo-guardian/storage/database/dummy"
	apptest "github.com/trezcool/masomo-guardian/tests"
)

func mockNow(t *testing.T, now time.Time) {
	orig := user.NowFunc
	user.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { user.NowFunc = orig })
}

func TestNewUser_Validate(t *testing.T) {
	validate, translator := apptest.NewValidator()

	fieldErrs := func(err error) map[string]string {
		errs := make(map[string]string)
		for _, e := range err.(validator.ValidationErrors) {
			errs[e.Field()] = e.Translate(translator)
		}
		return errs
	}

	nu := user.NewUser{
		Name:            "  Mwalimu Baraka ",
		Email:           " Baraka@Test.CD",
		Password:        "Passw0rd!",
		PasswordConfirm: "Passw0rd!",
		Roles:           []string{user.RoleTeacher},
	}
	require.NoError(t, nu.Validate(validate))
	assert.Equal(t, "Mwalimu Baraka", nu.Name)
	assert.Equal(t, "baraka@test.cd", nu.Email)

	bad := user.NewUser{
		Name:            " ",
		Email:           "baraka",
		Password:        "12345678",
		PasswordConfirm: "1234",
		Roles:           []string{"lol"},
	}
	assert.Equal(t,
		map[string]string{
			"name":             "this field is required",
			"email":            "email must be a valid email address",
			"password":         "password cannot be entirely numeric",
			"password_confirm": "password_confirm must be equal to Password",
			"roles":            "invalid roles",
		},
		fieldErrs(bad.Validate(validate)),
	)
}

func TestService(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)
	mockNow(t, now)

	svc := user.NewService(dummydb.NewUserRepository(dummydb.Open()))

	usr, err := svc.Create(ctx, user.NewUser{
		Name:     "Mwalimu Baraka",
		Email:    "Baraka@Test.cd",
		Password: "Passw0rd!",
		Roles:    []string{user.RoleTeacher},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, "baraka@test.cd", usr.Email)
	assert.True(t, usr.IsActive)
	assert.Equal(t, now, usr.CreatedAt)
	assert.NoError(t, usr.CheckPassword("Passw0rd!"))
	assert.True(t, usr.RequiresVerification())

	_, err = svc.Create(ctx, user.NewUser{Name: "Other", Email: "baraka@test.cd", Password: "Passw0rd!"})
	assert.True(t, core.IsKind(err, core.ErrConflict))

	got, err := svc.GetByEmail(ctx, " BARAKA@test.cd ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = svc.GetByID(ctx, "lol")
	assert.Equal(t, user.ErrNotFound, err)

	later := now.Add(time.Hour)
	mockNow(t, later)

	usr, err = svc.MarkEmailVerified(ctx, usr)
	require.NoError(t, err)
	assert.Equal(t, later, usr.EmailVerifiedAt)
	assert.False(t, usr.RequiresVerification())

	// already verified: unchanged
	mockNow(t, later.Add(time.Hour))
	usr, err = svc.MarkEmailVerified(ctx, usr)
	require.NoError(t, err)
	assert.Equal(t, later, usr.EmailVerifiedAt)

	usr, err = svc.SetLastLogin(ctx, usr)
	require.NoError(t, err)
	assert.Equal(t, later.Add(time.Hour), usr.LastLogin)

	got, err = svc.GetByID(ctx, " "+usr.ID)
	require.NoError(t, err)
	assert.Equal(t, usr.LastLogin, got.LastLogin)
	assert.Equal(t, later, got.EmailVerifiedAt)
}
