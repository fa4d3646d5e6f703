package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connect-go/internal/auth"
	"connect-go/internal/config"
	"connect-go/internal/models"
	"connect-go/internal/storage"
	"connect-go/internal/storage/storagetest"
)

var testAuthCfg = config.AuthConfig{JWTSecretKey: "test-secret", JWTExpiry: time.Hour}

func newAuthAndUsers(t *testing.T) (AuthService, UserService, *auth.MemoryBlacklist) {
	t.Helper()
	db := storagetest.NewTestDB(t)
	repo := storage.NewGormUserRepository(db)
	bl := auth.NewMemoryBlacklist()
	return NewAuthService(repo, bl, testAuthCfg), NewUserService(repo), bl
}

func TestRegisterAndLogin(t *testing.T) {
	authSvc, _, _ := newAuthAndUsers(t)
	ctx := context.Background()

	u, err := authSvc.Register(ctx, RegisterInput{
		FirstName: " Ada ",
		LastName:  "Lovelace",
		Email:     "  Ada@Example.COM ",
		Password:  "secret1",
		Skills:    []string{" go ", "", "sql"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, "Ada", u.FirstName)
	assert.Equal(t, models.DefaultPhotoURL, u.PhotoURL)
	assert.Equal(t, models.DefaultAbout, u.About)
	assert.Equal(t, []string{"go", "sql"}, u.Skills)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	_, err = authSvc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "ada@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.ErrorIs(t, err, ErrConflict)

	token, logged, err := authSvc.Login(ctx, "ADA@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, u.ID, logged.ID)

	_, _, err = authSvc.Login(ctx, "ada@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = authSvc.Login(ctx, "ghost@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	authSvc, _, bl := newAuthAndUsers(t)
	ctx := context.Background()

	_, err := authSvc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "a@b.co", Password: "secret1"})
	require.NoError(t, err)
	token, _, err := authSvc.Login(ctx, "a@b.co", "secret1")
	require.NoError(t, err)

	claims, err := auth.ValidateToken(ctx, token, testAuthCfg.JWTSecretKey, bl)
	require.NoError(t, err)
	require.NoError(t, authSvc.Logout(ctx, claims))

	_, err = auth.ValidateToken(ctx, token, testAuthCfg.JWTSecretKey, bl)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)
}

func TestUpdateProfile(t *testing.T) {
	authSvc, users, _ := newAuthAndUsers(t)
	ctx := context.Background()

	a, err := authSvc.Register(ctx, RegisterInput{FirstName: "A", LastName: "A", Email: "a@x.io", Password: "secret1"})
	require.NoError(t, err)
	b, err := authSvc.Register(ctx, RegisterInput{FirstName: "B", LastName: "B", Email: "b@x.io", Password: "secret1"})
	require.NoError(t, err)

	about := "Gopher"
	age := 31
	gender := models.GenderOther
	p, err := users.UpdateProfile(ctx, a.ID, a.ID, ProfileUpdate{About: &about, Age: &age, Gender: &gender, Skills: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, "Gopher", p.About)
	require.NotNil(t, p.Age)
	assert.Equal(t, 31, *p.Age)
	assert.Equal(t, []string{"go"}, p.Skills)

	_, err = users.UpdateProfile(ctx, b.ID, a.ID, ProfileUpdate{About: &about})
	assert.ErrorIs(t, err, ErrForbidden)

	taken := "B@x.io"
	_, err = users.UpdateProfile(ctx, a.ID, a.ID, ProfileUpdate{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailTaken)

	same := "A@X.io"
	_, err = users.UpdateProfile(ctx, a.ID, a.ID, ProfileUpdate{Email: &same})
	assert.NoError(t, err)

	got, err := users.GetProfile(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", got.Email)

	_, err = users.GetProfile(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	authSvc, users, _ := newAuthAndUsers(t)
	ctx := context.Background()

	u, err := authSvc.Register(ctx, RegisterInput{FirstName: "A", LastName: "A", Email: "a@x.io", Password: "secret1"})
	require.NoError(t, err)

	err = users.ChangePassword(ctx, u.ID, "wrong", "newsecret")
	assert.ErrorIs(t, err, ErrWrongPassword)

	require.NoError(t, users.ChangePassword(ctx, u.ID, "secret1", "newsecret"))
	_, _, err = authSvc.Login(ctx, "a@x.io", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = authSvc.Login(ctx, "a@x.io", "newsecret")
	assert.NoError(t, err)
}
