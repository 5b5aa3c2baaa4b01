package bridge

import (
	"context"
	"testing"

	"github.com/BantawigP/TBI-marian-sub001/internal/database"
	"github.com/BantawigP/TBI-marian-sub001/internal/middleware"
	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

type fakeProvider struct {
	users map[string]*identity.User // by id
	err   error
}

func (f *fakeProvider) AdminGetUser(ctx context.Context, userID string) (*identity.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	user, ok := f.users[userID]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return user, nil
}

func (f *fakeProvider) FindUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	return nil, identity.ErrNotFound
}

func (f *fakeProvider) CreateUser(ctx context.Context, email string) (*identity.User, error) {
	return nil, identity.ErrProvider
}

func (f *fakeProvider) ConfirmUser(ctx context.Context, userID string) error {
	return identity.ErrProvider
}

func (f *fakeProvider) GenerateSignInLink(ctx context.Context, email, redirectTo string) (string, error) {
	return "", identity.ErrProvider
}

// signedToken builds a structurally valid JWT for the given subject. The
// signature is garbage on purpose: the bridge must not rely on it.
func signedToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject})
	raw, err := token.SignedString([]byte("not-the-real-key"))
	require.NoError(t, err)
	return raw
}

func addMember(t *testing.T, db *gorm.DB, email string, hasAccess bool, userID *string) *models.TeamMemberModel {
	t.Helper()
	member := models.TeamMemberModel{
		Name: "Member", Email: email, Role: models.RoleMember,
		HasAccess: hasAccess, UserID: userID,
	}
	require.NoError(t, db.Create(&member).Error)
	return &member
}

func TestAuthenticateLinksOnFirstUse(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{users: map[string]*identity.User{
		"uid-1": {ID: "uid-1", Email: "dev@example.com", Confirmed: true},
	}}
	svc := NewService(db, provider, zap.NewNop())
	addMember(t, db, "dev@example.com", true, nil)

	member, err := svc.Authenticate(context.Background(), signedToken(t, "uid-1"))
	require.NoError(t, err)
	require.NotNil(t, member.UserID)
	assert.Equal(t, "uid-1", *member.UserID)

	// The link is persisted and stable across requests.
	member, err = svc.Authenticate(context.Background(), signedToken(t, "uid-1"))
	require.NoError(t, err)
	assert.Equal(t, "uid-1", *member.UserID)

	var stored models.TeamMemberModel
	require.NoError(t, db.Where("email = ?", "dev@example.com").First(&stored).Error)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, "uid-1", *stored.UserID)
	assert.True(t, stored.HasAccess, "linking must not touch has_access")
}

func TestAuthenticateMatchesEmailCaseInsensitively(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{users: map[string]*identity.User{
		"uid-1": {ID: "uid-1", Email: "Dev@Example.COM", Confirmed: true},
	}}
	svc := NewService(db, provider, zap.NewNop())
	addMember(t, db, "dev@example.com", true, nil)

	member, err := svc.Authenticate(context.Background(), signedToken(t, "uid-1"))
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", member.Email)
}

func TestAuthenticateFailsClosedOnProviderError(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{err: identity.ErrProvider}
	svc := NewService(db, provider, zap.NewNop())
	addMember(t, db, "dev@example.com", true, nil)

	_, err := svc.Authenticate(context.Background(), signedToken(t, "uid-1"))
	assert.ErrorIs(t, err, identity.ErrProvider)
}

func TestAuthenticateUnknownSubjectDenied(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{users: map[string]*identity.User{}}
	svc := NewService(db, provider, zap.NewNop())

	_, err := svc.Authenticate(context.Background(), signedToken(t, "ghost"))
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestAuthenticateNonMemberDenied(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{users: map[string]*identity.User{
		"uid-9": {ID: "uid-9", Email: "stranger@example.com", Confirmed: true},
	}}
	svc := NewService(db, provider, zap.NewNop())

	_, err := svc.Authenticate(context.Background(), signedToken(t, "uid-9"))
	assert.ErrorIs(t, err, middleware.ErrNotTeamMember)
}

func TestAuthenticateMemberWithoutAccessDenied(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{users: map[string]*identity.User{
		"uid-1": {ID: "uid-1", Email: "dev@example.com", Confirmed: true},
	}}
	svc := NewService(db, provider, zap.NewNop())
	addMember(t, db, "dev@example.com", false, nil)

	_, err := svc.Authenticate(context.Background(), signedToken(t, "uid-1"))
	assert.ErrorIs(t, err, middleware.ErrNotTeamMember)
}

func TestAuthenticateIdentityMismatchDenied(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{users: map[string]*identity.User{
		"uid-2": {ID: "uid-2", Email: "dev@example.com", Confirmed: true},
	}}
	svc := NewService(db, provider, zap.NewNop())
	other := "uid-1"
	addMember(t, db, "dev@example.com", true, &other)

	_, err := svc.Authenticate(context.Background(), signedToken(t, "uid-2"))
	assert.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestAuthenticateGarbageTokenDenied(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, &fakeProvider{}, zap.NewNop())

	_, err := svc.Authenticate(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}
