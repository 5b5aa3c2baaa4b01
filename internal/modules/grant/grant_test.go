package grant

import (
	"context"
	"testing"
	"time"

	"github.com/BantawigP/TBI-marian-sub001/internal/config"
	"github.com/BantawigP/TBI-marian-sub001/internal/database"
	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/identity"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/mail"
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
	byEmail    map[string]*identity.User
	created    []string
	confirmed  []string
	links      []string
	findErr    error
	createErr  error
	confirmErr error
	linkErr    error
	nextUserID string
}

func (f *fakeProvider) AdminGetUser(ctx context.Context, userID string) (*identity.User, error) {
	return nil, identity.ErrNotFound
}

func (f *fakeProvider) FindUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	user, ok := f.byEmail[email]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return user, nil
}

func (f *fakeProvider) CreateUser(ctx context.Context, email string) (*identity.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, email)
	return &identity.User{ID: f.nextUserID, Email: email, Confirmed: true}, nil
}

func (f *fakeProvider) ConfirmUser(ctx context.Context, userID string) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirmed = append(f.confirmed, userID)
	return nil
}

func (f *fakeProvider) GenerateSignInLink(ctx context.Context, email, redirectTo string) (string, error) {
	if f.linkErr != nil {
		return "", f.linkErr
	}
	f.links = append(f.links, redirectTo)
	return "https://id.example.com/magiclink?for=" + email, nil
}

type fakeMailer struct {
	sent []mail.AccessInviteData
	err  error
}

func (f *fakeMailer) SendAccessInvite(to string, data mail.AccessInviteData) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, data)
	return nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		BrandName: "Test Incubator",
		URL: config.URLConfig{
			ServerURL: "https://api.example.com",
			WebURL:    "https://admin.example.com",
		},
		Tokens: config.TokensConfig{
			VerifyTTL: 24 * time.Hour,
			InviteTTL: 7 * 24 * time.Hour,
		},
	}
}

func addMember(t *testing.T, db *gorm.DB, email string) *models.TeamMemberModel {
	t.Helper()
	member := models.TeamMemberModel{Name: "Casey", Email: email, Role: models.RoleMember}
	require.NoError(t, db.Create(&member).Error)
	return &member
}

func TestGrantProvisionsAndDelivers(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{byEmail: map[string]*identity.User{}, nextUserID: "uid-new"}
	mailer := &fakeMailer{}
	svc := NewService(db, provider, mailer, testConfig(), zap.NewNop())
	member := addMember(t, db, "casey@example.com")

	result, err := svc.Grant(context.Background(), member.ID, "casey@example.com", models.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, DeliverySent, result.Delivery)
	assert.Empty(t, result.ActionLink, "links are only exposed when delivery fails")
	assert.Empty(t, result.ClaimURL)

	assert.Equal(t, []string{"casey@example.com"}, provider.created)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, models.RoleManager, mailer.sent[0].Role)

	var stored models.TeamMemberModel
	require.NoError(t, db.Where("id = ?", member.ID).First(&stored).Error)
	assert.True(t, stored.HasAccess)
	assert.Equal(t, models.RoleManager, stored.Role)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, "uid-new", *stored.UserID)

	var invite models.AccessInviteModel
	require.NoError(t, db.Where("team_member_id = ?", member.ID).First(&invite).Error)
	assert.Equal(t, models.RoleManager, invite.RoleID)
	require.Len(t, provider.links, 1)
	assert.Contains(t, provider.links[0], invite.Token)
}

func TestGrantReusesExistingProviderAccount(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{byEmail: map[string]*identity.User{
		"casey@example.com": {ID: "uid-old", Email: "casey@example.com", Confirmed: true},
	}}
	mailer := &fakeMailer{}
	svc := NewService(db, provider, mailer, testConfig(), zap.NewNop())
	member := addMember(t, db, "casey@example.com")

	_, err := svc.Grant(context.Background(), member.ID, "casey@example.com", models.RoleAdmin)
	require.NoError(t, err)
	assert.Empty(t, provider.created)

	var stored models.TeamMemberModel
	require.NoError(t, db.Where("id = ?", member.ID).First(&stored).Error)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, "uid-old", *stored.UserID)
}

func TestGrantSurvivesPermanentMailFailure(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{byEmail: map[string]*identity.User{}, nextUserID: "uid-new"}
	mailer := &fakeMailer{err: &mail.SendError{Kind: mail.KindNotConfigured, Err: assert.AnError}}
	svc := NewService(db, provider, mailer, testConfig(), zap.NewNop())
	member := addMember(t, db, "casey@example.com")

	result, err := svc.Grant(context.Background(), member.ID, "casey@example.com", models.RoleMember)
	require.NoError(t, err, "a broken mail setup must not fail the grant")
	assert.Equal(t, DeliveryFailedPermanent, result.Delivery)
	assert.NotEmpty(t, result.ActionLink)
	assert.NotEmpty(t, result.ClaimURL)
	assert.NotEmpty(t, result.MailError)

	var stored models.TeamMemberModel
	require.NoError(t, db.Where("id = ?", member.ID).First(&stored).Error)
	assert.True(t, stored.HasAccess, "grant must be recorded despite mail failure")
}

func TestGrantSurvivesTransientMailFailure(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{byEmail: map[string]*identity.User{}, nextUserID: "uid-new"}
	mailer := &fakeMailer{err: &mail.SendError{Kind: mail.KindProvider, Err: assert.AnError}}
	svc := NewService(db, provider, mailer, testConfig(), zap.NewNop())
	member := addMember(t, db, "casey@example.com")

	result, err := svc.Grant(context.Background(), member.ID, "casey@example.com", models.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, DeliveryFailedTransient, result.Delivery)
	assert.NotEmpty(t, result.ActionLink)
}

func TestGrantRejectsMismatchedEmail(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{byEmail: map[string]*identity.User{}, nextUserID: "uid-new"}
	svc := NewService(db, provider, &fakeMailer{}, testConfig(), zap.NewNop())
	member := addMember(t, db, "casey@example.com")

	_, err := svc.Grant(context.Background(), member.ID, "other@example.com", models.RoleMember)
	assert.ErrorIs(t, err, ErrEmailMismatch)
	assert.Empty(t, provider.created, "nothing is provisioned on a mismatch")

	// Case only differs: still the same member.
	_, err = svc.Grant(context.Background(), member.ID, "Casey@Example.COM", models.RoleMember)
	require.NoError(t, err)
}

func TestGrantConfirmsExistingUnconfirmedAccount(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{byEmail: map[string]*identity.User{
		"casey@example.com": {ID: "uid-old", Email: "casey@example.com", Confirmed: false},
	}}
	mailer := &fakeMailer{}
	svc := NewService(db, provider, mailer, testConfig(), zap.NewNop())
	member := addMember(t, db, "casey@example.com")

	_, err := svc.Grant(context.Background(), member.ID, "casey@example.com", models.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, []string{"uid-old"}, provider.confirmed,
		"an unconfirmed account must be confirmed before the link is minted")
	assert.Empty(t, provider.created)
}

func TestGrantFailsWhenConfirmFails(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{
		byEmail: map[string]*identity.User{
			"casey@example.com": {ID: "uid-old", Email: "casey@example.com", Confirmed: false},
		},
		confirmErr: identity.ErrProvider,
	}
	svc := NewService(db, provider, &fakeMailer{}, testConfig(), zap.NewNop())
	member := addMember(t, db, "casey@example.com")

	_, err := svc.Grant(context.Background(), member.ID, "casey@example.com", models.RoleMember)
	assert.ErrorIs(t, err, identity.ErrProvider)

	var stored models.TeamMemberModel
	require.NoError(t, db.Where("id = ?", member.ID).First(&stored).Error)
	assert.False(t, stored.HasAccess)
}

func TestGrantRejectsUnknownRole(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, &fakeProvider{}, &fakeMailer{}, testConfig(), zap.NewNop())
	member := addMember(t, db, "casey@example.com")

	_, err := svc.Grant(context.Background(), member.ID, "casey@example.com", "Owner")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestGrantUnknownMember(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, &fakeProvider{}, &fakeMailer{}, testConfig(), zap.NewNop())

	_, err := svc.Grant(context.Background(), "missing-id", "casey@example.com", models.RoleMember)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestGrantProviderFailureLeavesMemberUntouched(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{findErr: identity.ErrProvider}
	svc := NewService(db, provider, &fakeMailer{}, testConfig(), zap.NewNop())
	member := addMember(t, db, "casey@example.com")

	_, err := svc.Grant(context.Background(), member.ID, "casey@example.com", models.RoleMember)
	assert.ErrorIs(t, err, identity.ErrProvider)

	var stored models.TeamMemberModel
	require.NoError(t, db.Where("id = ?", member.ID).First(&stored).Error)
	assert.False(t, stored.HasAccess)
	assert.Nil(t, stored.UserID)
}
