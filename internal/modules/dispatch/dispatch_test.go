package dispatch

import (
	"testing"
	"time"

	"github.com/BantawigP/TBI-marian-sub001/internal/config"
	"github.com/BantawigP/TBI-marian-sub001/internal/database"
	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/tokens"
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

type sentMail struct {
	to       string
	campaign string
	interval int
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendVerification(to string, data mail.VerifyData) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, campaign: models.CampaignInitial})
	return nil
}

func (f *fakeMailer) SendRapport(to string, intervalMonths int, data mail.RapportData) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, campaign: models.CampaignRapport, interval: intervalMonths})
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

func newTestService(t *testing.T, db *gorm.DB, mailer *fakeMailer, at time.Time) *Service {
	t.Helper()
	clock := func() time.Time { return at }
	tokenSvc := tokens.NewService(db).WithClock(clock)
	return NewService(db, tokenSvc, mailer, testConfig(), zap.NewNop()).WithClock(clock)
}

func TestSendClaimsSlotExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	mailer := &fakeMailer{}
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, db, mailer, now)

	require.NoError(t, svc.Send("a@example.com", "Ana", models.CampaignRapport, 3))

	err := svc.Send("a@example.com", "Ana", models.CampaignRapport, 3)
	assert.ErrorIs(t, err, ErrAlreadySent)
	assert.Len(t, mailer.sent, 1)

	var count int64
	require.NoError(t, db.Model(&models.CampaignLogModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSendRecordsLogAndAnchor(t *testing.T) {
	db := newTestDB(t)
	mailer := &fakeMailer{}
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, db, mailer, now)

	require.NoError(t, svc.SendInitial("a@example.com", "Ana"))

	var logRow models.CampaignLogModel
	require.NoError(t, db.First(&logRow).Error)
	assert.Equal(t, models.CampaignInitial, logRow.CampaignType)
	assert.Equal(t, 0, logRow.IntervalMonths)
	assert.Equal(t, StatusSent, logRow.Status)

	var anchor models.ReverificationAnchorModel
	require.NoError(t, db.Where("email = ?", "a@example.com").First(&anchor).Error)
	assert.True(t, anchor.FirstSentAt.Equal(now))

	var token models.VerificationTokenModel
	require.NoError(t, db.First(&token).Error)
	assert.Equal(t, "a@example.com", token.Email)
}

func TestAnchorNeverMoves(t *testing.T) {
	db := newTestDB(t)
	mailer := &fakeMailer{}
	first := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, db, mailer, first)

	require.NoError(t, svc.SendInitial("a@example.com", "Ana"))

	later := first.Add(45 * 24 * time.Hour)
	clock := func() time.Time { return later }
	svc.WithClock(clock)
	require.NoError(t, svc.Send("a@example.com", "Ana", models.CampaignRapport, 1))

	var anchor models.ReverificationAnchorModel
	require.NoError(t, db.Where("email = ?", "a@example.com").First(&anchor).Error)
	assert.True(t, anchor.FirstSentAt.Equal(first), "first_sent_at must stay at the original send")
}

func TestSendFailureRecordsFailedStatus(t *testing.T) {
	db := newTestDB(t)
	mailer := &fakeMailer{err: &mail.SendError{Kind: mail.KindProvider, Err: assert.AnError}}
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, db, mailer, now)

	err := svc.SendInitial("a@example.com", "Ana")
	require.Error(t, err)

	var logRow models.CampaignLogModel
	require.NoError(t, db.First(&logRow).Error)
	assert.Equal(t, StatusFailed, logRow.Status)
	assert.NotEmpty(t, logRow.Error)

	var anchors int64
	require.NoError(t, db.Model(&models.ReverificationAnchorModel{}).Count(&anchors).Error)
	assert.Zero(t, anchors, "failed send must not pin an anchor")
}

func TestSendRetriesFailedSlot(t *testing.T) {
	db := newTestDB(t)
	mailer := &fakeMailer{err: &mail.SendError{Kind: mail.KindProvider, Err: assert.AnError}}
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, db, mailer, now)

	require.Error(t, svc.SendInitial("a@example.com", "Ana"))

	// Once the provider recovers, the failed slot is re-claimed instead of
	// answering ErrAlreadySent forever.
	mailer.err = nil
	require.NoError(t, svc.SendInitial("a@example.com", "Ana"))

	var logRow models.CampaignLogModel
	require.NoError(t, db.First(&logRow).Error)
	assert.Equal(t, StatusSent, logRow.Status)
	assert.Empty(t, logRow.Error)

	var count int64
	require.NoError(t, db.Model(&models.CampaignLogModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "retry reuses the slot, no duplicate rows")

	var anchors int64
	require.NoError(t, db.Model(&models.ReverificationAnchorModel{}).Count(&anchors).Error)
	assert.Equal(t, int64(1), anchors)
}

func TestSentSlotStaysClaimedAfterFailedRetryAttempt(t *testing.T) {
	db := newTestDB(t)
	mailer := &fakeMailer{}
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, db, mailer, now)

	require.NoError(t, svc.Send("a@example.com", "Ana", models.CampaignRapport, 1))
	assert.ErrorIs(t, svc.Send("a@example.com", "Ana", models.CampaignRapport, 1), ErrAlreadySent)
	assert.Len(t, mailer.sent, 1)
}

func TestTemplateSelection(t *testing.T) {
	db := newTestDB(t)
	mailer := &fakeMailer{}
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, db, mailer, now)

	require.NoError(t, svc.SendInitial("a@example.com", "Ana"))
	require.NoError(t, svc.Send("a@example.com", "Ana", models.CampaignRapport, 6))

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, models.CampaignInitial, mailer.sent[0].campaign)
	assert.Equal(t, models.CampaignRapport, mailer.sent[1].campaign)
	assert.Equal(t, 6, mailer.sent[1].interval)
}

func TestVerifyURLEmbedsSecret(t *testing.T) {
	svc := NewService(nil, nil, nil, testConfig(), zap.NewNop())
	url := svc.VerifyURL("s3cret")
	assert.Equal(t, "https://api.example.com/api/v1/verification/verify?token=s3cret", url)
}
