package events

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

type fakeMailer struct {
	sent []mail.EventInviteData
	err  map[string]error // by recipient
}

func (f *fakeMailer) SendEventInvite(to string, data mail.EventInviteData) error {
	if err, ok := f.err[to]; ok {
		return err
	}
	f.sent = append(f.sent, data)
	return nil
}

var inviteNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, db *gorm.DB, mailer *fakeMailer) *Service {
	t.Helper()
	clock := func() time.Time { return inviteNow }
	cfg := &config.AppConfig{
		BrandName: "Test Incubator",
		URL: config.URLConfig{
			ServerURL: "https://api.example.com",
			WebURL:    "https://admin.example.com",
		},
	}
	tokenSvc := tokens.NewService(db).WithClock(clock)
	return NewService(db, tokenSvc, mailer, cfg, zap.NewNop()).WithClock(clock)
}

func addAlumni(t *testing.T, db *gorm.DB, email string) *models.AlumniModel {
	t.Helper()
	row := models.AlumniModel{FirstName: "Guest", Email: email}
	require.NoError(t, db.Create(&row).Error)
	return &row
}

func TestInviteMintsTokenPerContact(t *testing.T) {
	db := newTestDB(t)
	mailer := &fakeMailer{}
	svc := newTestService(t, db, mailer)

	event, err := svc.Create(CreateEventDTO{
		Title:    "Demo Day",
		StartsAt: inviteNow.Add(72 * time.Hour),
		EndsAt:   inviteNow.Add(76 * time.Hour),
	})
	require.NoError(t, err)

	a := addAlumni(t, db, "one@example.com")
	b := addAlumni(t, db, "two@example.com")

	report, err := svc.Invite(event.ID, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Invited)
	assert.Empty(t, report.Failures)

	require.Len(t, mailer.sent, 2)
	assert.Contains(t, mailer.sent[0].GoingURL, "status=going")
	assert.Contains(t, mailer.sent[0].NotGoingURL, "status=not_going")

	var tokenRows []models.EventInviteTokenModel
	require.NoError(t, db.Find(&tokenRows).Error)
	require.Len(t, tokenRows, 2)
	for _, row := range tokenRows {
		assert.Equal(t, event.ID, row.EventID)
		assert.Equal(t, models.RSVPStatusPending, row.Status)
		// Tokens stay alive until the event ends.
		assert.True(t, row.ExpiresAt.Equal(inviteNow.Add(76*time.Hour)))
	}
}

func TestInviteCollectsPerContactFailures(t *testing.T) {
	db := newTestDB(t)
	mailer := &fakeMailer{err: map[string]error{
		"bad@example.com": &mail.SendError{Kind: mail.KindProvider, Err: assert.AnError},
	}}
	svc := newTestService(t, db, mailer)

	event, err := svc.Create(CreateEventDTO{
		Title:    "Demo Day",
		StartsAt: inviteNow.Add(72 * time.Hour),
	})
	require.NoError(t, err)

	good := addAlumni(t, db, "good@example.com")
	bad := addAlumni(t, db, "bad@example.com")

	report, err := svc.Invite(event.ID, []string{good.ID, bad.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Invited)
	assert.Equal(t, []string{"bad@example.com"}, report.Failures)
}

func TestInvitePastEventRejected(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, &fakeMailer{})

	event, err := svc.Create(CreateEventDTO{
		Title:    "Retro",
		StartsAt: inviteNow.Add(-48 * time.Hour),
		EndsAt:   inviteNow.Add(-44 * time.Hour),
	})
	require.NoError(t, err)

	guest := addAlumni(t, db, "late@example.com")
	_, err = svc.Invite(event.ID, []string{guest.ID})
	assert.ErrorIs(t, err, errEventOver)
}

func TestResponsesListsAnswers(t *testing.T) {
	db := newTestDB(t)
	mailer := &fakeMailer{}
	svc := newTestService(t, db, mailer)

	event, err := svc.Create(CreateEventDTO{
		Title:    "Demo Day",
		StartsAt: inviteNow.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	guest := addAlumni(t, db, "guest@example.com")
	_, err = svc.Invite(event.ID, []string{guest.ID})
	require.NoError(t, err)

	rows, err := svc.Responses(event.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "guest@example.com", rows[0].Email)
}
