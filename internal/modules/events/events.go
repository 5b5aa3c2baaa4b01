package events

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BantawigP/TBI-marian-sub001/internal/config"
	"github.com/BantawigP/TBI-marian-sub001/internal/middleware"
	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/tokens"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/mail"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/pagination"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreateEventDTO struct {
	Title       string    `json:"title"       binding:"required"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"   binding:"required"`
	EndsAt      time.Time `json:"ends_at"`
}

type UpdateEventDTO struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}

type InviteDTO struct {
	AlumniIDs []string `json:"alumni_ids" binding:"required,min=1"`
}

// InviteReport summarizes a batch invite: who got an email, who failed.
type InviteReport struct {
	Invited  int      `json:"invited"`
	Failures []string `json:"failures"`
}

var errEventOver = errors.New("event has already ended")

// Mailer is the slice of the mail sender the events module needs.
type Mailer interface {
	SendEventInvite(to string, data mail.EventInviteData) error
}

type Service struct {
	db     *gorm.DB
	tokens *tokens.Service
	mailer Mailer
	cfg    *config.AppConfig
	log    *zap.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, tokenSvc *tokens.Service, mailer Mailer, cfg *config.AppConfig, log *zap.Logger) *Service {
	return &Service{db: db, tokens: tokenSvc, mailer: mailer, cfg: cfg, log: log, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(dto CreateEventDTO) (*models.EventModel, error) {
	row := models.EventModel{
		Title:       strings.TrimSpace(dto.Title),
		Description: dto.Description,
		Location:    dto.Location,
		StartsAt:    dto.StartsAt,
		EndsAt:      dto.EndsAt,
	}
	if row.EndsAt.IsZero() {
		row.EndsAt = row.StartsAt.Add(2 * time.Hour)
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) Get(id string) (*models.EventModel, error) {
	var row models.EventModel
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) Update(id string, dto UpdateEventDTO) (*models.EventModel, error) {
	row, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if dto.Title != nil {
		updates["title"] = strings.TrimSpace(*dto.Title)
	}
	if dto.Description != nil {
		updates["description"] = *dto.Description
	}
	if dto.Location != nil {
		updates["location"] = *dto.Location
	}
	if dto.StartsAt != nil {
		updates["starts_at"] = *dto.StartsAt
	}
	if dto.EndsAt != nil {
		updates["ends_at"] = *dto.EndsAt
	}
	if len(updates) == 0 {
		return row, nil
	}
	if err := s.db.Model(row).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(id)
}

func (s *Service) Delete(id string) error {
	result := s.db.Where("id = ?", id).Delete(&models.EventModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Invite sends RSVP emails to the given alumni. Each invitee gets their own
// token; the token stays redeemable until the event ends, so answers can
// change. Per-invitee failures are collected, not fatal.
func (s *Service) Invite(eventID string, alumniIDs []string) (*InviteReport, error) {
	event, err := s.Get(eventID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiry := event.EndsAt
	if expiry.Before(event.StartsAt) {
		expiry = event.StartsAt
	}
	if !expiry.After(now) {
		return nil, errEventOver
	}
	ttl := expiry.Sub(now)

	var contacts []models.AlumniModel
	if err := s.db.Where("id IN ?", alumniIDs).Find(&contacts).Error; err != nil {
		return nil, err
	}

	report := &InviteReport{Failures: []string{}}
	for i := range contacts {
		contact := &contacts[i]
		if err := s.inviteOne(event, contact, ttl); err != nil {
			report.Failures = append(report.Failures, contact.Email)
			s.log.Warn("event invite failed",
				zap.String("event_id", event.ID),
				zap.String("email", contact.Email),
				zap.Error(err))
			continue
		}
		report.Invited++
	}
	return report, nil
}

func (s *Service) inviteOne(event *models.EventModel, contact *models.AlumniModel, ttl time.Duration) error {
	secret, err := s.tokens.IssueRSVP(event.ID, contact.Email, &contact.ID, ttl)
	if err != nil {
		return err
	}

	return s.mailer.SendEventInvite(contact.Email, mail.EventInviteData{
		BrandName:   s.cfg.BrandName,
		FirstName:   contact.FirstName,
		EventTitle:  event.Title,
		StartsAt:    event.StartsAt.Format("Monday, 2 January 2006 at 15:04"),
		Location:    event.Location,
		GoingURL:    s.rsvpURL(secret, models.RSVPStatusGoing),
		NotGoingURL: s.rsvpURL(secret, models.RSVPStatusNotGoing),
	})
}

func (s *Service) rsvpURL(secret, status string) string {
	base := strings.TrimRight(s.cfg.URL.ServerURL, "/")
	return fmt.Sprintf("%s/api/v1/rsvp?token=%s&status=%s", base, url.QueryEscape(secret), status)
}

// Responses returns all RSVP answers for an event.
func (s *Service) Responses(eventID string) ([]models.EventInviteTokenModel, error) {
	var rows []models.EventInviteTokenModel
	err := s.db.Where("event_id = ?", eventID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/events", authMW)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/responses", h.responses)

	w := g.Group("", middleware.RequireRole(models.RoleAdmin, models.RoleManager))
	w.POST("", h.create)
	w.PUT("/:id", h.update)
	w.DELETE("/:id", h.delete)
	w.POST("/:id/invite", h.invite)
}

// GET /events?upcoming=true&page=&size=
func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)

	query := h.svc.db.Model(&models.EventModel{})
	if c.Query("upcoming") == "true" {
		query = query.Where("starts_at > ?", h.svc.now())
	}
	query = query.Order("starts_at ASC")

	var rows []models.EventModel
	page, err := pagination.Paginate(query, q, &rows)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, rows, page)
}

// GET /events/:id
func (h *Handler) get(c *gin.Context) {
	row, err := h.svc.Get(c.Param("id"))
	if err != nil {
		response.NotFound(c)
		return
	}
	response.OK(c, row)
}

// GET /events/:id/responses
func (h *Handler) responses(c *gin.Context) {
	rows, err := h.svc.Responses(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, rows)
}

// POST /events
func (h *Handler) create(c *gin.Context) {
	var dto CreateEventDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	row, err := h.svc.Create(dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, row)
}

// PUT /events/:id
func (h *Handler) update(c *gin.Context) {
	var dto UpdateEventDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	row, err := h.svc.Update(c.Param("id"), dto)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, row)
}

// DELETE /events/:id
func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

// POST /events/:id/invite
func (h *Handler) invite(c *gin.Context) {
	var dto InviteDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	report, err := h.svc.Invite(c.Param("id"), dto.AlumniIDs)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			response.NotFound(c)
		case errors.Is(err, errEventOver):
			response.UnprocessableEntity(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.OK(c, report)
}
