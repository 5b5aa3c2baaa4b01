package team

import (
	"errors"
	"strings"

	"github.com/BantawigP/TBI-marian-sub001/internal/middleware"
	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/pagination"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CreateMemberDTO struct {
	Name  string `json:"name"  binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role"`
}

type UpdateMemberDTO struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
}

var (
	errDuplicateEmail = errors.New("a team member with this email already exists")
	errInvalidRole    = errors.New("unknown role")
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Create(dto CreateMemberDTO) (*models.TeamMemberModel, error) {
	email := strings.ToLower(strings.TrimSpace(dto.Email))
	role := dto.Role
	if role == "" {
		role = models.RoleMember
	}
	if !validRole(role) {
		return nil, errInvalidRole
	}

	var count int64
	if err := s.db.Model(&models.TeamMemberModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errDuplicateEmail
	}

	row := models.TeamMemberModel{
		Name:  strings.TrimSpace(dto.Name),
		Email: email,
		Role:  role,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) Get(id string) (*models.TeamMemberModel, error) {
	var row models.TeamMemberModel
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Update changes name and role. Email is deliberately immutable: the identity
// link and grant workflow key off it.
func (s *Service) Update(id string, dto UpdateMemberDTO) (*models.TeamMemberModel, error) {
	row, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if dto.Name != nil {
		updates["name"] = strings.TrimSpace(*dto.Name)
	}
	if dto.Role != nil {
		if !validRole(*dto.Role) {
			return nil, errInvalidRole
		}
		updates["role"] = *dto.Role
	}
	if len(updates) == 0 {
		return row, nil
	}
	if err := s.db.Model(row).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Archive soft-deletes a member, which also cuts off portal access since the
// auth middleware can no longer resolve the row.
func (s *Service) Archive(id string) error {
	result := s.db.Where("id = ?", id).Delete(&models.TeamMemberModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func validRole(role string) bool {
	for _, r := range models.GrantableRoles {
		if r == role {
			return true
		}
	}
	return false
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/team", authMW)
	g.GET("", h.list)
	g.GET("/:id", h.get)

	a := g.Group("", middleware.RequireRole(models.RoleAdmin))
	a.POST("", h.create)
	a.PUT("/:id", h.update)
	a.DELETE("/:id", h.archive)
}

// GET /team?page=&size=
func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	query := h.svc.db.Model(&models.TeamMemberModel{}).Order("created_at ASC")

	var rows []models.TeamMemberModel
	page, err := pagination.Paginate(query, q, &rows)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, rows, page)
}

// GET /team/:id
func (h *Handler) get(c *gin.Context) {
	row, err := h.svc.Get(c.Param("id"))
	if err != nil {
		response.NotFound(c)
		return
	}
	response.OK(c, row)
}

// POST /team
func (h *Handler) create(c *gin.Context) {
	var dto CreateMemberDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	row, err := h.svc.Create(dto)
	if err != nil {
		switch {
		case errors.Is(err, errDuplicateEmail):
			response.Conflict(c, err.Error())
		case errors.Is(err, errInvalidRole):
			response.UnprocessableEntity(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Created(c, row)
}

// PUT /team/:id
func (h *Handler) update(c *gin.Context) {
	var dto UpdateMemberDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	row, err := h.svc.Update(c.Param("id"), dto)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			response.NotFound(c)
		case errors.Is(err, errInvalidRole):
			response.UnprocessableEntity(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.OK(c, row)
}

// DELETE /team/:id
func (h *Handler) archive(c *gin.Context) {
	if err := h.svc.Archive(c.Param("id")); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
