package alumni

import (
	"errors"
	"strings"

	"github.com/BantawigP/TBI-marian-sub001/internal/middleware"
	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/dispatch"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/pagination"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CreateAlumniDTO struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"      binding:"required,email"`
	Phone     string `json:"phone"`
	Cohort    string `json:"cohort"`
	Company   string `json:"company"`
	Notes     string `json:"notes"`
}

type UpdateAlumniDTO struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Cohort    *string `json:"cohort"`
	Company   *string `json:"company"`
	Notes     *string `json:"notes"`
}

var errDuplicateEmail = errors.New("an alumni contact with this email already exists")

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Create(dto CreateAlumniDTO) (*models.AlumniModel, error) {
	email := strings.ToLower(strings.TrimSpace(dto.Email))

	var count int64
	if err := s.db.Model(&models.AlumniModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errDuplicateEmail
	}

	row := models.AlumniModel{
		FirstName: strings.TrimSpace(dto.FirstName),
		LastName:  strings.TrimSpace(dto.LastName),
		Email:     email,
		Phone:     dto.Phone,
		Cohort:    dto.Cohort,
		Company:   dto.Company,
		Notes:     dto.Notes,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) Get(id string) (*models.AlumniModel, error) {
	var row models.AlumniModel
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) Update(id string, dto UpdateAlumniDTO) (*models.AlumniModel, error) {
	row, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if dto.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*dto.FirstName)
	}
	if dto.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*dto.LastName)
	}
	if dto.Phone != nil {
		updates["phone"] = *dto.Phone
	}
	if dto.Cohort != nil {
		updates["cohort"] = *dto.Cohort
	}
	if dto.Company != nil {
		updates["company"] = *dto.Company
	}
	if dto.Notes != nil {
		updates["notes"] = *dto.Notes
	}
	if len(updates) == 0 {
		return row, nil
	}
	if err := s.db.Model(row).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Archive soft-deletes the contact. Archived contacts drop out of sweeps and
// listings but keep their history.
func (s *Service) Archive(id string) error {
	result := s.db.Where("id = ?", id).Delete(&models.AlumniModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type Handler struct {
	svc      *Service
	dispatch *dispatch.Service
}

func NewHandler(svc *Service, dispatchSvc *dispatch.Service) *Handler {
	return &Handler{svc: svc, dispatch: dispatchSvc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/alumni", authMW)
	g.GET("", h.list)
	g.GET("/:id", h.get)

	w := g.Group("", middleware.RequireRole(models.RoleAdmin, models.RoleManager))
	w.POST("", h.create)
	w.PUT("/:id", h.update)
	w.DELETE("/:id", h.archive)
	w.POST("/:id/send-verification", h.sendVerification)
}

// GET /alumni?cohort=&verified=&q=&page=&size=
func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)

	query := h.svc.db.Model(&models.AlumniModel{})
	if cohort := c.Query("cohort"); cohort != "" {
		query = query.Where("cohort = ?", cohort)
	}
	if verified := c.Query("verified"); verified != "" {
		query = query.Where("verified = ?", verified == "true")
	}
	if search := strings.TrimSpace(c.Query("q")); search != "" {
		like := "%" + search + "%"
		query = query.Where("first_name LIKE ? OR last_name LIKE ? OR email LIKE ? OR company LIKE ?",
			like, like, like, like)
	}
	query = query.Order("created_at DESC")

	var rows []models.AlumniModel
	page, err := pagination.Paginate(query, q, &rows)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, rows, page)
}

// GET /alumni/:id
func (h *Handler) get(c *gin.Context) {
	row, err := h.svc.Get(c.Param("id"))
	if err != nil {
		response.NotFound(c)
		return
	}
	response.OK(c, row)
}

// POST /alumni
func (h *Handler) create(c *gin.Context) {
	var dto CreateAlumniDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	row, err := h.svc.Create(dto)
	if err != nil {
		if errors.Is(err, errDuplicateEmail) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, row)
}

// PUT /alumni/:id
func (h *Handler) update(c *gin.Context) {
	var dto UpdateAlumniDTO
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

// DELETE /alumni/:id
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

// POST /alumni/:id/send-verification
func (h *Handler) sendVerification(c *gin.Context) {
	row, err := h.svc.Get(c.Param("id"))
	if err != nil {
		response.NotFound(c)
		return
	}
	if row.Verified {
		response.Conflict(c, "contact is already verified")
		return
	}
	if err := h.dispatch.SendInitial(row.Email, row.FirstName); err != nil {
		if errors.Is(err, dispatch.ErrAlreadySent) {
			response.Conflict(c, "initial verification email was already sent")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"sent": true, "email": row.Email})
}
