package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skill-badges/internal/services"
	"github.com/skillforge/skill-badges/internal/utils"
)

// Response is the uniform envelope every route returns. Data carries a
// badge row or a row list, Message a human-readable note, Error the
// underlying failure message on 500s.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CreateBadgeRequest is the POST /badges body. Pointer fields let the
// handler tell an absent field apart from a zero value.
type CreateBadgeRequest struct {
	StudentID        *int    `json:"student_id"`
	BadgeName        *string `json:"badge_name"`
	BadgeDescription *string `json:"badge_description"`
	Verified         *bool   `json:"verified"`
}

// VerifyBadgeRequest is the PATCH /badges/:id/verify body
type VerifyBadgeRequest struct {
	Verified *bool `json:"verified"`
}

// respondError maps the service error taxonomy onto status codes:
// validation 400, not found 404, anything else 500 with the message.
func (s *Server) respondError(c *gin.Context, err error, operation string) {
	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, Response{Success: false, Message: validationErr.Message})
		return
	}

	var notFoundErr *utils.NotFoundError
	if errors.As(err, &notFoundErr) {
		c.JSON(http.StatusNotFound, Response{Success: false, Message: "badge not found"})
		return
	}

	s.logger.Error().Err(err).Str("operation", operation).Msg("badge operation failed")
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Message: "failed to " + operation,
		Error:   err.Error(),
	})
}

// parseIDParam reads a positive integer path parameter
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Message: "invalid " + name + " parameter"})
		return 0, false
	}
	return uint(id), true
}

// provisionTableHandler godoc
// @Summary Create the skill_badges table
// @Description Idempotently provision the skill_badges table, its updated_at trigger and the student_id index
// @Tags schema
// @Produce json
// @Success 200 {object} Response
// @Failure 500 {object} Response
// @Router /create-skill-badges-table [get]
func (s *Server) provisionTableHandler(c *gin.Context) {
	if err := s.badgeService.EnsureSchema(c.Request.Context()); err != nil {
		s.respondError(c, err, "create skill_badges table")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "skill_badges table created successfully",
	})
}

// createBadgeHandler godoc
// @Summary Create a badge
// @Description Create a new skill badge for a student
// @Tags badges
// @Accept json
// @Produce json
// @Param request body CreateBadgeRequest true "Badge to create"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /badges [post]
func (s *Server) createBadgeHandler(c *gin.Context) {
	var req CreateBadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}

	// Presence gate: absent and zero both fail, matching the contract
	if req.StudentID == nil || *req.StudentID == 0 || req.BadgeName == nil || *req.BadgeName == "" {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Message: "student_id and badge_name are required",
		})
		return
	}

	createReq := services.CreateRequest{
		StudentID:        *req.StudentID,
		BadgeName:        *req.BadgeName,
		BadgeDescription: req.BadgeDescription,
	}
	if req.Verified != nil {
		createReq.Verified = *req.Verified
	}

	badge, err := s.badgeService.Create(c.Request.Context(), createReq)
	if err != nil {
		s.respondError(c, err, "create badge")
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: badge})
}

// listBadgesHandler godoc
// @Summary List badges
// @Description List all badges ordered newest first, optionally filtered by student
// @Tags badges
// @Produce json
// @Param student_id query int false "Filter by student"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /badges [get]
func (s *Server) listBadgesHandler(c *gin.Context) {
	var studentID *int
	if raw := c.Query("student_id"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Message: "invalid student_id parameter"})
			return
		}
		studentID = &parsed
	}

	badges, err := s.badgeService.List(c.Request.Context(), studentID)
	if err != nil {
		s.respondError(c, err, "list badges")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: badges})
}

// getBadgeHandler godoc
// @Summary Get a badge
// @Description Fetch a single badge by its ID
// @Tags badges
// @Produce json
// @Param id path int true "Badge ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /badges/{id} [get]
func (s *Server) getBadgeHandler(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	badge, err := s.badgeService.GetByID(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err, "get badge")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: badge})
}

// listStudentBadgesHandler godoc
// @Summary List a student's badges
// @Description List all badges for one student, ordered newest first
// @Tags badges
// @Produce json
// @Param studentId path int true "Student ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /students/{studentId}/badges [get]
func (s *Server) listStudentBadgesHandler(c *gin.Context) {
	studentID, err := strconv.Atoi(c.Param("studentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Message: "invalid studentId parameter"})
		return
	}

	badges, err := s.badgeService.List(c.Request.Context(), &studentID)
	if err != nil {
		s.respondError(c, err, "list student badges")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: badges})
}

// updateBadgeHandler godoc
// @Summary Update a badge
// @Description Partially update a badge; only fields present in the body are changed
// @Tags badges
// @Accept json
// @Produce json
// @Param id path int true "Badge ID"
// @Param request body map[string]interface{} true "Fields to update"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /badges/{id} [put]
func (s *Server) updateBadgeHandler(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	// Decode into a map so field presence survives; the service holds
	// the allow-list and never iterates unknown keys.
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}

	badge, err := s.badgeService.Update(c.Request.Context(), id, fields)
	if err != nil {
		s.respondError(c, err, "update badge")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: badge})
}

// verifyBadgeHandler godoc
// @Summary Set or toggle the verified flag
// @Description Set verified to the supplied boolean, or flip the stored value when the body carries none
// @Tags badges
// @Accept json
// @Produce json
// @Param id path int true "Badge ID"
// @Param request body VerifyBadgeRequest false "Explicit verified value"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /badges/{id}/verify [patch]
func (s *Server) verifyBadgeHandler(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	// An absent body, an empty body or a non-boolean verified all
	// select the toggle path; only a literal boolean assigns.
	var req VerifyBadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Verified = nil
	}

	badge, err := s.badgeService.SetVerified(c.Request.Context(), id, req.Verified)
	if err != nil {
		s.respondError(c, err, "verify badge")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: badge})
}

// deleteBadgeHandler godoc
// @Summary Delete a badge
// @Description Permanently remove a badge and return its last-known values
// @Tags badges
// @Produce json
// @Param id path int true "Badge ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /badges/{id} [delete]
func (s *Server) deleteBadgeHandler(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	badge, err := s.badgeService.Delete(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err, "delete badge")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Badge deleted successfully",
		Data:    badge,
	})
}
