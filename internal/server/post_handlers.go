package server

import (
	"time"

	"ghostwriter/internal/models"
	"ghostwriter/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetPosts handles GET /api/posts?client_id=&status=&limit=&offset=
func (s *Server) GetPosts(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	page := parsePagination(c, 20)

	clientID := c.QueryInt("client_id", 0)
	if clientID < 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid client ID"))
	}

	posts, total, err := s.postService.List(c.UserContext(), service.ListPostsInput{
		UserID:   userID,
		ClientID: uint(clientID),
		Status:   c.Query("status"),
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"posts":  posts,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.Get(c.UserContext(), userID, postID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(post)
}

// CreatePost handles POST /api/posts
// @Summary Create post
// @Description Creates a draft, or a scheduled post when scheduled_at is set
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{client_id=int,content=string,scheduled_at=string} true "Post"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		ClientID    uint       `json:"client_id"`
		Content     string     `json:"content"`
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.postService.Create(c.UserContext(), service.CreatePostInput{
		UserID:      userID,
		ClientID:    req.ClientID,
		Content:     req.Content,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Content  *string `json:"content"`
		ClientID *uint   `json:"client_id"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.postService.Update(c.UserContext(), service.UpdatePostInput{
		UserID:   userID,
		PostID:   postID,
		Content:  req.Content,
		ClientID: req.ClientID,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.Delete(c.UserContext(), userID, postID); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SchedulePost handles POST /api/posts/:id/schedule
func (s *Server) SchedulePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.ScheduledAt == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("scheduled_at is required"))
	}

	post, err := s.postService.Schedule(c.UserContext(), userID, postID, *req.ScheduledAt)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(post)
}

// UnschedulePost handles POST /api/posts/:id/unschedule
func (s *Server) UnschedulePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.Unschedule(c.UserContext(), userID, postID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(post)
}

// PublishPost handles POST /api/posts/:id/publish
// @Summary Publish post to LinkedIn
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} models.Post
// @Failure 400 {object} models.ErrorResponse "Already published or LinkedIn needs reconnecting"
// @Failure 500 {object} models.ErrorResponse
// @Router /posts/{id}/publish [post]
func (s *Server) PublishPost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.Publish(c.UserContext(), userID, postID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(post)
}
