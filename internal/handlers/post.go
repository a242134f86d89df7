package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	authmw "github.com/launchkit/launchkit/internal/middleware/auth"
	"github.com/launchkit/launchkit/internal/models"
	"github.com/launchkit/launchkit/internal/mykafka"
	"github.com/launchkit/launchkit/internal/search"
	"github.com/launchkit/launchkit/internal/util"
)

type PostHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
	ES       *elasticsearch.Client
	Index    string
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func Slugify(title string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(s, "-")
}

func (h *PostHandler) publish(c echo.Context, key string, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, mykafka.TopicContentEvents, key, event); err != nil {
		c.Logger().Errorf("kafka publish error: %v", err)
	}
}

func (h *PostHandler) index(c echo.Context, post models.Post) {
	var err error
	if post.Published {
		err = search.IndexPost(c.Request().Context(), h.ES, h.Index, post)
	} else {
		err = search.DeletePost(c.Request().Context(), h.ES, h.Index, post.ID)
	}
	if err != nil {
		c.Logger().Errorf("search index error: %v", err)
	}
}

func (h *PostHandler) ListPosts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Post{}).Where("published = ?", true).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	var posts []models.Post
	if err := h.DB.Where("published = ?", true).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&posts).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data": posts,
		"meta": pageMeta(page, limit, offset, total),
	})
}

func (h *PostHandler) GetPost(c echo.Context) error {
	var post models.Post
	err := h.DB.Where("slug = ? AND published = ?", c.Param("slug"), true).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}
	return c.JSON(http.StatusOK, post)
}

func (h *PostHandler) CreatePost(c echo.Context) error {
	author, ok := authmw.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req struct {
		Title     string `json:"title"`
		Slug      string `json:"slug"`
		Excerpt   string `json:"excerpt"`
		Body      string `json:"body"`
		Published bool   `json:"published"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	fields := map[string]string{}
	if strings.TrimSpace(req.Title) == "" {
		fields["title"] = "title is required"
	}
	if strings.TrimSpace(req.Body) == "" {
		fields["body"] = "body is required"
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": fields})
	}

	slug := req.Slug
	if slug == "" {
		slug = Slugify(req.Title)
	}

	var existing models.Post
	if err := h.DB.Where("slug = ?", slug).First(&existing).Error; err == nil {
		return echo.NewHTTPError(http.StatusConflict, "slug already in use")
	}

	post := models.Post{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Slug:      slug,
		Excerpt:   req.Excerpt,
		Body:      req.Body,
		Published: req.Published,
		AuthorID:  author.ID,
	}
	if err := h.DB.Create(&post).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	h.index(c, post)
	h.publish(c, post.ID, map[string]interface{}{
		"type":   "post_created",
		"postID": post.ID,
		"slug":   post.Slug,
	})

	return c.JSON(http.StatusCreated, post)
}

func (h *PostHandler) UpdatePost(c echo.Context) error {
	var post models.Post
	err := h.DB.Where("id = ?", c.Param("id")).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	var req struct {
		Title     *string `json:"title"`
		Slug      *string `json:"slug"`
		Excerpt   *string `json:"excerpt"`
		Body      *string `json:"body"`
		Published *bool   `json:"published"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	if req.Title != nil {
		post.Title = *req.Title
	}
	if req.Slug != nil {
		post.Slug = *req.Slug
	}
	if req.Excerpt != nil {
		post.Excerpt = *req.Excerpt
	}
	if req.Body != nil {
		post.Body = *req.Body
	}
	if req.Published != nil {
		post.Published = *req.Published
	}

	if err := h.DB.Save(&post).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	h.index(c, post)
	h.publish(c, post.ID, map[string]interface{}{
		"type":   "post_updated",
		"postID": post.ID,
		"slug":   post.Slug,
	})

	return c.JSON(http.StatusOK, post)
}

func (h *PostHandler) DeletePost(c echo.Context) error {
	id := c.Param("id")
	if err := h.DB.Delete(&models.Post{}, "id = ?", id).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	if err := search.DeletePost(c.Request().Context(), h.ES, h.Index, id); err != nil {
		c.Logger().Errorf("search index error: %v", err)
	}
	h.publish(c, id, map[string]interface{}{
		"type":   "post_deleted",
		"postID": id,
	})

	return c.NoContent(http.StatusNoContent)
}
