package handler

import (
	"net/http"
	"strconv"

	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// /admin/keys の管理API
type AdminKeyHandler struct {
	uc *usecase.KeyUsecase
}

// DI
func NewAdminKeyHandler(uc *usecase.KeyUsecase) *AdminKeyHandler {
	return &AdminKeyHandler{uc: uc}
}

// 管理ルートを登録（権限チェックはgroup側のmiddlewareで済ませる）
func (h *AdminKeyHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.list)
	g.POST("", h.issue)
	g.POST("/bulk", h.bulkIssue)
	g.POST("/purge-expired", h.purgeExpired)
	g.POST("/:id/extend", h.extend)
	g.POST("/:id/reset-binding", h.resetBinding)
	g.POST("/:id/duplicate", h.duplicate)
	g.PATCH("/:id/label", h.updateLabel)
	g.DELETE("/:id", h.delete)
}

func (h *AdminKeyHandler) list(c echo.Context) error {
	// page（default 1）
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		}
		page = p
	}

	// limit（default 20）
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		limit = l
	}

	out, err := h.uc.List(c.Request().Context(), usecase.KeyListInput{
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

type issueRequest struct {
	Label        string `json:"label"`
	DurationDays int    `json:"duration_days"`
}

func (h *AdminKeyHandler) issue(c echo.Context) error {
	var req issueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	key, err := h.uc.Issue(c.Request().Context(), usecase.IssueKeyInput{
		Label:        req.Label,
		DurationDays: req.DurationDays,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, key)
}

type bulkIssueRequest struct {
	Count        int    `json:"count"`
	Label        string `json:"label"`
	DurationDays int    `json:"duration_days"`
}

type bulkIssueErrorResponse struct {
	Error   string `json:"error"`
	Created int    `json:"created"`
}

func (h *AdminKeyHandler) bulkIssue(c echo.Context) error {
	var req bulkIssueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.BulkIssue(c.Request().Context(), usecase.BulkIssueInput{
		Count:        req.Count,
		Label:        req.Label,
		DurationDays: req.DurationDays,
	})
	if err != nil {
		//途中まで成功していた場合も、成功件数を正確に伝える
		status := http.StatusInternalServerError
		msg := "internal error"
		if he, ok := usecase.AsHTTPError(err); ok {
			status = he.Status
			msg = he.Message
		}
		return c.JSON(status, bulkIssueErrorResponse{Error: msg, Created: out.Created})
	}

	return c.JSON(http.StatusCreated, out)
}

func (h *AdminKeyHandler) purgeExpired(c echo.Context) error {
	out, err := h.uc.PurgeExpired(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

type extendRequest struct {
	ExtraDays int `json:"extra_days"`
}

func (h *AdminKeyHandler) extend(c echo.Context) error {
	var req extendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	key, err := h.uc.Extend(c.Request().Context(), c.Param("id"), usecase.ExtendKeyInput{
		ExtraDays: req.ExtraDays,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, key)
}

func (h *AdminKeyHandler) resetBinding(c echo.Context) error {
	if err := h.uc.ResetBinding(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "binding reset"})
}

func (h *AdminKeyHandler) duplicate(c echo.Context) error {
	key, err := h.uc.Duplicate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, key)
}

type updateLabelRequest struct {
	Label string `json:"label"`
}

func (h *AdminKeyHandler) updateLabel(c echo.Context) error {
	var req updateLabelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if err := h.uc.UpdateLabel(c.Request().Context(), c.Param("id"), req.Label); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "label updated"})
}

func (h *AdminKeyHandler) delete(c echo.Context) error {
	if err := h.uc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "deleted"})
}
