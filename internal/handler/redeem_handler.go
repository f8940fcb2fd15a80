package handler

import (
	"net/http"

	"app/internal/payload"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /redeem の公開API。匿名クライアントがキーと端末IDを出して
// 保護コンテンツを受け取る。
type RedeemHandler struct {
	uc       *usecase.RedeemUsecase
	provider payload.Provider
}

// DI
func NewRedeemHandler(uc *usecase.RedeemUsecase, provider payload.Provider) *RedeemHandler {
	return &RedeemHandler{uc: uc, provider: provider}
}

// ルート登録
func (h *RedeemHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/redeem", h.redeem)
}

// /redeem のリクエストボディ。
type redeemRequest struct {
	Key      string `json:"key"`
	DeviceID string `json:"device_id"`
}

func (h *RedeemHandler) redeem(c echo.Context) error {
	var req redeemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	_, err := h.uc.Execute(c.Request().Context(), usecase.RedeemInput{
		KeyID:    req.Key,
		DeviceID: req.DeviceID,
	})
	if err != nil {
		//失敗の種類ごとに別の応答を返す
		switch err {
		case usecase.ErrMissingParameters:
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing parameters"})
		case usecase.ErrKeyNotFound:
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "key not found"})
		case usecase.ErrKeyExpired:
			return c.JSON(http.StatusForbidden, ErrorResponse{Error: "key expired"})
		case usecase.ErrDeviceMismatch:
			return c.JSON(http.StatusForbidden, ErrorResponse{Error: "device mismatch"})
		default:
			// ストア障害は「キーが無い」とは区別する（503ならリトライしてよい）
			return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable"})
		}
	}

	//認可OK。保護コンテンツを配る
	name, data, err := h.provider.Fetch(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "payload unavailable"})
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, data)
}
