package server

import (
	"app/internal/config"
	"app/internal/handler"
	"app/internal/middleware"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(
	e *echo.Echo,
	cfg config.Config,
	authH *handler.AuthHandler,
	adminKeyH *handler.AdminKeyHandler,
	redeemH *handler.RedeemHandler,
) {
	//公開API
	authH.RegisterRoutes(e)
	redeemH.RegisterRoutes(e)

	//管理API（JWT検証 + ADMIN限定）
	adminGroup := e.Group("/admin/keys",
		middleware.AuthJWT(cfg),
		middleware.AdminRoleGuard(),
	)
	adminKeyH.RegisterRoutes(adminGroup)
}
