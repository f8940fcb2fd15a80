package server

import (
	"app/internal/config"
	"app/internal/handler"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Newはechoを組み立ててルートを登録する
func New(
	cfg config.Config,
	authH *handler.AuthHandler,
	adminKeyH *handler.AdminKeyHandler,
	redeemH *handler.RedeemHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	RegisterRoutes(e, cfg, authH, adminKeyH, redeemH)
	return e
}

// Startはサーバーを起動する
func Start(
	addr string,
	cfg config.Config,
	authH *handler.AuthHandler,
	adminKeyH *handler.AdminKeyHandler,
	redeemH *handler.RedeemHandler,
) error {
	e := New(cfg, authH, adminKeyH, redeemH)
	return e.Start(addr)
}
