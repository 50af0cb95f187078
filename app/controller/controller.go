package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-logistics/app/types"
)

func Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
