package common

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// GenericEchoValidator plugs go-playground/validator into echo's Validator
// hook so bound request structs are checked against their validate tags.
type GenericEchoValidator struct {
	once      sync.Once
	validator *validator.Validate
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	gv.once.Do(func() {
		gv.validator = validator.New()
	})
	if err := gv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request: %v", err))
	}
	return nil
}
