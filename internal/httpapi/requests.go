package httpapi

import (
	"github.com/gin-gonic/gin"

	apierrors "github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/validator"
)

type installRequest struct {
	URI      string `json:"uri" validate:"required"`
	Filename string `json:"filename" validate:"required"`
	Force    bool   `json:"force"`
}

type readMetadataRequest struct {
	URI      string `json:"uri" validate:"required"`
	Filename string `json:"filename" validate:"required"`
}

type packageRequest struct {
	Pkg     string `json:"pkg" validate:"required,pkgname"`
	Version string `json:"version" validate:"required,pkgversion"`
}

type pluginIconRequest struct {
	Pkg     string `json:"pkg" validate:"required,pkgname"`
	Version string `json:"version" validate:"required,pkgversion"`
	Plugin  string `json:"plugin" validate:"required"`
}

type runToolRequest struct {
	Pkg     string         `json:"pkg" validate:"required,pkgname"`
	Version string         `json:"version" validate:"required,pkgversion"`
	Plugin  string         `json:"plugin" validate:"required"`
	Tool    string         `json:"tool" validate:"required,actionname"`
	Input   map[string]any `json:"input"`
	Cfg     map[string]any `json:"cfg"`
	Stream  bool           `json:"stream"`
}

type runValidateRequest struct {
	Pkg     string         `json:"pkg" validate:"required,pkgname"`
	Version string         `json:"version" validate:"required,pkgversion"`
	Plugin  string         `json:"plugin" validate:"required"`
	Cfg     map[string]any `json:"cfg"`
}

type jobIDRequest struct {
	JobID string `json:"job_id" validate:"required,uuid"`
}

type setLoggingLevelRequest struct {
	Level string `json:"level" validate:"required"`
}

// bindAndValidate binds req from the request JSON body and runs it
// through internal/validator, setting the appropriate envelope error on c
// and returning false if either step fails. Handlers return immediately
// when this returns false; the deferred ErrorHandler middleware writes
// the response.
func bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.Error(apierrors.InvalidRequest(err.Error()))
		return false
	}
	if fieldErrs := validator.ValidateRequest(req); fieldErrs != nil {
		c.Error(apierrors.ValidationError(fieldErrs))
		return false
	}
	return true
}
