package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/habitkit/internal/auth"
	"github.com/habitkit/internal/locale"
	"github.com/habitkit/internal/service"
)

// 错误码与 tRPC 保持一致
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeBadRequest         = "BAD_REQUEST"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeMethodNotSupported = "METHOD_NOT_SUPPORTED"
)

var (
	errProcedureNotFound = errors.New("procedure not found")
	errMethodNotAllowed  = errors.New("method not supported")
	errRateLimited       = errors.New("rate limited")
)

// apiError 是错误响应体
type apiError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"httpStatus"`
	Cause      string `json:"cause,omitempty"`
}

// toAPIError 把内部错误映射为对外的错误码，持久化错误附带 cause
func toAPIError(err error, language string) apiError {
	var (
		code   string
		status int
		detail string
		cause  string
	)

	var validation *service.ValidationError
	var input *inputError
	switch {
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		code, status = CodeUnauthorized, http.StatusUnauthorized
	case errors.Is(err, errProcedureNotFound):
		return apiError{
			Code:       CodeNotFound,
			Message:    locale.Text(language, "PROCEDURE_NOT_FOUND"),
			HTTPStatus: http.StatusNotFound,
		}
	case errors.Is(err, service.ErrNotFound):
		code, status = CodeNotFound, http.StatusNotFound
		detail = err.Error()
	case errors.As(err, &validation):
		code, status = CodeBadRequest, http.StatusBadRequest
		detail = validation.Error()
	case errors.As(err, &input):
		code, status = CodeBadRequest, http.StatusBadRequest
		detail = describeInputError(input.err)
	case errors.Is(err, errMethodNotAllowed):
		code, status = CodeMethodNotSupported, http.StatusMethodNotAllowed
	case errors.Is(err, errRateLimited):
		code, status = CodeTooManyRequests, http.StatusTooManyRequests
	default:
		code, status = CodeInternal, http.StatusInternalServerError
		cause = err.Error()
	}

	message := locale.Text(language, code)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}
	return apiError{Code: code, Message: message, HTTPStatus: status, Cause: cause}
}

// describeInputError 把 validator 的错误整理为 field: rule 形式
func describeInputError(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err.Error()
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		name := lowerFirst(field.Field())
		switch field.Tag() {
		case "required":
			parts = append(parts, name+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", name, field.Param()))
		case "min", "gte":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", name, field.Param()))
		case "max", "lte":
			parts = append(parts, fmt.Sprintf("%s must be at most %s", name, field.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", name, field.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func lowerFirst(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func (a *API) respondError(c *gin.Context, err error) {
	apiErr := toAPIError(err, requestLanguage(c))
	if apiErr.HTTPStatus >= http.StatusInternalServerError {
		a.log.WithError(err).WithField("procedure", c.Param("procedure")).Error("procedure failed")
	}
	c.AbortWithStatusJSON(apiErr.HTTPStatus, gin.H{"error": apiErr})
}

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"result": gin.H{"data": data}})
}
