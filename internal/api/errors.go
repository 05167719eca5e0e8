package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"gobayes/domain/core"
	"gobayes/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields,omitempty"`
}

// statusOf maps domain and application errors to HTTP statuses
func statusOf(err error) (int, string) {
	switch {
	case core.IsNotFoundError(err):
		return http.StatusNotFound, errors.CodeNotFound
	case core.IsInvalidSpecification(err), stderrors.Is(err, core.ErrInvalidHypothesis):
		return http.StatusUnprocessableEntity, errors.CodeValidationError
	case stderrors.Is(err, core.ErrIncomparableFits):
		return http.StatusConflict, "INCOMPARABLE_FITS"
	case stderrors.Is(err, core.ErrInsufficientDraws):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_DRAWS"
	case stderrors.Is(err, core.ErrNonFiniteLogLik):
		return http.StatusUnprocessableEntity, "NON_FINITE_LOGLIK"
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELLED"
	}

	if !errors.IsAppError(err) {
		return http.StatusInternalServerError, errors.CodeInternalError
	}
	switch code := errors.GetCode(err); code {
	case errors.CodeInvalidInput, errors.CodeValidationError:
		return http.StatusBadRequest, code
	case errors.CodeNotFound:
		return http.StatusNotFound, code
	case errors.CodeExternalService:
		return http.StatusBadGateway, code
	default:
		return http.StatusInternalServerError, code
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		s.logger.Debug("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// badRequest reports a body that failed to bind or validate
func (s *Server) badRequest(c *gin.Context, err error) {
	resp := ErrorResponse{Error: "invalid request body", Code: errors.CodeInvalidInput}

	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Fields = append(resp.Fields, describeField(fe))
		}
		resp.Error = "request validation failed: " + strings.Join(resp.Fields, "; ")
	} else {
		resp.Error = fmt.Sprintf("invalid request body: %v", err)
	}
	c.JSON(http.StatusBadRequest, resp)
}

func describeField(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	case "uuid":
		return field + " must be a fit ID"
	default:
		return fmt.Sprintf("%s failed %s %s", field, fe.Tag(), fe.Param())
	}
}
