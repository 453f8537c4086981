package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coachbook/internal/pkg/apperr"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// CustomError writes the error envelope; middleware aborts separately.
func CustomError(c *gin.Context, statusCode int, code string, message string) {
	Error(c, statusCode, code, message)
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// FromError renders a service error using the apperr taxonomy.
// Internal failures get a generic message and are attached to the gin context for ErrorLogger.
func FromError(c *gin.Context, err error) {
	status, code := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError && !errors.Is(err, apperr.ErrPersistenceInconsistency) {
		_ = c.Error(err)
		Error(c, status, code, "Internal server error")
		return
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	Error(c, status, code, err.Error())
}
