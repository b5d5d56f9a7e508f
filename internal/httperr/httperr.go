package httperr

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

type HTTPError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

func Write(c *gin.Context, status int, code, message string) {
	c.JSON(status, HTTPError{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, code, message string) {
	Write(c, http.StatusBadRequest, code, message)
}

func NotFound(c *gin.Context, code, message string) {
	Write(c, http.StatusNotFound, code, message)
}

func Internal(c *gin.Context, code, message string) {
	Write(c, http.StatusInternalServerError, code, message)
}

func Unauthorized(c *gin.Context, code, message string) {
	Write(c, http.StatusUnauthorized, code, message)
}

func Forbidden(c *gin.Context, code, message string) {
	Write(c, http.StatusForbidden, code, message)
}

// FromError maps any engine or use case error onto the UI API.
func FromError(c *gin.Context, err error) {
	var be BusinessError
	if errors.As(err, &be) {
		switch be.Code {
		case CodeNotFound:
			NotFound(c, be.Code, "Record not found.")
		case CodeForbiddenForRole:
			Forbidden(c, be.Code, "Not permitted for this role.")
		case CodeNotLoggedIn, CodeInvalidCreds:
			Unauthorized(c, be.Code, "Authentication required.")
		case CodeInvalidTransition, CodePendingChange:
			Write(c, http.StatusConflict, be.Code, "Status change not allowed.")
		default:
			BadRequest(c, be.Code, "Invalid request.")
		}
		return
	}

	switch KindOf(err) {
	case KindUnauthorized:
		Unauthorized(c, KindUnauthorized.String(), "Session expired, sign in again.")
	case KindStorageFailure:
		log.Printf("storage failure: %v", err)
		Write(c, http.StatusServiceUnavailable, KindStorageFailure.String(), "Local storage unavailable, read-only mode.")
	case KindNetworkUnreachable:
		Write(c, http.StatusServiceUnavailable, KindNetworkUnreachable.String(), "Remote service unreachable.")
	case KindNotFound:
		NotFound(c, KindNotFound.String(), "Record no longer exists.")
	case KindServerError, KindMalformedResponse:
		Write(c, http.StatusBadGateway, KindServerError.String(), "Remote service rejected the request.")
	default:
		log.Printf("unclassified error: %v", err)
		Internal(c, "internal_error", "Unexpected error.")
	}
}
