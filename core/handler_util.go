package core

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// User-facing messages. Upstream detail never reaches these.
const (
	msgMissingCredentials  = "Username and password are required"
	msgConfigError         = "Authentication service configuration error"
	msgUpstreamUnavailable = "Unable to access user database"
	msgEmptyDataset        = "User database is empty"
	msgSchemaError         = "User database schema error"
	msgInvalidCredentials  = "Invalid username or password"
	msgInternal            = "Internal server error"
	msgNotAuthenticated    = "Not authenticated"
	msgLoginSuccessful     = "Login successful"
)

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	User    *User  `json:"user,omitempty"`
}

// respondError sends the unified failure payload {"success": false, "error": message}.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, apiResponse{Success: false, Error: message})
}

// verdictStatus maps a validation error to its HTTP status and public message.
func verdictStatus(err error) (int, string) {
	var le *LoginError
	if !errors.As(err, &le) {
		return http.StatusInternalServerError, msgInternal
	}
	switch le.Kind {
	case KindBadRequest:
		return http.StatusBadRequest, msgMissingCredentials
	case KindConfigError:
		return http.StatusInternalServerError, msgConfigError
	case KindUpstreamUnavailable:
		if errors.Is(err, ErrEmptyDataset) {
			return http.StatusInternalServerError, msgEmptyDataset
		}
		return http.StatusInternalServerError, msgUpstreamUnavailable
	case KindSchemaError:
		return http.StatusInternalServerError, msgSchemaError
	case KindInvalidCredentials:
		return http.StatusUnauthorized, msgInvalidCredentials
	default:
		return http.StatusInternalServerError, msgInternal
	}
}
