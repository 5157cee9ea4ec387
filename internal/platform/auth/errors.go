package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Failure is one verdict from the closed authorization taxonomy. Every
// failure a handler can see is typed; nothing escapes the gate boundary as a
// bare error, and each maps to exactly one HTTP status.
type Failure struct {
	Code    string
	Status  int
	Message string
}

func (f *Failure) Error() string { return f.Message }

var (
	// ErrUnauthenticated: no authenticated identity is attached to the request.
	ErrUnauthenticated = &Failure{
		Code:    "UNAUTHENTICATED",
		Status:  http.StatusUnauthorized,
		Message: "authentication required",
	}

	// ErrOrganizationContextRequired: the operation is organization-scoped and
	// no organization id was supplied.
	ErrOrganizationContextRequired = &Failure{
		Code:    "ORGANIZATION_CONTEXT_REQUIRED",
		Status:  http.StatusBadRequest,
		Message: "organization context required",
	}

	// ErrNotAMember: the caller has no membership in the target organization.
	// Applies regardless of platform role.
	ErrNotAMember = &Failure{
		Code:    "NOT_A_MEMBER",
		Status:  http.StatusForbidden,
		Message: "not a member of this organization",
	}

	// ErrInsufficientRole: the caller is a member but their role is not in the
	// operation's allow-list.
	ErrInsufficientRole = &Failure{
		Code:    "INSUFFICIENT_ROLE",
		Status:  http.StatusForbidden,
		Message: "insufficient role for this operation",
	}
)

// HTTPError converts an error into an echo HTTP error. Typed failures keep
// their status and message; anything else becomes a 500 so internal detail
// never leaks past the gate boundary.
func HTTPError(err error) *echo.HTTPError {
	var f *Failure
	if errors.As(err, &f) {
		return echo.NewHTTPError(f.Status, f.Message)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
