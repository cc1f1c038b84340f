package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnauthorized             Code = "UNAUTHORIZED"
	CodeInvalidCredentials       Code = "INVALID_CREDENTIALS"
	CodeForbiddenOperation       Code = "FORBIDDEN_OPERATION"
	CodeEmailAlreadyExists       Code = "EMAIL_ALREADY_EXISTS"
	CodeRefreshTokenNotFound     Code = "REFRESH_TOKEN_NOT_FOUND"
	CodeTokenExpired             Code = "TOKEN_EXPIRED"
	CodeInvalidSocialToken       Code = "INVALID_SOCIAL_TOKEN"
	CodeSocialLoginFailure       Code = "SOCIAL_LOGIN_FAILURE"
	CodeValidationFailed         Code = "VALIDATION_FAILED"
	CodeUserNotFound             Code = "USER_NOT_FOUND"
	CodeGroupNotFound            Code = "GROUP_NOT_FOUND"
	CodeGroupAccessDenied        Code = "GROUP_ACCESS_DENIED"
	CodeGroupMemberAlreadyExists Code = "GROUP_MEMBER_ALREADY_EXISTS"
	CodeGroupMemberNotFound      Code = "GROUP_MEMBER_NOT_FOUND"
	CodeInvitationInvalid        Code = "INVITATION_INVALID"
	CodeGroupArchived            Code = "GROUP_ARCHIVED"
	CodeProjectNotFound          Code = "PROJECT_NOT_FOUND"
	CodeProjectAccessDenied      Code = "PROJECT_ACCESS_DENIED"
	CodeTaskNotFound             Code = "TASK_NOT_FOUND"
	CodeTooManyRequests          Code = "TOO_MANY_REQUESTS"
	CodeInternal                 Code = "INTERNAL_SERVER_ERROR"
)

// Error is a classified failure that maps to a stable code and HTTP status.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// WithMessage returns a copy carrying a more specific message.
func (e *Error) WithMessage(message string) *Error {
	clone := *e
	clone.Message = message
	return &clone
}

// Wrap returns a copy that keeps cause in its chain.
func (e *Error) Wrap(cause error) *Error {
	clone := *e
	clone.Err = cause
	return &clone
}

func New(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// From extracts the classified error from err's chain.
func From(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

var (
	ErrUnauthorized             = New(CodeUnauthorized, http.StatusUnauthorized, "authentication is required")
	ErrInvalidCredentials       = New(CodeInvalidCredentials, http.StatusUnauthorized, "email or password is invalid")
	ErrForbiddenOperation       = New(CodeForbiddenOperation, http.StatusForbidden, "operation is not permitted")
	ErrEmailAlreadyExists       = New(CodeEmailAlreadyExists, http.StatusConflict, "email is already registered")
	ErrRefreshTokenNotFound     = New(CodeRefreshTokenNotFound, http.StatusUnauthorized, "refresh token not found")
	ErrTokenExpired             = New(CodeTokenExpired, http.StatusUnauthorized, "token has expired")
	ErrInvalidSocialToken       = New(CodeInvalidSocialToken, http.StatusUnauthorized, "social token is invalid")
	ErrSocialLoginFailure       = New(CodeSocialLoginFailure, http.StatusBadRequest, "social login failed")
	ErrValidationFailed         = New(CodeValidationFailed, http.StatusBadRequest, "request validation failed")
	ErrUserNotFound             = New(CodeUserNotFound, http.StatusNotFound, "user not found")
	ErrGroupNotFound            = New(CodeGroupNotFound, http.StatusNotFound, "group not found")
	ErrGroupAccessDenied        = New(CodeGroupAccessDenied, http.StatusForbidden, "group access denied")
	ErrGroupMemberAlreadyExists = New(CodeGroupMemberAlreadyExists, http.StatusConflict, "already a member of the group")
	ErrGroupMemberNotFound      = New(CodeGroupMemberNotFound, http.StatusNotFound, "group member not found")
	ErrInvitationInvalid        = New(CodeInvitationInvalid, http.StatusBadRequest, "invitation code is invalid")
	ErrGroupArchived            = New(CodeGroupArchived, http.StatusBadRequest, "group is archived")
	ErrProjectNotFound          = New(CodeProjectNotFound, http.StatusNotFound, "project not found")
	ErrProjectAccessDenied      = New(CodeProjectAccessDenied, http.StatusForbidden, "project access denied")
	ErrTaskNotFound             = New(CodeTaskNotFound, http.StatusNotFound, "task not found")
	ErrTooManyRequests          = New(CodeTooManyRequests, http.StatusTooManyRequests, "too many requests")
	ErrInternal                 = New(CodeInternal, http.StatusInternalServerError, "internal server error")
)

// Validation is shorthand for a VALIDATION_FAILED error with a field message.
func Validation(message string) *Error {
	return ErrValidationFailed.WithMessage(message)
}
