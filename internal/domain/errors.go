package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifica as rejeições da API
type ErrorKind string

const (
	HTTPSRequired   ErrorKind = "HttpsRequired"
	CORSRejected    ErrorKind = "CorsRejected"
	Unauthenticated ErrorKind = "Unauthenticated"
	Forbidden       ErrorKind = "Forbidden"
	RateLimited     ErrorKind = "RateLimited"
	MalformedInput  ErrorKind = "MalformedInput"
	UpstreamFailure ErrorKind = "UpstreamFailure"
	InternalFault   ErrorKind = "InternalFault"
)

// Códigos estáveis expostos no corpo das respostas de erro
const (
	CodeHTTPSRequired    = "HTTPS_REQUIRED"
	CodeCORSRejected     = "CORS_REJECTED"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeForbidden        = "FORBIDDEN"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeBodyTooLarge     = "BODY_TOO_LARGE"
)

// GuardError é a rejeição estruturada produzida pelo guard ou pelos handlers
type GuardError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	Status     int
	Scope      Scope
	RetryAfter time.Duration
}

func (e *GuardError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Scope, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// RetryAfterSeconds arredonda o retry-after para cima em segundos
func (e *GuardError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	seconds := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		seconds++
	}
	return seconds
}

// NewHTTPSRequiredError cria a rejeição do estágio HTTPS
func NewHTTPSRequiredError() *GuardError {
	return &GuardError{
		Kind:    HTTPSRequired,
		Code:    CodeHTTPSRequired,
		Message: "HTTPS is required",
		Status:  http.StatusForbidden,
	}
}

// NewCORSRejectedError cria a rejeição do estágio CORS
func NewCORSRejectedError() *GuardError {
	return &GuardError{
		Kind:    CORSRejected,
		Code:    CodeCORSRejected,
		Message: "Origin not allowed",
		Status:  http.StatusForbidden,
	}
}

// NewUnauthenticatedError cria a rejeição por ausência de identidade
func NewUnauthenticatedError() *GuardError {
	return &GuardError{
		Kind:    Unauthenticated,
		Code:    CodeUnauthenticated,
		Message: "Authentication required",
		Status:  http.StatusUnauthorized,
	}
}

// NewForbiddenError cria a negação genérica; a mensagem não revela o recurso
func NewForbiddenError() *GuardError {
	return &GuardError{
		Kind:    Forbidden,
		Code:    CodeForbidden,
		Message: "Access denied",
		Status:  http.StatusForbidden,
	}
}

// NewRateLimitedError cria a rejeição do rate limiter
func NewRateLimitedError(scope Scope, retryAfter time.Duration) *GuardError {
	return &GuardError{
		Kind:       RateLimited,
		Code:       CodeRateLimited,
		Message:    "Too many requests",
		Status:     http.StatusTooManyRequests,
		Scope:      scope,
		RetryAfter: retryAfter,
	}
}

// NewMalformedInputError cria um erro de validação de handler
func NewMalformedInputError(code, message string) *GuardError {
	return &GuardError{
		Kind:    MalformedInput,
		Code:    code,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewNotFoundError cria um 404 de handler
func NewNotFoundError(message string) *GuardError {
	return &GuardError{
		Kind:    MalformedInput,
		Code:    CodeNotFound,
		Message: message,
		Status:  http.StatusNotFound,
	}
}

// NewMethodNotAllowedError cria um 405 de handler
func NewMethodNotAllowedError() *GuardError {
	return &GuardError{
		Kind:    MalformedInput,
		Code:    CodeMethodNotAllowed,
		Message: "Method not allowed",
		Status:  http.StatusMethodNotAllowed,
	}
}

// NewBodyTooLargeError cria o 413 para corpos acima do limite
func NewBodyTooLargeError(limit int64) *GuardError {
	return &GuardError{
		Kind:    MalformedInput,
		Code:    CodeBodyTooLarge,
		Message: fmt.Sprintf("Request body exceeds %d bytes", limit),
		Status:  http.StatusRequestEntityTooLarge,
	}
}

// NewUpstreamFailureError mapeia falhas de colaboradores para um 500 seguro
func NewUpstreamFailureError() *GuardError {
	return &GuardError{
		Kind:    UpstreamFailure,
		Code:    CodeInternal,
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}
}

// NewInternalFaultError cria o 500 para falhas inesperadas
func NewInternalFaultError() *GuardError {
	return &GuardError{
		Kind:    InternalFault,
		Code:    CodeInternal,
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}
}

// AsGuardError extrai um GuardError de uma cadeia de erros
func AsGuardError(err error) (*GuardError, bool) {
	var guardErr *GuardError
	if errors.As(err, &guardErr) {
		return guardErr, true
	}
	return nil, false
}
