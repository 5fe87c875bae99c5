package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code - 에러 분류 코드
type Code string

const (
	CodeInsufficientFunds      Code = "insufficient_funds"
	CodeProviderUnavailable    Code = "provider_unavailable"
	CodeProviderRejected       Code = "provider_rejected"
	CodeBalanceExhausted       Code = "balance_exhausted"
	CodeContentPolicyViolation Code = "content_policy_violation"
	CodeTimeout                Code = "timeout"
	CodeNotFound               Code = "not_found"
	CodeForbidden              Code = "forbidden"
	CodeInvalidRequest         Code = "invalid_request"
)

// Error - 코드가 붙은 에러. 핸들러에서 HTTP 상태로 매핑된다.
type Error struct {
	Code       Code
	Message    string // 사용자에게 보여줄 메시지
	HTTPStatus int    // provider가 돌려준 상태 (있으면)
	Err        error  // 원인
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

// New - 코드와 메시지로 에러 생성
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap - 원인 에러를 감싸서 생성
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithStatus - provider HTTP 상태 기록
func (e *Error) WithStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// CodeOf - 에러에서 코드 추출 (미분류는 provider_rejected로 취급)
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeProviderRejected
}

// Is - 에러가 특정 코드인지 확인
func Is(err error, code Code) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// MessageOf - 사용자 메시지 추출
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "generation failed"
}

// StatusOf - HTTP 응답 상태 매핑
func StatusOf(err error) int {
	switch CodeOf(err) {
	case CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
