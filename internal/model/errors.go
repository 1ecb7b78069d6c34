// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, course, system
	Action   string // ユーザー向け対処方法
	Details  any    // フィールド単位の検証エラーなど（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeInvalidJSON        = "INVALID_JSON"
	ErrCodeUserExists         = "USER_EXISTS"
	ErrCodeDuplicateEntry     = "DUPLICATE_ENTRY"
	ErrCodeInvalidReference   = "INVALID_REFERENCE"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeTokenRequired      = "TOKEN_REQUIRED"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeTokenRevoked       = "TOKEN_REVOKED"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeAuthRequired       = "AUTHENTICATION_REQUIRED"
	ErrCodeForbidden          = "INSUFFICIENT_PERMISSIONS"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeCourseNotFound     = "COURSE_NOT_FOUND"
	ErrCodeEnrollmentNotFound = "ENROLLMENT_NOT_FOUND"
	ErrCodeAlreadyEnrolled    = "ALREADY_ENROLLED"
	ErrCodeNoFieldsToUpdate   = "NO_FIELDS_TO_UPDATE"
	ErrCodeRouteNotFound      = "ROUTE_NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// HTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
// 未知のコードは500として扱う。
func HTTPStatus(apiErr *APIError) int {
	switch apiErr.Code {
	case ErrCodeValidation, ErrCodeInvalidJSON, ErrCodeUserExists, ErrCodeDuplicateEntry,
		ErrCodeInvalidReference, ErrCodeAlreadyEnrolled, ErrCodeNoFieldsToUpdate:
		return http.StatusBadRequest
	case ErrCodeInvalidCredentials, ErrCodeTokenRequired, ErrCodeTokenExpired,
		ErrCodeTokenRevoked, ErrCodeAuthRequired:
		return http.StatusUnauthorized
	case ErrCodeInvalidToken, ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUserNotFound, ErrCodeCourseNotFound, ErrCodeEnrollmentNotFound, ErrCodeRouteNotFound:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError は入力値の検証エラーを生成する。
// detailsにはフィールド名をキーとしたエラー内容を渡す。
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "Validation failed",
		Category: "validation",
		Action:   "入力内容を確認してください。",
		Details:  details,
	}
}

// NewInvalidJSONError はリクエストボディのJSONが不正な場合のエラーを生成する。
func NewInvalidJSONError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidJSON,
		Message:  "Invalid JSON in request body",
		Category: "validation",
		Action:   "リクエストボディの形式を確認してください。",
	}
}

// NewUserExistsError はメールアドレスが登録済みの場合のエラーを生成する。
func NewUserExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserExists,
		Message:  "User already exists with this email address",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewDuplicateEntryError は一意制約違反のエラーを生成する。
func NewDuplicateEntryError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEntry,
		Message:  "Duplicate entry - record already exists",
		Category: "validation",
		Action:   "既存のデータを確認してください。",
	}
}

// NewInvalidReferenceError は外部キー制約違反のエラーを生成する。
func NewInvalidReferenceError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidReference,
		Message:  "Invalid reference - related record not found",
		Category: "validation",
		Action:   "参照先のデータを確認してください。",
	}
}

// NewInvalidCredentialsError は認証情報が誤っている場合のエラーを生成する。
// ユーザー不在とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewTokenRequiredError はアクセストークンが提示されていない場合のエラーを生成する。
func NewTokenRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenRequired,
		Message:  "Access token required",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewTokenExpiredError はトークンの有効期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "Token expired",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewTokenRevokedError はログアウト済みセッションのトークンに対するエラーを生成する。
func NewTokenRevokedError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenRevoked,
		Message:  "Token revoked",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidTokenError は署名不正・形式不正なトークンのエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Invalid token",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAuthRequiredError はロールチェック時に認証情報がない場合のエラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "Authentication required",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足のエラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
		Action:   "必要な権限を持つアカウントでログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCourseNotFoundError はコースが見つからない場合のエラーを生成する。
func NewCourseNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCourseNotFound,
		Message:  "Course not found",
		Category: "course",
		Action:   "コースIDを確認してください。",
	}
}

// NewEnrollmentNotFoundError は受講登録が見つからない場合のエラーを生成する。
func NewEnrollmentNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeEnrollmentNotFound,
		Message:  "Enrollment not found",
		Category: "course",
		Action:   "コースに受講登録してください。",
	}
}

// NewAlreadyEnrolledError は受講登録済みのコースに再登録しようとした場合のエラーを生成する。
func NewAlreadyEnrolledError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyEnrolled,
		Message:  "Already enrolled in this course",
		Category: "course",
		Action:   "受講中のコース一覧を確認してください。",
	}
}

// NewNoFieldsToUpdateError は更新対象のフィールドがない場合のエラーを生成する。
func NewNoFieldsToUpdateError() *APIError {
	return &APIError{
		Code:     ErrCodeNoFieldsToUpdate,
		Message:  "No valid fields to update",
		Category: "validation",
		Action:   "name または profile_image_url を指定してください。",
	}
}

// NewRouteNotFoundError は未定義ルートへのアクセスエラーを生成する。
func NewRouteNotFoundError(method, path string) *APIError {
	return &APIError{
		Code:     ErrCodeRouteNotFound,
		Message:  "Route not found",
		Category: "system",
		Action:   "URLを確認してください。",
		Details:  map[string]string{"method": method, "path": path},
	}
}

// NewMethodNotAllowedError はルートが存在するがメソッドが許可されていない場合のエラーを生成する。
func NewMethodNotAllowedError(method, path string) *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  "Method not allowed",
		Category: "system",
		Action:   "HTTPメソッドを確認してください。",
		Details:  map[string]string{"method": method, "path": path},
	}
}

// NewInternalError は内部エラーを生成する。
// detailは本番環境以外でのみクライアントに返す。
func NewInternalError(detail string) *APIError {
	apiErr := &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
	if detail != "" {
		apiErr.Details = detail
	}
	return apiErr
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests, please try again later",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数が経過してから再度お試しください。",
	}
}
