// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/csaccess/internal/database"
	"github.com/hitoshi/csaccess/internal/middleware"
	"github.com/hitoshi/csaccess/internal/model"
)

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをdstにデコードする。
// 失敗した場合はエラーレスポンスを書き込み、falseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewValidationError(map[string]string{
				"body": "request body too large",
			}))
			return false
		}
		middleware.WriteAPIError(w, model.NewInvalidJSONError())
		return false
	}
	return true
}

// orEmpty はnilスライスを空スライスに置き換える。JSONで null ではなく [] を返すため。
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// errorWriter はサービス層のエラーをレスポンスに変換する。
// production が false の場合のみ内部エラーの詳細をクライアントに返す。
type errorWriter struct {
	production bool
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func (ew errorWriter) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	switch {
	case database.IsUniqueViolation(err):
		slog.Warn("unique constraint violation",
			slog.String("path", r.URL.Path),
			slog.String("constraint", database.ConstraintName(err)),
		)
		middleware.WriteAPIError(w, model.NewDuplicateEntryError())
		return
	case database.IsForeignKeyViolation(err):
		slog.Warn("foreign key violation",
			slog.String("path", r.URL.Path),
			slog.String("constraint", database.ConstraintName(err)),
		)
		middleware.WriteAPIError(w, model.NewInvalidReferenceError())
		return
	}

	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	detail := ""
	if !ew.production {
		detail = err.Error()
	}
	middleware.WriteAPIError(w, model.NewInternalError(detail))
}
