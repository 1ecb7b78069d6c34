package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hitoshi/csaccess/internal/model"
)

// bearerRealm はWWW-Authenticateチャレンジに使うrealm。
const bearerRealm = "csaccess"

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Details  any    `json:"details,omitempty"`
}

// WriteErrorResponse はstatusCodeとapiErrを統一フォーマットのJSONで書き込む。
// エラーレスポンスはキャッシュさせない。
// トークン起因の401にはBearerチャレンジ（RFC 6750）を付与する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	if statusCode == http.StatusUnauthorized && apiErr.Code != model.ErrCodeInvalidCredentials {
		h.Set("WWW-Authenticate", bearerChallenge(apiErr.Code))
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Details:  apiErr.Details,
	})
}

// WriteAPIError はエラーコードに対応するHTTPステータスでapiErrを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, model.HTTPStatus(apiErr), apiErr)
}

// WriteInternalServerError は詳細を含まないINTERNAL_ERRORを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError(""))
}

func bearerChallenge(code string) string {
	switch code {
	case model.ErrCodeTokenExpired, model.ErrCodeTokenRevoked:
		return fmt.Sprintf(`Bearer realm=%q, error="invalid_token"`, bearerRealm)
	default:
		return fmt.Sprintf(`Bearer realm=%q`, bearerRealm)
	}
}
