package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// TokenFingerprint はトークンのSHA-256ハッシュを16進文字列で返す。
// セッションレコードにはトークン本体ではなくこの値を保存する。
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
