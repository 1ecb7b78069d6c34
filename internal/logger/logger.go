// Package logger はJSON構造化ログの初期化とログレベルの切り替えを提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// RedactedValue は機密属性の値を置き換える文字列。
const RedactedValue = "[REDACTED]"

var level = new(slog.LevelVar)

// redactedKeys は値を出力してはならない属性キー（小文字）。グループ内の属性にも適用する。
var redactedKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"token":         {},
	"jwt_secret":    {},
	"authorization": {},
	"cookie":        {},
}

// Setup はJSON構造化ログを出力するslog.Loggerを生成する。
// 生成したロガーはSetLevelで変更されたレベルに追従する。
func Setup(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	}))
}

// SetupDefault はSetupで生成したロガーをslogのデフォルトに設定する。wがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}

// SetLevel はSetupで生成した全ロガーのログレベルを変更する。
func SetLevel(l slog.Level) {
	level.Set(l)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, RedactedValue)
	}
	return a
}
