// Package security はパスワードハッシュ、入力サニタイズ、トークン指紋など
// 認証まわりのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はユーザー入力テキストのサニタイズを行う。
// bluemondayのポリシーはスレッドセーフなため、1インスタンスを共有してよい。
type Sanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
//   - PlainText: 全てのタグを除去する（表示名など）
//   - RichText: UGCポリシーで安全なタグのみ残す（コース説明など）
func NewSanitizer() *Sanitizer {
	rich := bluemonday.UGCPolicy()
	rich.AllowRelativeURLs(false)
	rich.RequireNoReferrerOnLinks(true)
	rich.AddTargetBlankToFullyQualifiedLinks(true)

	return &Sanitizer{
		strict: bluemonday.StrictPolicy(),
		rich:   rich,
	}
}

// PlainText はHTMLタグを全て除去し、前後の空白を取り除いた文字列を返す。
// script/styleの中身も除去される。
// 結果はプレーンテキストであり、StrictPolicyが付与する実体参照（&amp; など）は元の文字に戻す。
// 出力時のエスケープは表示側の責務とする。
func (s *Sanitizer) PlainText(in string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(in)))
}

// RichText は許可リストにないタグ・属性を除去したHTMLを返す。
func (s *Sanitizer) RichText(in string) string {
	return s.rich.Sanitize(in)
}
