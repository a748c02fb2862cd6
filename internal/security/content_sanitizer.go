// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService は購読者が入力した表示名をサニタイズする。
// 表示名はメールHTMLにそのまま埋め込まれるため、タグや属性を一切
// 許可しないプレーンテキストポリシーで無害化する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizerService は購読者入力テキストのサニタイズ機能のインターフェースを定義する。
// 登録・設定更新時の保存前と、メールテンプレートへの埋め込み時に使用される。
type NameSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白も取り除く。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはタグを一切許可せず、scriptやon*イベント属性を含む
// あらゆるマークアップを除去する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
func (s *nameSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
