// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ClientError は同期レイヤー全体で使用する統一エラーフォーマットを表す。
// ゲートウェイはトランスポート層の例外を必ずこの型に変換してから返す。
// 呼び出し側はServerMessageが存在すればそれを、なければ汎用メッセージを表示する。
type ClientError struct {
	Code          string // エラーコード
	Message       string // ログ・開発者向けメッセージ
	Status        int    // サービスが応答したHTTPステータス（Rejectedの場合のみ）
	ServerMessage string // サービスが返したエラーメッセージ（存在する場合のみ）
}

// Error はerrorインターフェースを実装する。
func (e *ClientError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// UserMessage はユーザーに提示するメッセージを返す。
// サーバー提供のメッセージがあればそれを優先する。
func (e *ClientError) UserMessage() string {
	if e.ServerMessage != "" {
		return e.ServerMessage
	}
	return e.Message
}

// 定義済みエラーコード
const (
	// ErrCodeUnauthorized はセッション不在のまま変更系呼び出しを行った場合のコード。
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeValidation はローカル検証で拒否された入力のコード。ネットワークには到達しない。
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeRejected はサービスが4xx/5xxを応答した場合のコード。
	ErrCodeRejected = "REJECTED"
	// ErrCodeUnreachable は応答を受信できなかった場合のコード。
	// レスポンスボディのパース失敗もユーザー観点では同じ扱いとする。
	ErrCodeUnreachable = "UNREACHABLE"
)

// NewUnauthorizedError はセッション不在エラーを生成する。
func NewUnauthorizedError() *ClientError {
	return &ClientError{
		Code:    ErrCodeUnauthorized,
		Message: "サインインしていないため、この操作は実行できません。",
	}
}

// NewValidationError はローカル検証エラーを生成する。
func NewValidationError(reason string) *ClientError {
	return &ClientError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("入力が不正です: %s", reason),
	}
}

// NewRejectedError はサービス拒否エラーを生成する。
// serverMessageはサービスのエラーボディから抽出したメッセージ（空の場合あり）。
func NewRejectedError(status int, serverMessage string) *ClientError {
	return &ClientError{
		Code:          ErrCodeRejected,
		Message:       fmt.Sprintf("サービスがステータス %d を返しました", status),
		Status:        status,
		ServerMessage: serverMessage,
	}
}

// NewUnreachableError は応答未受信エラーを生成する。
func NewUnreachableError(reason string) *ClientError {
	return &ClientError{
		Code:    ErrCodeUnreachable,
		Message: fmt.Sprintf("サービスに到達できませんでした: %s", reason),
	}
}

// codeOf はエラーチェーンからClientErrorのコードを取り出す。
func codeOf(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsUnauthorized はエラーがセッション不在によるものかを判定する。
func IsUnauthorized(err error) bool { return codeOf(err) == ErrCodeUnauthorized }

// IsValidation はエラーがローカル検証によるものかを判定する。
func IsValidation(err error) bool { return codeOf(err) == ErrCodeValidation }

// IsRejected はエラーがサービス拒否によるものかを判定する。
func IsRejected(err error) bool { return codeOf(err) == ErrCodeRejected }

// IsUnreachable はエラーが応答未受信によるものかを判定する。
func IsUnreachable(err error) bool { return codeOf(err) == ErrCodeUnreachable }
