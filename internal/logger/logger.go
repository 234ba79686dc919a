// Package logger はJSON構造化ログのセットアップを提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログをグローバルロガーとして設定する。
// wがnilの場合はos.Stderrに出力する。CLIでは標準出力を結果表示に使うため、
// ログは標準エラーへ分離する。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	slog.SetDefault(Setup(w))
}

// With はコンポーネント名を付与した子ロガーを返す。
// ゲートウェイやリコンサイラなど各コンポーネントの初期化時に使用する。
func With(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}
