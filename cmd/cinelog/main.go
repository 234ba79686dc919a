// Command cinelog は映画レビュー・ブログコンテンツの同期クライアント。
// コンテンツサービスの閲覧・投稿・レビュー操作と、開発用スタブサービスの
// 起動を行う。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/cinelog/internal/app"
)

func main() {
	if err := app.Run(os.Stderr, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
