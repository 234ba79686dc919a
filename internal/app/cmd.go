package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandPosts は投稿一覧の表示を示す。
	CommandPosts Command = "posts"
	// CommandPost は投稿1件の表示を示す。
	CommandPost Command = "post"
	// CommandSearch は映画検索を示す。
	CommandSearch Command = "search"
	// CommandPopular は人気映画一覧の表示を示す。
	CommandPopular Command = "popular"
	// CommandMovie は映画詳細の表示を示す。
	CommandMovie Command = "movie"
	// CommandReviews は映画別レビュー一覧の表示を示す。
	CommandReviews Command = "reviews"
	// CommandMyReviews は自分のレビュー一覧の表示を示す。
	CommandMyReviews Command = "my-reviews"
	// CommandFeatured は注目投稿への時限リダイレクトの実行を示す。
	CommandFeatured Command = "featured"

	// CommandPostCreate は投稿の作成を示す。
	CommandPostCreate Command = "post-create"
	// CommandPostEdit は投稿の置換を示す。
	CommandPostEdit Command = "post-edit"
	// CommandPostDelete は投稿の削除を示す。
	CommandPostDelete Command = "post-delete"
	// CommandReviewAdd はレビューの作成を示す。
	CommandReviewAdd Command = "review-add"
	// CommandReviewEdit はレビューの部分更新を示す。
	CommandReviewEdit Command = "review-edit"
	// CommandReviewDelete はレビューの削除を示す。
	CommandReviewDelete Command = "review-delete"

	// CommandDevstub はスタブコンテンツサービスモードで起動することを示す。
	CommandDevstub Command = "devstub"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandPostsを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandPosts
	}

	switch args[0] {
	case "posts":
		return CommandPosts
	case "post":
		return CommandPost
	case "search":
		return CommandSearch
	case "popular":
		return CommandPopular
	case "movie":
		return CommandMovie
	case "reviews":
		return CommandReviews
	case "my-reviews":
		return CommandMyReviews
	case "featured":
		return CommandFeatured
	case "post-create":
		return CommandPostCreate
	case "post-edit":
		return CommandPostEdit
	case "post-delete":
		return CommandPostDelete
	case "review-add":
		return CommandReviewAdd
	case "review-edit":
		return CommandReviewEdit
	case "review-delete":
		return CommandReviewDelete
	case "devstub":
		return CommandDevstub
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandPosts
	}
}
