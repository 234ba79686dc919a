// Package sync はローカルコレクションとリモートサービスの楽観的同期を提供する。
// スコープ（映画ごとのレビュー、自分のレビュー、投稿一覧）ごとに1つの
// コレクションを保持し、全件ロードと作成・更新・削除をネットワーク呼び出しの
// 完了順に適用する。投機的な挿入は行わず、失敗した変更はコレクションに
// 一切反映されない。
package sync

import (
	"sync"

	"github.com/hitoshi/cinelog/internal/metrics"
	"github.com/hitoshi/cinelog/internal/model"
)

// collection はスコープ1つ分のコンテンツを排他的に所有する。
// 外部はスナップショットの読み取りと操作要求のみを行い、
// コレクションを直接変更することはない。
type collection struct {
	mu      sync.Mutex
	items   []model.ContentItem
	loadSeq int64 // 発行済みロードIDの最大値。単調増加
	closed  bool
	metrics metrics.Recorder
}

func newCollection(recorder metrics.Recorder) *collection {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &collection{metrics: recorder}
}

// beginLoad は新しいロードIDを発行する。
// 後から開始したロードほど大きいIDを持つ。
func (c *collection) beginLoad() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadSeq++
	return c.loadSeq
}

// completeLoad はロード結果を適用する。自身より後に発行されたロードが
// 存在する場合、またはスコープが破棄済みの場合は結果を破棄して
// falseを返す（last-write-wins）。
func (c *collection) completeLoad(id int64, items []model.ContentItem) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || id != c.loadSeq {
		c.metrics.RecordStaleLoadDiscarded()
		return false
	}
	c.items = items
	return true
}

// applyCreate はサーバーが採番したアイテムをコレクションの先頭に追加する。
// 一覧は新しい順で提示されるため先頭挿入となる。
func (c *collection) applyCreate(item model.ContentItem) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.items = append([]model.ContentItem{item}, c.items...)
	return true
}

// applyUpdate は一致するIDのアイテムをfnの返り値で置き換える。
// 変更はその時点のコレクションに対して適用される（完了順）。
func (c *collection) applyUpdate(id string, fn func(model.ContentItem) model.ContentItem) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	for i, item := range c.items {
		if item.ItemID() == id {
			c.items[i] = fn(item)
			return true
		}
	}
	return false
}

// applyRemove は一致するIDのアイテムをコレクションから取り除く。
func (c *collection) applyRemove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	filtered := c.items[:0:0]
	for _, item := range c.items {
		if item.ItemID() != id {
			filtered = append(filtered, item)
		}
	}
	c.items = filtered
	return true
}

// snapshot はコレクションの現在の内容のコピーを返す。
func (c *collection) snapshot() []model.ContentItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ContentItem, len(c.items))
	copy(out, c.items)
	return out
}

// close はスコープを破棄する。以降に完了するロードや変更の結果は
// すべて破棄される。
func (c *collection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.items = nil
}
