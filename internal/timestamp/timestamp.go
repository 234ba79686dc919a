// Package timestamp はサービスから到着する異種タイムスタンプ表現を
// 単一の正規型に変換する。
//
// タイムスタンプは少なくとも6種類のエンコーディングで到着する:
// ゼロ引数の日時アクセサを持つオブジェクト、secondsまたは_seconds数値
// フィールドを持つオブジェクト、ネイティブの日時、エポック数値（秒または
// ミリ秒）、パース可能な文字列、および欠損。表示箇所ごとに形状を判別する
// のではなく、データ境界でTimestamp型へ正規化し、以降は正規型のみを扱う。
package timestamp

import (
	"bytes"
	"encoding/json"
	"time"
)

// DisplayLayout は表示用の日付フォーマット。時刻成分は含まない。
const DisplayLayout = "2006/01/02"

// millisThreshold を超える数値エポックはミリ秒として解釈する。
const millisThreshold = 1e12

// DateProvider はゼロ引数の日時アクセサを持つ値のインターフェース。
// アクセサが失敗した場合は次の規則へフォールスルーする。
type DateProvider interface {
	Date() (time.Time, error)
}

// Timestamp は正規化済みのタイムスタンプを表す。
// パースできなかった文字列は人間可読とみなしてそのまま保持する。
type Timestamp struct {
	t     time.Time
	raw   string
	valid bool
}

// FromTime はtime.TimeからTimestampを生成する。
func FromTime(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{t: t, valid: true}
}

// Time は保持している日時と有効フラグを返す。
func (ts Timestamp) Time() (time.Time, bool) {
	return ts.t, ts.valid
}

// IsZero は日時もパススルー文字列も保持していない場合にtrueを返す。
func (ts Timestamp) IsZero() bool {
	return !ts.valid && ts.raw == ""
}

// Display は表示用の日付文字列を返す。
// 有効な日時があればDisplayLayoutで整形し、パースできなかった文字列は
// そのまま返す。どちらもなければ空文字列を返す。
func (ts Timestamp) Display() string {
	if ts.valid {
		return ts.t.Format(DisplayLayout)
	}
	return ts.raw
}

// UnmarshalJSON はサービスのレスポンスに現れる全エンコーディングを受理する。
// 認識できない値はエラーにせず空のTimestampとして扱う（表示は空文字列）。
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		*ts = Timestamp{}
		return nil
	}

	*ts = coerce(v)
	return nil
}

// MarshalJSON は有効な日時をRFC3339文字列として出力する。
// パススルー文字列はそのまま文字列として、空の場合はnullを出力する。
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.valid {
		return json.Marshal(ts.t.Format(time.RFC3339))
	}
	if ts.raw != "" {
		return json.Marshal(ts.raw)
	}
	return []byte("null"), nil
}

// Normalize は任意のタイムスタンプ表現を表示用文字列に変換する。
// 決定的・全域的であり、いかなる入力でもパニックしない。
// 優先順位（最初にマッチした規則を採用）:
//  1. ゼロ引数日時アクセサ（失敗時はフォールスルー）
//  2. secondsまたは_seconds数値フィールドを持つオブジェクト（エポック秒）
//  3. ネイティブ日時
//  4. 数値: 1e12超はエポックミリ秒、それ以外はエポック秒
//  5. 文字列: パース可能なら整形、不可能ならそのまま返す
//  6. その他（nil、未知のオブジェクト）: 空文字列
func Normalize(raw any) string {
	return coerce(raw).Display()
}

// coerce は生のタイムスタンプ表現をTimestampに変換する。
// NormalizeとUnmarshalJSONが共有する単一の判別ロジック。
func coerce(raw any) Timestamp {
	if raw == nil {
		return Timestamp{}
	}

	// 規則1: ゼロ引数日時アクセサ
	if p, ok := raw.(DateProvider); ok {
		if t, err := p.Date(); err == nil && !t.IsZero() {
			return FromTime(t)
		}
		// 失敗時は次の規則へフォールスルー
	}

	// 規則2: seconds / _seconds フィールドを持つオブジェクト
	if m, ok := raw.(map[string]any); ok {
		if sec, ok := numeric(m["seconds"]); ok {
			return fromEpochSeconds(sec)
		}
		if sec, ok := numeric(m["_seconds"]); ok {
			return fromEpochSeconds(sec)
		}
		return Timestamp{}
	}

	// 規則3: ネイティブ日時
	switch t := raw.(type) {
	case time.Time:
		return FromTime(t)
	case *time.Time:
		if t == nil {
			return Timestamp{}
		}
		return FromTime(*t)
	}

	// 規則4: 数値エポック
	if n, ok := numeric(raw); ok {
		if n > millisThreshold || n < -millisThreshold {
			return FromTime(time.UnixMilli(int64(n)))
		}
		return fromEpochSeconds(n)
	}

	// 規則5: 文字列
	if s, ok := raw.(string); ok {
		if s == "" {
			return Timestamp{}
		}
		if t, ok := parseString(s); ok {
			return FromTime(t)
		}
		// パース不能な文字列は人間可読とみなしてそのまま保持する
		return Timestamp{raw: s}
	}

	// 規則6: 認識できない値
	return Timestamp{}
}

// fromEpochSeconds はエポック秒からTimestampを生成する。
// 小数部はナノ秒として反映する。
func fromEpochSeconds(sec float64) Timestamp {
	whole := int64(sec)
	frac := sec - float64(whole)
	return FromTime(time.Unix(whole, int64(frac*1e9)))
}

// numeric は数値系の型をfloat64へ変換する。
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// stringLayouts は文字列タイムスタンプのパースに試行するレイアウト。
// サービスはRFC3339を返すのが通常だが、旧データには日付のみの形式も残っている。
var stringLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	time.RFC1123,
	time.RFC1123Z,
}

// parseString は文字列を既知のレイアウトで順に試行してパースする。
func parseString(s string) (time.Time, bool) {
	for _, layout := range stringLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
