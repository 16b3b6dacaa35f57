package security

import (
	"strings"
	"testing"
)

// TestSanitize_StripsTags はタグが除去されテキストのみが残ることを検証する。
func TestSanitize_StripsTags(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "プレーンテキストはそのまま", input: "buy milk", want: "buy milk"},
		{name: "記号を含むテキスト", input: "2%", want: "2%"},
		{name: "強調タグを除去", input: "<b>buy</b> milk", want: "buy milk"},
		{name: "リンクを除去しテキストを残す", input: `<a href="https://example.com">link</a>`, want: "link"},
		{name: "scriptは中身ごと除去", input: "<script>alert(1)</script>buy", want: "buy"},
		{name: "styleは中身ごと除去", input: "<style>body{}</style>milk", want: "milk"},
		{name: "イベント属性付きimgを除去", input: `<img src=x onerror="alert(1)">eggs`, want: "eggs"},
		{name: "アンパサンドは元の文字に戻す", input: "salt & pepper", want: "salt & pepper"},
		{name: "不等号は元の文字に戻す", input: "a < b", want: "a < b"},
		{name: "前後の空白を除去", input: "  tea  ", want: "tea"},
		{name: "日本語", input: "<p>牛乳を買う</p>", want: "牛乳を買う"},
		{name: "空文字列", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	inputs := []string{
		"<b>bold</b> & <i>italic</i>",
		"<script>x</script>safe",
		"plain",
	}
	for _, in := range inputs {
		first := sanitizer.Sanitize(in)
		second := sanitizer.Sanitize(first)
		if first != second {
			t.Errorf("not idempotent for %q: %q then %q", in, first, second)
		}
	}
}

// TestSanitize_NoTagSurvives は出力にタグが残らないことを検証する。
func TestSanitize_NoTagSurvives(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.Sanitize(`<div><iframe src="https://evil"></iframe><p onclick="x()">hi</p></div>`)
	for _, tag := range []string{"<div", "<iframe", "<p", "onclick"} {
		if strings.Contains(got, tag) {
			t.Errorf("output %q still contains %q", got, tag)
		}
	}
}
