package tgui

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParseData(t *testing.T) {
	tests := []struct {
		in                      string
		prefix, action, payload string
		ok                      bool
	}{
		{in: "date:pick:2025-12-16", prefix: "date", action: "pick", payload: "2025-12-16", ok: true},
		{in: "date:manual", prefix: "date", action: "manual", ok: true},
		{in: "a:b:c:d", prefix: "a", action: "b", payload: "c:d", ok: true},
		{in: "date", ok: false},
		{in: ":pick", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, a, pl, ok := ParseData(tt.in)
			if ok != tt.ok || p != tt.prefix || a != tt.action || pl != tt.payload {
				t.Fatalf("ParseData(%q) = %q %q %q %v", tt.in, p, a, pl, ok)
			}
		})
	}
	if got := Data("date", "pick", "2025-12-16"); got != "date:pick:2025-12-16" {
		t.Fatalf("Data = %q", got)
	}
	if CheckData(string(make([]byte, 65))) == nil {
		t.Fatalf("expected too long")
	}
}

func TestBuilder_HTML(t *testing.T) {
	kb := NewInline().Row(Btn("Сегодня", "date:pick:x")).Row()
	m := New().
		Title("📅", "Расписание <108>").
		Blank().
		Line("a & b").
		KV("Группа", "108").
		Inline(kb).
		Build()

	want := "📅 <b>Расписание &lt;108&gt;</b>\n\na &amp; b\n• <b>Группа</b>: 108"
	if m.Text != want {
		t.Fatalf("text = %q", m.Text)
	}
	if m.Opt.ParseMode != "HTML" || !m.Opt.DisablePreview {
		t.Fatalf("opt = %+v", m.Opt)
	}
	rm, ok := m.Opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok || len(rm.InlineKeyboard) != 1 || kb.Rows() != 1 {
		t.Fatalf("markup = %#v", m.Opt.ReplyMarkupAdapter)
	}
}

func TestTruncRunes(t *testing.T) {
	if got := TruncRunes("Алгебра", 3); got != "Алг…" {
		t.Fatalf("got %q", got)
	}
	if got := TruncRunes("abc", 3); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
