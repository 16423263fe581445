package bot

import (
	"time"

	"schedbot/pkg/dates"
	"schedbot/pkg/tgui"
)

const (
	cbPrefix     = "date"
	actionPick   = "pick"
	actionManual = "manual"
)

// dateKeyboard offers today, tomorrow, manual entry and a refresh of today.
func dateKeyboard(now time.Time) *tgui.Inline {
	today := dates.Key(dates.AfterDays(now, 0))
	tomorrow := dates.Key(dates.AfterDays(now, 1))
	return tgui.NewInline().
		Row(
			tgui.Btn("📅 Сегодня", tgui.Data(cbPrefix, actionPick, today)),
			tgui.Btn("📅 Завтра", tgui.Data(cbPrefix, actionPick, tomorrow)),
		).
		Row(tgui.Btn("📝 Дата вручную", tgui.Data(cbPrefix, actionManual, ""))).
		Row(tgui.Btn("🔄 Обновить", tgui.Data(cbPrefix, actionPick, today)))
}
