package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"schedbot/internal/schedule"
	"schedbot/pkg/tgui"
)

var spinnerFrames = [...]string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	sparkle   = "✨"
	separator = "━━━━━━━━━━━━━━━━━━━━"
	banner    = "════════════════════"
)

func spinnerFrame(i int) string { return spinnerFrames[i%len(spinnerFrames)] }

func welcomeText() string {
	return tgui.New().
		Line(banner).
		Title("🎓", "РАСПИСАНИЕ ПСИХФАКА МГУ").
		Line(banner).
		Blank().
		Title("👋", "Добро пожаловать!").
		Line("Это бот расписания учебных занятий.").
		Blank().
		Title("📚", "Возможности:").
		Line("• Просмотр расписания по датам").
		Line("• Сохранение группы").
		Line("• Статистика сервера").
		Blank().
		HTML("Начнём! Введите номер группы → "+tgui.B("108")).
		Build().Text
}

func welcomeBackText(group string) string {
	return tgui.New().
		Title(sparkle, "Добро пожаловать обратно!").
		Blank().
		HTML("📚 Группа: " + tgui.Code(group)).
		Blank().
		Line("Выберите дату для расписания:").
		Build().Text
}

func pickDateText(group string) string {
	return tgui.New().HTML("📅 " + tgui.B("Выберите дату для группы") + " " + tgui.Code(group) + ":").Build().Text
}

func groupSavedText(group string) string {
	return tgui.New().
		Title(sparkle, "Успешно!").
		Blank().
		HTML("✅ Группа " + tgui.Code(group) + " сохранена!").
		Blank().
		Line("📅 Выберите дату для просмотра расписания:").
		Build().Text
}

func groupRejectedText(allowed []string) string {
	b := tgui.New().
		Title("❌", "Группа не найдена").
		Blank().
		Line("🔍 Проверьте номер и попробуйте ещё раз.")
	if len(allowed) > 0 && len(allowed) <= 30 {
		b.Line("Допустимые группы: " + strings.Join(allowed, ", "))
	}
	return b.Build().Text
}

func noGroupText() string {
	return tgui.New().
		Title("❌", "Сначала укажите группу").
		Blank().
		HTML("Выполните " + tgui.B("/start") + " и введите номер группы.").
		Build().Text
}

func myGroupText(group string) string {
	return tgui.New().
		HTML(tgui.Raw(sparkle+" ") + tgui.B("Ваша текущая группа:") + " " + tgui.Code(group)).
		Blank().
		HTML("Используйте " + tgui.B("/changegroup") + " для изменения.").
		Build().Text
}

func noSavedGroupText() string {
	return tgui.New().
		Title("📭", "Группа не установлена").
		Blank().
		HTML("Выполните " + tgui.B("/start") + " чтобы её добавить.").
		Build().Text
}

func changeGroupText() string {
	return tgui.New().
		Title("✏️", "Введите новый номер группы").
		Blank().
		HTML("Пример: " + tgui.JoinH(", ", tgui.Code("108"), tgui.Code("209"), tgui.Code("310"))).
		Build().Text
}

func groupDeletedText() string {
	return tgui.New().
		Title("🗑️", "Группа удалена").
		Blank().
		HTML(tgui.Raw(sparkle+" Выполните ") + tgui.B("/start") + " для начала заново.").
		Build().Text
}

func badDateText() string {
	return tgui.New().
		Title("❌", "Неверный формат даты").
		Blank().
		HTML("📝 Используйте формат: " + tgui.Code("ГГГГ-ММ-ДД")).
		HTML("✅ Пример: " + tgui.Code("2025-12-16")).
		Build().Text
}

func manualDateText() string {
	return tgui.New().
		Title("📝", "Введите дату в формате ГГГГ-ММ-ДД").
		Blank().
		HTML("✅ Пример: " + tgui.Code("2025-12-16")).
		Build().Text
}

func notUnderstoodText() string {
	return tgui.New().
		Title("❓", "Команда не понята").
		Blank().
		HTML("Используйте " + tgui.B("/help") + " для справки или нажмите /start.").
		Build().Text
}

func loadingText(group, day string, frame int) string {
	status := "Поиск в календаре..."
	if frame > 0 {
		status = "Рендеринг календаря..."
	}
	return tgui.New().
		Title("⏳", "Загружаю расписание...").
		Blank().
		HTML("📚 Группа: " + tgui.Code(group)).
		HTML("📅 Дата: " + tgui.Code(day)).
		Blank().
		Line(spinnerFrame(frame) + " " + status).
		Build().Text
}

func scheduleText(group, day string, entries []schedule.Entry) string {
	b := tgui.New().
		Line(separator).
		Title("📖", "РАСПИСАНИЕ ГРУППЫ "+group).
		Line("📅 " + day).
		Line(separator).
		Blank()
	for i, e := range entries {
		b.HTML(tgui.B(strconv.Itoa(i+1)+". "+e.Time) + " ⏰")
		b.Line("📚 " + e.Subject)
		if e.Room != "" {
			b.Line("🏫 " + e.Room)
		}
		if e.Teacher != "" {
			b.Line("👨‍🏫 " + e.Teacher)
		}
		b.Blank()
	}
	icon := "✅"
	if len(entries) == 0 {
		icon = "📭"
	}
	return b.
		Line(separator).
		Line(fmt.Sprintf("%s Всего %d %s", icon, len(entries), pairsWord(len(entries)))).
		Line(separator).
		Build().Text
}

// pairsWord declines "пара" for n.
func pairsWord(n int) string {
	n100, n10 := n%100, n%10
	switch {
	case n100 >= 11 && n100 <= 14:
		return "пар"
	case n10 == 1:
		return "пара"
	case n10 >= 2 && n10 <= 4:
		return "пары"
	default:
		return "пар"
	}
}

func noClassesText(day string) string {
	return tgui.New().
		Title("📭", "На этот день пар нет").
		Blank().
		Line(sparkle + " Расслабьтесь, это отличная новость!").
		Line("День свободный, используйте время для учёбы или отдыха.").
		Blank().
		HTML("📅 Дата: " + tgui.Code(day)).
		Build().Text
}

func fetchErrorText() string {
	return tgui.New().
		Title("❌", "Ошибка при загрузке").
		Blank().
		Line("🔧 Что-то пошло не так:").
		Line("• Проверьте номер группы").
		Line("• Попробуйте позже").
		Blank().
		Line("📞 Если проблема повторяется, свяжитесь с администратором.").
		Build().Text
}

func statsText(st schedule.Stats) string {
	pct := st.MemoryPercent()
	status := "✅"
	if pct > 70 {
		status = "⚠️"
	}
	used := humanize.IBytes(uint64(st.MemoryUsedMB * (1 << 20)))
	total := humanize.IBytes(uint64(st.MemoryTotalMB * (1 << 20)))
	return tgui.New().
		Line(banner).
		Title("📊", "СТАТИСТИКА СЕРВЕРА").
		Line(banner).
		Blank().
		Line(fmt.Sprintf("🌐 Браузеры в пуле: %d", st.PoolSize)).
		Line(fmt.Sprintf("💾 Записей в кеше: %d/%d", st.CacheSize, st.CacheCapacity)).
		Line(fmt.Sprintf("📋 В очереди: %d (выполняется: %d)", st.QueueDepth, st.Running)).
		Line("📈 Всего запросов: " + humanize.Comma(int64(st.TotalRequests))).
		Line(fmt.Sprintf("🎯 Из кеша: %s, ошибок: %s", humanize.Comma(int64(st.CacheHits)), humanize.Comma(int64(st.Failures)))).
		Blank().
		HTML(tgui.Raw(status+" ") + tgui.B("Память:") + tgui.Esc(fmt.Sprintf(" %s / %s (%.0f%%)", used, total, pct))).
		Line(banner).
		Build().Text
}
