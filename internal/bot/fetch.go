package bot

import (
	"context"
	"time"

	"schedbot/internal/transport/telegram/router"
	"schedbot/pkg/dates"
	logx "schedbot/pkg/logx"
)

// fetchAndSend shows an animated loading message while the schedule is
// fetched, then replaces it with the result.
func (b *Bot) fetchAndSend(ctx context.Context, req *router.Request, group string, day time.Time) error {
	shown := dates.WithWeekday(day)
	log := req.Logger.With(logx.String("group", group), logx.String("date", dates.Key(day)))

	loading, err := req.Reply(ctx, loadingText(group, shown, 0), htmlOpts(nil))
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	spun := make(chan struct{})
	go func() {
		defer close(spun)
		t := time.NewTicker(b.spinnerEvery)
		defer t.Stop()
		for frame := 1; frame < b.spinnerFrames; frame++ {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
			}
			// edits fail harmlessly when the text did not change or the message is gone
			_ = req.Adapter.EditText(ctx, loading, loadingText(group, shown, frame), htmlOpts(nil))
		}
	}()

	log.Info("schedule requested")
	res := b.svc.FetchDetailed(ctx, group, day)
	close(stop)
	<-spun

	if err := req.Adapter.DeleteMessage(ctx, loading); err != nil {
		log.Debug("loading message not deleted", logx.Err(err))
	}

	kb := dateKeyboard(b.today())
	switch {
	case res.Failed:
		log.Warn("schedule unavailable", logx.String("rid", res.RID), logx.Err(res.Err))
		return b.reply(ctx, req, fetchErrorText(), kb)
	case len(res.Entries) == 0:
		return b.reply(ctx, req, noClassesText(shown), kb)
	default:
		log.Debug("schedule sent", logx.Int("entries", len(res.Entries)), logx.Bool("cached", res.FromCache))
		return b.reply(ctx, req, scheduleText(group, shown, res.Entries), kb)
	}
}
