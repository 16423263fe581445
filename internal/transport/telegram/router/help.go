package router

import (
	"html"
	"strings"
)

// helpText lists visible commands in registration order, HTML parse mode.
func (r *Router) helpText() string {
	r.mu.RLock()
	cmds := r.ordered
	r.mu.RUnlock()

	lines := []string{"<b>" + html.EscapeString(r.cfg.HelpTitle) + "</b>", ""}
	for _, c := range cmds {
		if c.Hidden {
			continue
		}
		line := "<b>/" + html.EscapeString(c.Name) + "</b>"
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " — " + html.EscapeString(d)
		}
		lines = append(lines, line)
	}
	if len(r.cfg.HelpFooter) > 0 {
		lines = append(lines, "")
		for _, f := range r.cfg.HelpFooter {
			lines = append(lines, html.EscapeString(f))
		}
	}
	return strings.Join(lines, "\n")
}
