package adapter

import "strings"

// textLimit stays below Telegram's 4096 rune cap to leave room for entities.
const textLimit = 4000

// splitText cuts s into chunks of at most limit runes. Cuts prefer the last
// blank line, then the last newline, in the window. In HTML mode a cut never
// lands inside an unclosed tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, "HTML")

	var out []string
	for len(rs) > 0 {
		if len(rs) <= limit {
			if tail := strings.TrimRight(string(rs), "\n"); tail != "" {
				out = append(out, tail)
			}
			break
		}
		end := cutPoint(rs[:limit], limit/3)
		if html {
			end = avoidOpenTag(rs[:end], end)
		}
		chunk := strings.TrimRight(string(rs[:end]), "\n")
		if chunk != "" {
			out = append(out, chunk)
		}
		rs = rs[end:]
		for len(rs) > 0 && rs[0] == '\n' {
			rs = rs[1:]
		}
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

// cutPoint returns the index just after the best newline in w, or len(w)
// when every newline would leave a chunk shorter than minLen.
func cutPoint(w []rune, minLen int) int {
	lastNL := -1
	for i := len(w) - 1; i >= minLen; i-- {
		if w[i] != '\n' {
			continue
		}
		if i > 0 && w[i-1] == '\n' {
			return i + 1
		}
		if lastNL == -1 {
			lastNL = i
		}
	}
	if lastNL != -1 {
		return lastNL + 1
	}
	return len(w)
}

func avoidOpenTag(w []rune, end int) int {
	open := strings.LastIndex(string(w), "<")
	if open == -1 {
		return end
	}
	if strings.LastIndex(string(w), ">") > open {
		return end
	}
	// byte offset to rune offset
	r := len([]rune(string(w)[:open]))
	if r <= 1 {
		return end
	}
	return r
}
