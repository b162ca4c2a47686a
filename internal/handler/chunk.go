package handler

import "github.com/mattn/go-runewidth"

// maxReplyWidth is the display-width budget for one outbound message, chosen
// conservatively under Telegram's 4096-character cap to leave room for
// wide (CJK, emoji) runes that occupy two display cells each.
const maxReplyWidth = 3500

// chunkText splits text into pieces that each fit within maxReplyWidth
// display cells, generalizing the teacher's flat Truncate(s, maxLen) into a
// split that keeps every piece instead of discarding the remainder. It
// prefers to break after a newline, then after a space, before falling
// back to a hard rune cut.
func chunkText(text string) []string {
	if runewidth.StringWidth(text) <= maxReplyWidth {
		return []string{text}
	}

	var chunks []string
	remaining := []rune(text)
	for len(remaining) > 0 {
		cut := cutPoint(remaining)
		chunks = append(chunks, string(remaining[:cut]))
		remaining = remaining[cut:]
		for len(remaining) > 0 && remaining[0] == '\n' {
			remaining = remaining[1:]
		}
	}
	return chunks
}

// cutPoint finds the rune index within runes' first maxReplyWidth display
// cells at which to split, preferring a newline and falling back to a space,
// so chunks don't break mid-word when avoidable.
func cutPoint(runes []rune) int {
	limit := widthLimitedIndex(runes, maxReplyWidth)
	if limit >= len(runes) {
		return limit
	}

	if i := lastIndexRune(runes[:limit], '\n'); i > 0 {
		return i + 1
	}
	if i := lastIndexRune(runes[:limit], ' '); i > 0 {
		return i + 1
	}
	return limit
}

// widthLimitedIndex returns the largest index i such that the display width
// of runes[:i] does not exceed limit cells.
func widthLimitedIndex(runes []rune, limit int) int {
	width := 0
	for i, r := range runes {
		w := runewidth.RuneWidth(r)
		if width+w > limit {
			return i
		}
		width += w
	}
	return len(runes)
}

// lastIndexRune returns the index of the last occurrence of sep in runes, or
// -1 if absent.
func lastIndexRune(runes []rune, sep rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == sep {
			return i
		}
	}
	return -1
}
