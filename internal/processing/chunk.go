package processing

import "strings"

// ChunkText splits text into pieces of at most size characters, preferring to
// break on the last newline inside each window. The newline used as a break
// is consumed; blank pieces are dropped.
func ChunkText(text string, size int) []string {
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	emit := func(piece []rune) {
		s := string(piece)
		if strings.TrimSpace(s) != "" {
			chunks = append(chunks, s)
		}
	}

	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			emit(runes[start:])
			break
		}

		cut, next := end, end
		for i := end - 1; i > start; i-- {
			if runes[i] == '\n' {
				cut, next = i, i+1
				break
			}
		}

		emit(runes[start:cut])
		start = next
	}

	return chunks
}
