package chunking

import "strings"

// WindowSplitter is the non-semantic fallback: fixed-size rune windows with
// overlap. It knows nothing about the content; everything it produces is
// typed "general".
type WindowSplitter struct {
	ChunkSize int
	Overlap   int
}

func NewWindowSplitter(chunkSize, overlap int) *WindowSplitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &WindowSplitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *WindowSplitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
