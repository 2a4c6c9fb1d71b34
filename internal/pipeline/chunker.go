package pipeline

// Chunk is one window of a source document handed to an extraction call.
type Chunk struct {
	Index int
	Total int
	Text  string
}

// SplitContent cuts oversized content into overlapping windows of at most
// maxSize characters. Consecutive windows share overlap characters so a
// requirement straddling a boundary appears whole in at least one window.
// A trailing window that would only repeat the overlap region is dropped;
// the previous window already reaches the end of the content.
func SplitContent(content string, maxSize, overlap int) []Chunk {
	if maxSize <= 0 {
		maxSize = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize - 1
	}
	if len(content) <= maxSize {
		return []Chunk{{Index: 0, Total: 1, Text: content}}
	}

	var windows []string
	step := maxSize - overlap
	for start := 0; start < len(content); start += step {
		if start > 0 && start >= len(content)-overlap {
			break
		}
		end := start + maxSize
		if end > len(content) {
			end = len(content)
		}
		windows = append(windows, content[start:end])
	}

	chunks := make([]Chunk, len(windows))
	for i, text := range windows {
		chunks[i] = Chunk{Index: i, Total: len(windows), Text: text}
	}
	return chunks
}
