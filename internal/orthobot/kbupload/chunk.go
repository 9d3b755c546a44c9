package kbupload

// Chunking defaults.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// ChunkText splits text into windows of at most size characters, each
// starting size-overlap characters after the previous one. The last window
// ends at the end of the text.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	step := size - overlap
	if step < 1 {
		step = 1
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
