package extract

import (
	"bufio"
	"io"
	"strings"
)

// ReadChunks splits r into chunks separated by one or more blank lines.
// Lines inside a chunk keep their order and are joined with "\n".
func ReadChunks(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var chunks []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, "\n"))
			cur = cur[:0]
		}
	}
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return chunks, nil
}
