package attachment

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/notionmd/internal/block"
)

// TextConverter handles plain text files. Blank lines separate paragraphs.
type TextConverter struct{}

func (c *TextConverter) Convert(r io.Reader, filename string) (*block.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	b := newBuilder(filename)
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			b.paragraph(current.String())
			current.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return b.doc, nil
}
