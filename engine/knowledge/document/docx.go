package document

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DOCXReader returns the paragraphs of word/document.xml joined by newlines.
type DOCXReader struct{}

func (DOCXReader) Extract(_ context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docx: open archive: %w", err)
	}
	for _, f := range zr.File {
		if !strings.EqualFold(f.Name, "word/document.xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("docx: open document part: %w", err)
		}
		defer rc.Close()
		paragraphs, err := docxParagraphs(rc)
		if err != nil {
			return "", err
		}
		return strings.Join(paragraphs, "\n"), nil
	}
	return "", errors.New("docx: word/document.xml not found")
}

// docxParagraphs collects the text of top-level body paragraphs. Paragraphs
// nested in tables, text boxes or content controls are skipped, and a nested
// paragraph never disturbs the text gathered for its enclosing one.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		current    strings.Builder
		stack      []string
		depth      int // open w:p elements inside the current body paragraph
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("docx: parse document part: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case name == "p" && depth == 0 && len(stack) > 0 && stack[len(stack)-1] == "body":
				depth = 1
				current.Reset()
			case name == "p" && depth > 0:
				depth++
			case name == "t" && depth == 1:
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return nil, fmt.Errorf("docx: decode text run: %w", err)
				}
				current.WriteString(text)
				continue
			case name == "tab" && depth == 1:
				current.WriteByte('\t')
			case (name == "br" || name == "cr") && depth == 1:
				current.WriteByte('\n')
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if t.Name.Local != "p" || depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				paragraphs = append(paragraphs, current.String())
			}
		}
	}
	return paragraphs, nil
}
