package render

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	mainPart = "word/document.xml"
	// lineBreak closes the current text node, inserts a Word line break and reopens the text node.
	lineBreak = `</w:t><w:br/><w:t xml:space="preserve">`
	// maxPlaceholderLen bounds how far a '{' is followed before it is treated as literal text.
	maxPlaceholderLen = 256
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
	"\r", "",
)

// Renderer merges field values into DOCX templates loaded from a Source.
type Renderer struct {
	source Source
}

// NewRenderer creates a Renderer reading templates from src.
func NewRenderer(src Source) *Renderer {
	return &Renderer{source: src}
}

// Render loads templateID and substitutes values into every {placeholder}.
func (r *Renderer) Render(ctx context.Context, templateID string, values Values) ([]byte, error) {
	blob, err := r.source.Load(ctx, templateID)
	if err != nil {
		return nil, err
	}
	out, err := Merge(blob, values)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", templateID, err)
	}
	return out, nil
}

// Merge substitutes values into the text parts of a DOCX package and returns the new package.
// Placeholders missing from values are replaced with an empty string.
func Merge(blob []byte, values Values) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	hasMain := false

	for _, f := range zr.File {
		if !isTextPart(f.Name) {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("failed to copy part %s: %w", f.Name, err)
			}
			continue
		}
		if f.Name == mainPart {
			hasMain = true
		}

		content, err := readPart(f)
		if err != nil {
			return nil, fmt.Errorf("%w: part %s: %v", ErrInvalidTemplate, f.Name, err)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create part %s: %w", f.Name, err)
		}
		if _, err := io.WriteString(w, substitute(content, values)); err != nil {
			return nil, fmt.Errorf("failed to write part %s: %w", f.Name, err)
		}
	}

	if !hasMain {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidTemplate, mainPart)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize document: %w", err)
	}
	return buf.Bytes(), nil
}

func isTextPart(name string) bool {
	if !strings.HasSuffix(name, ".xml") {
		return false
	}
	switch {
	case name == mainPart,
		name == "word/footnotes.xml",
		name == "word/endnotes.xml",
		strings.HasPrefix(name, "word/header"),
		strings.HasPrefix(name, "word/footer"):
		return true
	}
	return false
}

func readPart(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// substitute walks the XML, copying markup verbatim and replacing {name} placeholders found in
// text. Word often splits a placeholder over several runs; markup inside a placeholder is dropped
// so the value lands in the run that held the opening brace.
func substitute(doc string, values Values) string {
	var out strings.Builder
	out.Grow(len(doc))

	for i := 0; i < len(doc); {
		switch doc[i] {
		case '<':
			end := strings.IndexByte(doc[i:], '>')
			if end < 0 {
				out.WriteString(doc[i:])
				return out.String()
			}
			out.WriteString(doc[i : i+end+1])
			i += end + 1
		case '{':
			name, next, ok := scanPlaceholder(doc, i)
			if !ok {
				out.WriteByte('{')
				i++
				continue
			}
			out.WriteString(replacement(name, values))
			i = next
		default:
			out.WriteByte(doc[i])
			i++
		}
	}
	return out.String()
}

// scanPlaceholder reads the placeholder opening at start. It fails on a nested '{', on a
// paragraph end, or when the name grows past maxPlaceholderLen.
func scanPlaceholder(doc string, start int) (string, int, bool) {
	var name strings.Builder
	for j := start + 1; j < len(doc); {
		switch doc[j] {
		case '<':
			end := strings.IndexByte(doc[j:], '>')
			if end < 0 {
				return "", 0, false
			}
			if strings.HasPrefix(doc[j:], "</w:p>") {
				return "", 0, false
			}
			j += end + 1
		case '{':
			return "", 0, false
		case '}':
			n := strings.TrimSpace(name.String())
			if n == "" {
				return "", 0, false
			}
			return n, j + 1, true
		default:
			if name.Len() >= maxPlaceholderLen {
				return "", 0, false
			}
			name.WriteByte(doc[j])
			j++
		}
	}
	return "", 0, false
}

func replacement(name string, values Values) string {
	switch name[0] {
	case '#', '/', '^':
		// Section tags are not expanded; the flat substitution keeps the enclosed content once.
		if len(name) > 1 {
			return ""
		}
	}
	lines := strings.Split(Flatten(values[name]), "\n")
	for i, line := range lines {
		lines[i] = xmlEscaper.Replace(line)
	}
	return strings.Join(lines, lineBreak)
}
