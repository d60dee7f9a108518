package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
)

// SupportedExtensions lists the file types ParseFile accepts.
var SupportedExtensions = []string{".pdf", ".docx", ".txt"}

// ParseFile extracts plain text from an uploaded file, choosing the parser by
// extension.
func ParseFile(filename string, data []byte) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".pdf":
		return ParsePDF(data)
	case ".docx":
		return ParseDOCX(data)
	case ".txt":
		return ParseText(data)
	default:
		return "", fmt.Errorf("%w: %q (supported: %s)", apperr.ErrUnsupportedFileType, ext, strings.Join(SupportedExtensions, ", "))
	}
}

// ParsePDF concatenates each page's text followed by a newline.
func ParsePDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// ParseDOCX concatenates each body paragraph's text followed by a newline.
// Runs nested in hyperlinks, content controls and tracked insertions count
// toward their paragraph; paragraphs inside tables are skipped.
func ParseDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docx archive: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open word/document.xml: %w", err)
		}
		defer rc.Close()

		paragraphs, err := docxParagraphs(rc)
		if err != nil {
			return "", fmt.Errorf("decode word/document.xml: %w", err)
		}
		var sb strings.Builder
		for _, p := range paragraphs {
			sb.WriteString(p)
			sb.WriteString("\n")
		}
		return strings.TrimSpace(sb.String()), nil
	}
	return "", fmt.Errorf("docx: word/document.xml not found")
}

// docxParagraphs streams document.xml and returns the text of every paragraph
// that is a direct child of w:body.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		stack  []string
		out    []string
		para   strings.Builder
		inPara bool
		inText bool
	)
	parent := func() string {
		if len(stack) == 0 {
			return ""
		}
		return stack[len(stack)-1]
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if name == "p" && !inPara && parent() == "body" {
				inPara = true
				para.Reset()
			} else if inPara && parent() == "r" {
				switch name {
				case "t":
					inText = true
				case "tab":
					para.WriteByte('\t')
				case "br", "cr":
					para.WriteByte('\n')
				}
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			switch {
			case t.Name.Local == "t":
				inText = false
			case t.Name.Local == "p" && inPara && parent() == "body":
				out = append(out, para.String())
				inPara = false
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
}

// ParseText accepts only valid UTF-8.
func ParseText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: file is not valid UTF-8", apperr.ErrDecode)
	}
	return strings.TrimSpace(string(data)), nil
}
