package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
)

func buildDOCX(t *testing.T, paragraphs ...[]string) []byte {
	t.Helper()
	var body strings.Builder
	for _, runs := range paragraphs {
		body.WriteString("<w:p>")
		for _, r := range runs {
			fmt.Fprintf(&body, `<w:r><w:t xml:space="preserve">%s</w:t></w:r>`, r)
		}
		body.WriteString("</w:p>")
	}
	return buildDOCXBody(t, body.String())
}

// buildDOCXBody zips raw w:body content into a minimal document.
func buildDOCXBody(t *testing.T, body string) []byte {
	t.Helper()
	xmlDoc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"` +
		` xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><w:body>` +
		body + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(xmlDoc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildPDF writes a minimal PDF with one Helvetica text line per page and a
// correct cross-reference table.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	var objects []string

	pageCount := len(pages)
	kids := make([]string, pageCount)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+i*2)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pageCount),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+i*2),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestParseDOCX(t *testing.T) {
	data := buildDOCX(t, []string{"Hello ", "world"}, []string{}, []string{"Second paragraph"})

	text, err := ParseDOCX(data)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n\nSecond paragraph", text)
}

func TestParseDOCX_NestedRuns(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "hyperlink",
			body: `<w:p><w:r><w:t xml:space="preserve">See </w:t></w:r>` +
				`<w:hyperlink r:id="rId1"><w:r><w:t>the Go spec</w:t></w:r></w:hyperlink>` +
				`<w:r><w:t xml:space="preserve"> for details.</w:t></w:r></w:p>`,
			want: "See the Go spec for details.",
		},
		{
			name: "tracked insertion and deletion",
			body: `<w:p><w:r><w:t xml:space="preserve">Keep </w:t></w:r>` +
				`<w:ins w:id="1" w:author="a"><w:r><w:t>added</w:t></w:r></w:ins>` +
				`<w:del w:id="2" w:author="a"><w:r><w:delText>removed</w:delText></w:r></w:del></w:p>`,
			want: "Keep added",
		},
		{
			name: "inline content control",
			body: `<w:p><w:sdt><w:sdtPr><w:alias w:val="Name"/></w:sdtPr>` +
				`<w:sdtContent><w:r><w:t>Ada</w:t></w:r></w:sdtContent></w:sdt></w:p>`,
			want: "Ada",
		},
		{
			name: "tabs and breaks inside runs only",
			body: `<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr>` +
				`<w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>`,
			want: "a\tb\nc",
		},
		{
			name: "table cells skipped",
			body: `<w:p><w:r><w:t>before</w:t></w:r></w:p>` +
				`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
				`<w:p><w:r><w:t>after</w:t></w:r></w:p>`,
			want: "before\nafter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := ParseDOCX(buildDOCXBody(t, tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestParseDOCX_MalformedXML(t *testing.T) {
	_, err := ParseDOCX(buildDOCXBody(t, `<w:p><w:r><w:t>unclosed`))
	assert.ErrorContains(t, err, "decode word/document.xml")
}

func TestParseDOCX_Invalid(t *testing.T) {
	_, err := ParseDOCX([]byte("not a zip"))
	assert.Error(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err = zw.Create("word/other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ParseDOCX(buf.Bytes())
	assert.ErrorContains(t, err, "word/document.xml not found")
}

func TestParsePDF(t *testing.T) {
	text, err := ParsePDF(buildPDF(t, "First page text", "Second page text"))
	require.NoError(t, err)

	assert.Contains(t, text, "First page text")
	assert.Contains(t, text, "Second page text")
	assert.Less(t, strings.Index(text, "First"), strings.Index(text, "Second"))
}

func TestParsePDF_Invalid(t *testing.T) {
	_, err := ParsePDF([]byte("plain bytes"))
	assert.Error(t, err)
}

func TestParseText(t *testing.T) {
	text, err := ParseText([]byte("  café notes \n"))
	require.NoError(t, err)
	assert.Equal(t, "café notes", text)

	_, err = ParseText([]byte{'o', 'k', 0xff, 0xfe})
	assert.ErrorIs(t, err, apperr.ErrDecode)
}

func TestParseFile_Dispatch(t *testing.T) {
	text, err := ParseFile("NOTES.TXT", []byte("upper case extension"))
	require.NoError(t, err)
	assert.Equal(t, "upper case extension", text)

	text, err = ParseFile("report.docx", buildDOCX(t, []string{"docx body"}))
	require.NoError(t, err)
	assert.Equal(t, "docx body", text)

	for _, name := range []string{"image.png", "archive.tar.gz", "no-extension"} {
		_, err := ParseFile(name, []byte("x"))
		assert.ErrorIs(t, err, apperr.ErrUnsupportedFileType, name)
		assert.ErrorContains(t, err, "supported: .pdf, .docx, .txt", name)
	}
}
