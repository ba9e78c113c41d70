package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var longText = strings.Repeat("Experian credit report line. ", 10)

type fakeRecognizer struct {
	text     string
	err      error
	calls    int
	lastMime string
}

func (f *fakeRecognizer) Recognize(ctx context.Context, data []byte, mimeType string) (string, error) {
	f.calls++
	f.lastMime = mimeType
	return f.text, f.err
}

type calls struct{ pages, plain int }

func testChain(pages []PageArtifact, plain string, ocr *fakeRecognizer) (*Chain, *calls) {
	var opts []Option
	if ocr != nil {
		opts = append(opts, WithRecognizer(ocr, 0))
	}
	c := NewChain(0, opts...)
	n := &calls{}
	c.pdfPages = func([]byte) ([]PageArtifact, error) {
		n.pages++
		return pages, nil
	}
	c.pdfPlain = func([]byte) (string, error) {
		n.plain++
		return plain, nil
	}
	return c, n
}

func pdfDoc() Document {
	return Document{Bytes: []byte("%PDF-1.7 fake"), FileName: "report.pdf", MimeType: "application/pdf"}
}

func TestPrimarySufficientShortCircuits(t *testing.T) {
	ocr := &fakeRecognizer{text: longText}
	c, n := testChain([]PageArtifact{{Page: 1, Text: longText}}, longText, ocr)

	res, err := c.Extract(context.Background(), pdfDoc())

	require.NoError(t, err)
	assert.Equal(t, TierPrimary, res.Tier)
	assert.False(t, res.NeedsOCR)
	assert.Equal(t, 0, n.plain)
	assert.Equal(t, 0, ocr.calls)
	require.Len(t, res.Pages, 1)
	assert.Len(t, res.Attempts, 1)
}

func TestSecondaryUsedWhenPrimaryShortKeepsPages(t *testing.T) {
	ocr := &fakeRecognizer{text: longText}
	c, n := testChain([]PageArtifact{{Page: 1, Text: "short"}}, longText, ocr)

	res, err := c.Extract(context.Background(), pdfDoc())

	require.NoError(t, err)
	assert.Equal(t, TierSecondary, res.Tier)
	assert.Equal(t, strings.TrimSpace(longText), res.Text)
	assert.Equal(t, []PageArtifact{{Page: 1, Text: "short"}}, res.Pages)
	assert.Equal(t, 1, n.plain)
	assert.Equal(t, 0, ocr.calls)
}

func TestOCRUsedWhenParsersShort(t *testing.T) {
	ocr := &fakeRecognizer{text: longText}
	c, _ := testChain(nil, "tiny", ocr)

	res, err := c.Extract(context.Background(), pdfDoc())

	require.NoError(t, err)
	assert.Equal(t, TierOCR, res.Tier)
	assert.Equal(t, mimePDF, ocr.lastMime)
	assert.Len(t, res.Attempts, 3)
}

func TestAllTiersShortReturnsPlaceholder(t *testing.T) {
	ocr := &fakeRecognizer{err: errors.New("vision down")}
	c, _ := testChain([]PageArtifact{{Page: 1, Text: "a"}}, "b", ocr)

	res, err := c.Extract(context.Background(), pdfDoc())

	require.NoError(t, err)
	assert.Equal(t, TierNone, res.Tier)
	assert.True(t, res.NeedsOCR)
	assert.True(t, IsPlaceholder(res.Text))
	assert.Contains(t, res.Text, "report.pdf")
	assert.ErrorIs(t, res.Failure, ErrExtractionFailure)
	assert.Len(t, res.Attempts, 3)
}

func TestImageGoesStraightToOCR(t *testing.T) {
	ocr := &fakeRecognizer{text: longText}
	c, n := testChain(nil, "", ocr)

	res, err := c.Extract(context.Background(), Document{Bytes: []byte{0x89, 'P', 'N', 'G'}, FileName: "scan.png"})

	require.NoError(t, err)
	assert.Equal(t, TierOCR, res.Tier)
	assert.Equal(t, "image/png", ocr.lastMime)
	assert.Equal(t, 0, n.pages+n.plain)
	assert.Nil(t, res.Pages)
}

func TestImageWithoutRecognizerDegrades(t *testing.T) {
	c, _ := testChain(nil, "", nil)

	res, err := c.Extract(context.Background(), Document{Bytes: []byte("x"), FileName: "scan.jpg"})

	require.NoError(t, err)
	assert.True(t, res.NeedsOCR)
	assert.Empty(t, res.Attempts)
}

func TestCancelledContext(t *testing.T) {
	c, n := testChain(nil, longText, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Extract(ctx, pdfDoc())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n.pages)
}

func TestMarkdownInput(t *testing.T) {
	c := NewChain(10)
	res, err := c.Extract(context.Background(), Document{
		Bytes:    []byte("# Notice\n\nThis is an **attempt to collect a debt**."),
		FileName: "letter.md",
	})

	require.NoError(t, err)
	assert.Equal(t, TierPrimary, res.Tier)
	assert.Equal(t, "Notice\nThis is an attempt to collect a debt.", res.Text)
}

func TestPlainTextBelowThreshold(t *testing.T) {
	res, err := NewChain(0).Extract(context.Background(), Document{Bytes: []byte("hello"), FileName: "a.txt"})
	require.NoError(t, err)
	assert.True(t, res.NeedsOCR)
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><w:document xmlns:w="urn:w"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDocxXMLText(t *testing.T) {
	data := buildDocx(t, `<w:p><w:r><w:t>Dear Consumer,</w:t></w:r></w:p><w:p><w:r><w:t>Validation notice</w:t></w:r></w:p>`)

	text, err := docxXMLText(data)

	require.NoError(t, err)
	assert.Equal(t, "Dear Consumer,\nValidation notice", text)
}

func TestDocxSecondaryWhenLibraryFails(t *testing.T) {
	data := buildDocx(t, `<w:p><w:r><w:t>`+longText+`</w:t></w:r></w:p>`)
	c := NewChain(0)
	c.docxPrimary = func([]byte) (string, error) { return "", errors.New("library failed") }

	res, err := c.Extract(context.Background(), Document{Bytes: data, FileName: "letter.docx", MimeType: "application/zip"})

	require.NoError(t, err)
	assert.Equal(t, TierSecondary, res.Tier)
	assert.Contains(t, res.Text, "Experian credit report line.")
}

func TestShortDocxSkipsRecognizer(t *testing.T) {
	data := buildDocx(t, `<w:p><w:r><w:t>Too short</w:t></w:r></w:p>`)
	ocr := &fakeRecognizer{text: longText}
	c := NewChain(0, WithRecognizer(ocr, 0))

	res, err := c.Extract(context.Background(), Document{Bytes: data, FileName: "letter.docx", MimeType: mimeDOCX})

	require.NoError(t, err)
	assert.Equal(t, TierNone, res.Tier)
	assert.True(t, IsPlaceholder(res.Text))
	assert.Len(t, res.Attempts, 2)
	assert.Zero(t, ocr.calls)
}

func TestNormalizeMimeType(t *testing.T) {
	docxBytes := buildDocx(t, "")
	var plainZip bytes.Buffer
	zw := zip.NewWriter(&plainZip)
	w, _ := zw.Create("notes.txt")
	_, _ = w.Write([]byte("hello"))
	_ = zw.Close()

	tests := []struct {
		name     string
		mime     string
		fileName string
		data     []byte
		want     string
	}{
		{"zip docx", "application/zip", "x.zip", docxBytes, mimeDOCX},
		{"real zip", "application/zip", "notes.zip", plainZip.Bytes(), "application/zip"},
		{"octet pdf ext", "application/octet-stream", "r.PDF", nil, mimePDF},
		{"params stripped", "application/pdf; charset=binary", "", nil, mimePDF},
		{"sniffed png", "", "", []byte("\x89PNG\r\n\x1a\n0000"), "image/png"},
		{"markdown alias", "text/x-markdown", "", nil, mimeMarkdown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeMimeType(tt.mime, tt.fileName, tt.data))
		})
	}
}

func TestUnsupportedKindDegrades(t *testing.T) {
	var plainZip bytes.Buffer
	zw := zip.NewWriter(&plainZip)
	_ = zw.Close()

	res, err := NewChain(0).Extract(context.Background(), Document{Bytes: plainZip.Bytes(), FileName: "a.zip", MimeType: "application/zip"})

	require.NoError(t, err)
	assert.Equal(t, TierNone, res.Tier)
	assert.True(t, res.NeedsOCR)
}

func TestGuardRecoversPanic(t *testing.T) {
	_, err := guard("boom", func() (string, error) { panic("bad xref") })
	assert.ErrorContains(t, err, "boom panic: bad xref")
}

func TestPDFParsersRejectGarbage(t *testing.T) {
	_, err := pdfPlainText([]byte("not a pdf"))
	assert.Error(t, err)
	_, err = pdfPageTexts([]byte("not a pdf"))
	assert.Error(t, err)
}
