package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	mimePDF      = "application/pdf"
	mimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeMarkdown = "text/markdown"
	mimeText     = "text/plain"
)

type docKind string

const (
	kindPDF         docKind = "pdf"
	kindDOCX        docKind = "docx"
	kindImage       docKind = "image"
	kindMarkdown    docKind = "markdown"
	kindText        docKind = "text"
	kindUnsupported docKind = "unsupported"
)

func detectKind(mimeType, fileName string, data []byte) docKind {
	switch normalized := normalizeMimeType(mimeType, fileName, data); {
	case normalized == mimePDF:
		return kindPDF
	case normalized == mimeDOCX:
		return kindDOCX
	case strings.HasPrefix(normalized, "image/"):
		return kindImage
	case normalized == mimeMarkdown:
		return kindMarkdown
	case strings.HasPrefix(normalized, "text/"):
		return kindText
	default:
		return kindUnsupported
	}
}

// normalizeMimeType trusts a specific declared type, then the file extension,
// then content sniffing.
func normalizeMimeType(mimeType string, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch clean {
	case "", "application/octet-stream", "binary/octet-stream":
	case "application/zip":
		if mapped := mapOOXMLFromZip(data); mapped != "" {
			return mapped
		}
		if byExt := mimeFromExt(fileName); byExt == mimeDOCX {
			return byExt
		}
		return clean
	case "text/x-markdown":
		return mimeMarkdown
	default:
		return clean
	}

	if byExt := mimeFromExt(fileName); byExt != "" {
		return byExt
	}
	if mapped := mapOOXMLFromZip(data); mapped != "" {
		return mapped
	}
	if len(data) == 0 {
		return clean
	}
	sniffed := http.DetectContentType(data)
	return strings.ToLower(strings.TrimSpace(strings.Split(sniffed, ";")[0]))
}

func mimeFromExt(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return mimePDF
	case ".docx":
		return mimeDOCX
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".md", ".markdown":
		return mimeMarkdown
	case ".txt":
		return mimeText
	default:
		return ""
	}
}

func detectImageMime(mimeType string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if strings.HasPrefix(clean, "image/") {
		return clean
	}
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return "image/png"
}

func mapOOXMLFromZip(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	readerAt := bytes.NewReader(data)
	zr, err := zip.NewReader(readerAt, int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		switch name {
		case "word/document.xml":
			return mimeDOCX
		case "xl/workbook.xml":
			return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		case "ppt/presentation.xml":
			return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
		}
	}
	return ""
}

// guard turns a parser panic into an error. The pdf reader panics on some
// malformed inputs.
func guard[T any](name string, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panic: %v", name, r)
		}
	}()
	return fn()
}

// pdfPageTexts reads each page row by row so that table-like layouts keep
// their line structure.
func pdfPageTexts(data []byte) ([]PageArtifact, error) {
	return guard("pdf pages", func() ([]PageArtifact, error) {
		r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, err
		}
		var pages []PageArtifact
		for i := 1; i <= r.NumPage(); i++ {
			page := r.Page(i)
			if page.V.IsNull() {
				continue
			}
			text := pageRowsText(page)
			if text == "" {
				if plain, err := page.GetPlainText(nil); err == nil {
					text = strings.TrimSpace(plain)
				}
			}
			pages = append(pages, PageArtifact{Page: i, Text: text})
		}
		return pages, nil
	})
}

func pageRowsText(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, row := range rows {
		var line strings.Builder
		for _, word := range row.Content {
			if line.Len() > 0 && !strings.HasSuffix(line.String(), " ") && !strings.HasPrefix(word.S, " ") {
				line.WriteByte(' ')
			}
			line.WriteString(word.S)
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}

func pdfPlainText(data []byte) (string, error) {
	return guard("pdf plain", func() (string, error) {
		r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return "", err
		}
		plain, err := r.GetPlainText()
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, plain); err != nil {
			return "", err
		}
		return buf.String(), nil
	})
}

func docxLibraryText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	return guard("docx", func() (string, error) {
		r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return "", err
		}
		defer r.Close()
		return stripDocxXML(r.Editable().GetContent()), nil
	})
}

func docxXMLText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return stripDocxXML(string(raw)), nil
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
