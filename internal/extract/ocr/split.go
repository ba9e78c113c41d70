package ocr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// SplitPDF validates, optimizes and splits a PDF into single-page documents.
func SplitPDF(data []byte) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "ocr-split-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	source := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(source, data, 0o600); err != nil {
		return nil, fmt.Errorf("write source pdf: %w", err)
	}
	optimized := filepath.Join(dir, "optimized.pdf")
	if err := optimizePDF(source, optimized); err != nil {
		return nil, fmt.Errorf("failed to validate/optimize PDF: %w", err)
	}
	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount <= 1 {
		b, err := os.ReadFile(optimized)
		if err != nil {
			return nil, err
		}
		return [][]byte{b}, nil
	}
	if err := api.SplitFile(optimized, dir, 1, nil); err != nil {
		return nil, fmt.Errorf("failed to split PDF: %w", err)
	}

	base := strings.TrimSuffix(optimized, filepath.Ext(optimized))
	pages := make([][]byte, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		b, err := os.ReadFile(fmt.Sprintf("%s_%d.pdf", base, i))
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		pages = append(pages, b)
	}
	return pages, nil
}

func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}
