package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"llamarag/types"
)

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// ValidatePDF rejects files pdfcpu cannot parse and returns the page count.
func ValidatePDF(path string) (int, error) {
	if err := api.ValidateFile(path, pdfConfig()); err != nil {
		return 0, fmt.Errorf("%w: invalid pdf %s: %v", types.ErrUnsupportedFile, filepath.Base(path), err)
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pages of %s: %w", filepath.Base(path), err)
	}
	return pages, nil
}

// ExtractPDFText returns the plain text of every page in order.
func ExtractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// PDFToText validates path and writes its text next to it as <name>.txt.
// Returns the path of the text file and the page count of the PDF.
func PDFToText(path string) (string, int, error) {
	pages, err := ValidatePDF(path)
	if err != nil {
		return "", 0, err
	}
	text, err := ExtractPDFText(path)
	if err != nil {
		return "", 0, err
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".txt"
	if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
		return "", 0, fmt.Errorf("write extracted text: %w", err)
	}
	return out, pages, nil
}

// IsSupported reports whether name has an extension the ingest path reads.
func IsSupported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".pdf":
		return true
	}
	return false
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
