// Package converter turns scanned images into PDF documents.
package converter

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// ErrNoImages is returned when there is nothing to convert.
var ErrNoImages = errors.New("no images to convert")

// ImagesToPDF builds one PDF with a page per JPEG image. Each page has the
// size of its image so nothing is scaled or cropped.
func ImagesToPDF(images [][]byte) ([]byte, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	opts := gofpdf.ImageOptions{ImageType: "JPG", ReadDpi: true}

	for i, img := range images {
		name := fmt.Sprintf("scan-%d", i)
		info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img))
		if pdf.Err() {
			return nil, fmt.Errorf("failed to read image %d: %w", i+1, pdf.Error())
		}
		wd, ht := info.Extent()
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: wd, Ht: ht})
		pdf.ImageOptions(name, 0, 0, wd, ht, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
