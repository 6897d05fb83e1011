package pipeline

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"
)

const (
	// ArchiveName is the download name of the bundle.
	ArchiveName = "comboconvo-pdfs.zip"
	docPrefix   = "comboconvo"
)

// DocumentName is the archive entry name for a 1-based batch number.
func DocumentName(batchNumber int) string {
	return fmt.Sprintf("%s-%d.pdf", docPrefix, batchNumber)
}

type document struct {
	batchNumber int
	data        []byte
}

// buildArchive zips docs in the order given.
func buildArchive(docs []document, modified time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, d := range docs {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     DocumentName(d.batchNumber),
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("adding %s: %w", DocumentName(d.batchNumber), err)
		}
		if _, err := w.Write(d.data); err != nil {
			return nil, fmt.Errorf("writing %s: %w", DocumentName(d.batchNumber), err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}
