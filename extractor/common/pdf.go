package common

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/rs/zerolog/log"
)

// PDFText is the raw text of a PDF document. Extractors only look at Text.
type PDFText struct {
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata"`
	PageCount int               `json:"page_count"`
}

var metadataKeys = []string{"Title", "Author", "Subject", "Creator", "Producer", "CreationDate"}

// ExtractPDFText reads a PDF and joins its text rows with newlines.
func ExtractPDFText(reader io.Reader) (*PDFText, error) {
	r, err := openPDF(reader)
	if err != nil {
		return nil, err
	}

	rows := extractRows(r)
	out := &PDFText{
		Text:      strings.Join(rows, "\n"),
		Metadata:  map[string]string{},
		PageCount: r.NumPage(),
	}

	info := r.Trailer().Key("Info")
	for _, key := range metadataKeys {
		if v := info.Key(key); !v.IsNull() {
			if text := strings.TrimSpace(v.Text()); text != "" {
				out.Metadata[key] = text
			}
		}
	}
	return out, nil
}

func openPDF(reader io.Reader) (*pdf.Reader, error) {
	var rAt io.ReaderAt
	var size int64

	switch v := reader.(type) {
	case io.ReaderAt:
		rAt = v
		seeker, ok := reader.(io.Seeker)
		if !ok {
			return nil, errors.New("reader is io.ReaderAt but not io.Seeker, cannot determine size")
		}
		cur, _ := seeker.Seek(0, io.SeekCurrent)
		end, err := seeker.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, err
		}
		seeker.Seek(cur, io.SeekStart)
		size = end
	default:
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(reader); err != nil {
			return nil, err
		}
		b := buf.Bytes()
		rAt = bytes.NewReader(b)
		size = int64(len(b))
	}

	return pdf.NewReader(rAt, size)
}

func extractRows(r *pdf.Reader) []string {
	numPages := r.NumPage()
	extracted := make([]string, 0, numPages*100)

	for no := 1; no <= numPages; no++ {
		page := r.Page(no)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			log.Warn().Err(err).Int("page", no).Msg("could not read page text")
			continue
		}

		for _, row := range rows {
			var builder strings.Builder
			for i, text := range row.Content {
				builder.WriteString(text.S)
				if i < len(row.Content)-1 {
					builder.WriteByte(' ')
				}
			}
			if builder.Len() > 0 {
				extracted = append(extracted, builder.String())
			}
		}
	}
	return extracted
}
