package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ledongthuc/pdf"
)

// ErrMalformed is returned when a document cannot be parsed in its declared format.
var ErrMalformed = errors.New("malformed document")

func extractText(_ context.Context, data []byte) (string, error) {
	return strings.ToValidUTF8(string(data), ""), nil
}

func extractHTML(_ context.Context, data []byte) (string, error) {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(string(data))
	if err != nil {
		return "", fmt.Errorf("%w: html: %w", ErrMalformed, err)
	}
	return strings.TrimSpace(markdown), nil
}

func extractPDF(_ context.Context, data []byte) (text string, err error) {
	// The pdf reader panics on some corrupt inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: pdf: %v", ErrMalformed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %w", ErrMalformed, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %w", ErrMalformed, err)
	}
	var buf strings.Builder
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("%w: pdf: %w", ErrMalformed, err)
	}
	return strings.ToValidUTF8(buf.String(), ""), nil
}

const docxBody = "word/document.xml"

func extractDocx(ctx context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: docx: %w", ErrMalformed, err)
	}
	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: docx: %w", ErrMalformed, err)
		}
		defer rc.Close()
		return docxText(ctx, rc)
	}
	return "", fmt.Errorf("%w: docx: missing %s", ErrMalformed, docxBody)
}

// docxText collects w:t runs, turning paragraphs and breaks into newlines.
func docxText(ctx context.Context, r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		buf    strings.Builder
		inText bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: docx: %w", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				buf.WriteByte('\t')
			case "br", "cr":
				buf.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				buf.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		}
	}
	return strings.TrimSpace(buf.String()), nil
}
