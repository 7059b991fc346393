// Package extract turns user-attached files into model-usable content.
//
// Images become base64 data URIs the frontend can both display and send as
// multimodal content. Documents (PDF, docx, pptx) become plain text for the
// prompt context. Anything else is read as UTF-8 text.
package extract

import (
	"archive/zip"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// File processes one file by extension and returns its extracted content: a
// data URI for images, plain text otherwise.
func File(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	switch ext {
	case "png", "jpg", "jpeg", "webp":
		return imageDataURI(path, ext)
	case "pdf":
		return pdfText(path)
	case "docx":
		return officeText(path, func(name string) bool {
			return name == "word/document.xml"
		})
	case "pptx":
		return officeText(path, func(name string) bool {
			return strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml")
		})
	default:
		return plainText(path)
	}
}

// imageDataURI encodes an image file as a base64 data URI.
func imageDataURI(path, ext string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return fmt.Sprintf("data:image/%s;base64,%s", ext, base64.StdEncoding.EncodeToString(data)), nil
}

// pdfText extracts the plain text of every page.
func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, reader); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return sb.String(), nil
}

// officeText extracts text from an OpenXML container (docx, pptx), reading
// the archive members selected by wantMember.
func officeText(path string, wantMember func(name string) bool) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer archive.Close()

	var sb strings.Builder
	for _, member := range archive.File {
		if !wantMember(member.Name) {
			continue
		}
		rc, err := member.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", member.Name, err)
		}
		text, err := textFromXML(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", member.Name, err)
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// textFromXML concatenates the character data inside every <t> element,
// which is where OpenXML keeps visible text in both word processing and
// presentation documents.
func textFromXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	depth := 0

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == "t" && depth > 0 {
				depth--
			}
		case xml.CharData:
			if depth > 0 {
				sb.Write(t)
			}
		}
	}
}

// plainText reads the file as UTF-8 text, replacing invalid sequences so a
// stray binary file never poisons the prompt.
func plainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}
