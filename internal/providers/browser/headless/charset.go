package headless

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

const (
	// prescanBytes matches the window DetermineEncoding inspects.
	prescanBytes = 1024
	// minDetectConfidence is the chardet confidence below which the guess
	// is ignored.
	minDetectConfidence = 50
)

// decodePage converts a page to UTF-8. A BOM or a Content-Type charset wins,
// then a <meta> declaration, then content that is already valid UTF-8, then
// statistical detection.
func decodePage(data []byte, contentType string) ([]byte, string, error) {
	_, name, certain := charset.DetermineEncoding(data, contentType)
	if !certain {
		name = guessCharset(data, name)
	}
	if name == "utf-8" {
		return data, name, nil
	}

	r, err := charset.NewReaderLabel(name, bytes.NewReader(data))
	if err != nil {
		return data, "utf-8", nil
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, name, err
	}
	return decoded, name, nil
}

// guessCharset handles documents without a BOM or header charset.
// prescanned is what DetermineEncoding derived from the first bytes; it is
// kept when those bytes carry a charset declaration.
func guessCharset(data []byte, prescanned string) string {
	head := data
	if len(head) > prescanBytes {
		head = head[:prescanBytes]
	}
	if bytes.Contains(bytes.ToLower(head), []byte("charset")) {
		return prescanned
	}
	if utf8.Valid(data) {
		return "utf-8"
	}
	result, err := chardet.NewHtmlDetector().DetectBest(data)
	if err != nil || result == nil || result.Confidence < minDetectConfidence {
		return prescanned
	}
	return strings.ToLower(result.Charset)
}
