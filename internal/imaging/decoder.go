package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned when the input bytes cannot be decoded into an image.
var ErrInvalidImage = errors.New("invalid image data")

// SVG inputs without explicit width/height are rasterized at this size.
const (
	svgFallbackWidth  = 640
	svgFallbackHeight = 480
)

// Decode turns raw image bytes into an in-memory image. Raster formats
// (JPEG, PNG, GIF, BMP, TIFF, WebP) are handled via the registered decoders;
// SVG input is detected up front and rasterized onto a white canvas.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidImage)
	}

	if isSVGData(data) {
		return rasterizeSVG(data)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	slog.Debug("decoded raster image",
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())
	return img, nil
}

// DecodeDataURI decodes a base64-encoded image, optionally prefixed with a
// data-URI scheme marker ("data:image/png;base64,<payload>"). Everything up
// to and including the first comma is stripped before base64 decoding.
func DecodeDataURI(encoded string) (image.Image, error) {
	if idx := strings.IndexByte(encoded, ','); idx >= 0 {
		encoded = encoded[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed base64 payload: %v", ErrInvalidImage, err)
	}

	return Decode(data)
}

// isSVGData performs a lightweight detection of SVG content from raw bytes.
// Only the initial portion of the data is inspected.
func isSVGData(data []byte) bool {
	n := len(data)
	if n > 4096 {
		n = 4096
	}
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.HasPrefix(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte(`xmlns="http://www.w3.org/2000/svg"`)) ||
		bytes.Contains(header, []byte(`xmlns='http://www.w3.org/2000/svg'`))
}

// rasterizeSVG renders SVG bytes onto a white RGBA canvas. The canvas size
// comes from the SVG's explicit width/height attributes when present,
// otherwise from the fallback dimensions.
func rasterizeSVG(data []byte) (image.Image, error) {
	w, h, ok := parseSVGExplicitSize(data)
	if !ok {
		w, h = svgFallbackWidth, svgFallbackHeight
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse SVG: %v", ErrInvalidImage, err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)

	slog.Debug("rasterized SVG input", "width", w, "height", h)
	return dst, nil
}

// parseSVGExplicitSize attempts to extract width and height attributes from
// the SVG start tag. Returns ok=false when either is missing or unparseable;
// a viewBox alone is not treated as a pixel size.
func parseSVGExplicitSize(data []byte) (int, int, bool) {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	s := strings.ToLower(string(data[:n]))

	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	j := strings.Index(s[i:], ">")
	if j < 0 {
		j = len(s)
	} else {
		j = i + j
	}
	tag := s[i:j]

	w, wOK := parseNumericAttr(tag, "width")
	h, hOK := parseNumericAttr(tag, "height")
	if wOK && hOK && w > 0 && h > 0 {
		return w, h, true
	}
	return 0, 0, false
}

// parseNumericAttr extracts the leading numeric value of an attribute
// (e.g. width="123px").
func parseNumericAttr(tag, attr string) (int, bool) {
	pos := strings.Index(tag, attr+"=")
	if pos < 0 {
		return 0, false
	}

	q := strings.Index(tag[pos:], `"`)
	single := strings.Index(tag[pos:], "'")
	start := -1
	quote := byte(0)
	if q >= 0 && (single < 0 || q < single) {
		start = pos + q + 1
		quote = '"'
	} else if single >= 0 {
		start = pos + single + 1
		quote = '\''
	}
	if start < 0 || start >= len(tag) {
		return 0, false
	}

	val := tag[start:]
	if end := strings.IndexByte(val, quote); end >= 0 {
		val = val[:end]
	}

	num := 0
	found := false
	for k := 0; k < len(val); k++ {
		ch := val[k]
		if ch >= '0' && ch <= '9' {
			found = true
			num = num*10 + int(ch-'0')
		} else if found {
			break
		}
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}
