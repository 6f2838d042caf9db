package qr

import (
	"bytes"
	stdimage "image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/dkrasnov/receipt-gateway/internal/entity"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/multi/qrcode"
)

type Code struct {
	Data     string
	Format   entity.QRFormat
	Location entity.QRLocation
}

// Decode scans warped first; preprocessed is only consulted when
// warped yields no code, per the spec's buffer-order rule.
func Decode(warped, preprocessed []byte) (*Code, bool) {
	if c, ok := decodeBuffer(warped); ok {
		return c, true
	}
	return decodeBuffer(preprocessed)
}

func decodeBuffer(buf []byte) (*Code, bool) {
	if len(buf) == 0 {
		return nil, false
	}

	img, _, err := stdimage.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, false
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, false
	}

	reader := qrcode.NewQRCodeMultiReader()
	results, err := reader.DecodeMultipleWithoutHint(bmp)
	if err != nil || len(results) == 0 {
		return nil, false
	}

	chosen := results[0]
	for _, r := range results {
		if Classify(r.GetText()) == entity.QRFiscal {
			chosen = r
			break
		}
	}

	return &Code{
		Data:     chosen.GetText(),
		Format:   Classify(chosen.GetText()),
		Location: boundingBox(chosen.GetResultPoints()),
	}, true
}

// Classify implements the fiscal/url/unknown rule from the spec: a
// payload is fiscal if it carries fn= (with or without a leading &),
// or t=, s= and fp= together; a url if it starts with http(s)://;
// otherwise unknown.
func Classify(data string) entity.QRFormat {
	if strings.Contains(data, "fn=") {
		return entity.QRFiscal
	}
	if strings.Contains(data, "t=") && strings.Contains(data, "s=") && strings.Contains(data, "fp=") {
		return entity.QRFiscal
	}
	if strings.HasPrefix(data, "http://") || strings.HasPrefix(data, "https://") {
		return entity.QRUrl
	}
	return entity.QRUnknown
}

func boundingBox(points []gozxing.ResultPoint) entity.QRLocation {
	if len(points) == 0 {
		return entity.QRLocation{}
	}

	minX, minY := points[0].GetX(), points[0].GetY()
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.GetX() < minX {
			minX = p.GetX()
		}
		if p.GetX() > maxX {
			maxX = p.GetX()
		}
		if p.GetY() < minY {
			minY = p.GetY()
		}
		if p.GetY() > maxY {
			maxY = p.GetY()
		}
	}

	return entity.QRLocation{
		X:      int(minX),
		Y:      int(minY),
		Width:  int(maxX - minX),
		Height: int(maxY - minY),
	}
}
