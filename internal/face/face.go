// Package face checks that a registration photo shows exactly one face.
package face

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// Verdict is the outcome of a face check
type Verdict int

const (
	// NotFound means no face was detected
	NotFound Verdict = iota
	// Single means exactly one face was detected
	Single
	// TooMany means more than one face was detected
	TooMany
)

func (v Verdict) String() string {
	switch v {
	case Single:
		return "single face"
	case TooMany:
		return "too many faces"
	default:
		return "face not found"
	}
}

// Result holds the verdict and, for a single face, the cropped JPEG
type Result struct {
	Verdict Verdict
	Face    []byte
}

// minQuality drops weak detections
const minQuality = 5.0

// cropPadding extends the crop beyond the detected square
const cropPadding = 5

// Classifier detects faces with a pigo cascade
type Classifier struct {
	cascade *pigo.Pigo
}

// NewClassifier loads the pigo face cascade from path
func NewClassifier(cascadePath string) (*Classifier, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read face cascade: %w", err)
	}
	cascade, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack face cascade: %w", err)
	}
	return &Classifier{cascade: cascade}, nil
}

// Classify detects faces in img and crops the face when exactly one is found
func (c *Classifier) Classify(img []byte) (Result, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return Result{}, fmt.Errorf("failed to decode image: %w", err)
	}

	nrgba := pigo.ImgToNRGBA(src)
	cols, rows := nrgba.Bounds().Max.X, nrgba.Bounds().Max.Y

	params := pigo.CascadeParams{
		MinSize:     30,
		MaxSize:     max(cols, rows),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(nrgba),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := c.cascade.RunCascade(params, 0.0)
	dets = c.cascade.ClusterDetections(dets, 0.2)

	var faces []image.Rectangle
	for _, det := range dets {
		if det.Q < minQuality {
			continue
		}
		faces = append(faces, faceRect(det.Row, det.Col, det.Scale, nrgba.Bounds()))
	}

	verdict := verdictFor(len(faces))
	if verdict != Single {
		return Result{Verdict: verdict}, nil
	}

	cropped, err := encodeCrop(nrgba, faces[0])
	if err != nil {
		return Result{}, err
	}
	return Result{Verdict: Single, Face: cropped}, nil
}

func verdictFor(n int) Verdict {
	switch {
	case n == 0:
		return NotFound
	case n == 1:
		return Single
	default:
		return TooMany
	}
}

// faceRect converts a pigo detection (center and side) into a padded rectangle inside bounds
func faceRect(row, col, scale int, bounds image.Rectangle) image.Rectangle {
	half := scale / 2
	r := image.Rect(col-half, row-half, col+half+cropPadding, row+half+cropPadding)
	return r.Intersect(bounds)
}

func encodeCrop(img *image.NRGBA, r image.Rectangle) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img.SubImage(r), &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode face: %w", err)
	}
	return buf.Bytes(), nil
}
