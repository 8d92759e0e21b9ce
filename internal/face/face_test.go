package face

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerdictFor(t *testing.T) {
	assert.Equal(t, NotFound, verdictFor(0))
	assert.Equal(t, Single, verdictFor(1))
	assert.Equal(t, TooMany, verdictFor(2))
	assert.Equal(t, "too many faces", TooMany.String())
}

func TestFaceRect_ClampedToBounds(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)

	r := faceRect(50, 50, 40, bounds)
	assert.Equal(t, image.Rect(30, 30, 75, 75), r)

	edge := faceRect(5, 5, 40, bounds)
	assert.Equal(t, image.Rect(0, 0, 30, 30), edge)
}

func TestEncodeCrop(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	out, err := encodeCrop(img, image.Rect(10, 10, 42, 42))
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 32, decoded.Bounds().Dx())
	assert.Equal(t, 32, decoded.Bounds().Dy())
}

func TestNewClassifier_MissingCascade(t *testing.T) {
	_, err := NewClassifier("testdata/does-not-exist")
	assert.Error(t, err)
}
