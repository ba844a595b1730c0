package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectivesUnmarshal(t *testing.T) {
	var d Directives
	body := `{
		"resize": {"width": "320", "height": 200},
		"crop": {"width": 10, "height": 10, "left": 0, "top": 5},
		"rotate": -45.5,
		"flip": true,
		"mirror": "yes",
		"grayscale": 0,
		"compress": {"quality": 70},
		"format": "WEBP",
		"watermarkText": "hello",
		"watermarkLogoPath": "brand/logo.png"
	}`
	require.NoError(t, json.Unmarshal([]byte(body), &d))

	width, err := d.Resize.Width.Int()
	require.NoError(t, err)
	assert.Equal(t, 320, width)

	top, err := d.Crop.Top.Int()
	require.NoError(t, err)
	assert.Equal(t, 5, top)

	degrees, err := d.Rotate.Float()
	require.NoError(t, err)
	assert.Equal(t, -45.5, degrees)

	assert.True(t, d.Flip.Enabled())
	assert.True(t, d.Mirror.Enabled())
	assert.False(t, d.Grayscale.Enabled())
	assert.False(t, d.Sepia.IsSet())

	quality, err := d.Compress.Quality.Int()
	require.NoError(t, err)
	assert.Equal(t, 70, quality)
	assert.Equal(t, "WEBP", d.Format)
	assert.Equal(t, "brand/logo.png", d.WatermarkLogoPath)
}

func TestCompressDirectiveShorthands(t *testing.T) {
	var d Directives
	require.NoError(t, json.Unmarshal([]byte(`{"compress": true}`), &d))
	require.NotNil(t, d.Compress)
	assert.False(t, d.Compress.Quality.IsSet())

	d = Directives{}
	require.NoError(t, json.Unmarshal([]byte(`{"compress": 55}`), &d))
	require.NotNil(t, d.Compress)
	q, err := d.Compress.Quality.Int()
	require.NoError(t, err)
	assert.Equal(t, 55, q)
}

func TestValueRejectsObjects(t *testing.T) {
	var d Directives
	err := json.Unmarshal([]byte(`{"rotate": {"deg": 90}}`), &d)
	assert.Error(t, err)
}

func TestValueCoercion(t *testing.T) {
	_, err := Text("abc").Int()
	assert.ErrorIs(t, err, ErrInvalidDirective)

	_, err = Text("NaN").Float()
	assert.ErrorIs(t, err, ErrInvalidDirective)

	n, err := Text(" 42 ").Int()
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = Value{}.Int()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f, err := Number(12.5).Float()
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)

	assert.True(t, Bool(true).Enabled())
	assert.False(t, Bool(false).Enabled())
	assert.False(t, Text("").Enabled())
	assert.False(t, Value{}.Enabled())
}

func TestDirectivesMarshalKeepsScalars(t *testing.T) {
	d := Directives{Rotate: Number(90), Flip: Bool(true), Mirror: Text("left")}
	out, err := json.Marshal(d)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, 90.0, back["rotate"])
	assert.Equal(t, true, back["flip"])
	assert.Equal(t, "left", back["mirror"])
	assert.Nil(t, back["grayscale"])
}
