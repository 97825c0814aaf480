package codec

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compare/internal/domain"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.SetGray(1, 1, color.Gray{Y: 200})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		b := make([]byte, 1+rng.Intn(512))
		rng.Read(b)

		got, err := Decode(Encode(b))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(b, got))
	}
}

func TestDecode_StripsDataURIAndWhitespace(t *testing.T) {
	raw := []byte("hello image")
	got, err := Decode("  data:image/png;base64," + base64.StdEncoding.EncodeToString(raw) + "\n")
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestDecode_RejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "   ", "not base64!!", "abc"} {
		_, err := Decode(in)
		assert.ErrorIs(t, err, domain.ErrInvalidBase64, in)
	}
}

func TestMaterialize_WritesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	path, cleanup, err := Materialize(dir, []byte("payload"), ".png")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, ".png", filepath.Ext(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(raw))

	cleanup()
	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestMaterialize_BadDir(t *testing.T) {
	_, cleanup, err := Materialize("/dev/null/nope", []byte("x"), ".png")
	require.Error(t, err)
	cleanup()
}

func TestMaterialize_ConcurrentNamesAreUnique(t *testing.T) {
	const n = 10000
	dir := t.TempDir()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		seen  = make(map[string]struct{}, n)
		fails int
	)
	sem := make(chan struct{}, 64)
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			path, _, err := Materialize(dir, []byte{byte(i)}, ".png")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fails++
				return
			}
			seen[path] = struct{}{}
		}(i)
	}
	wg.Wait()

	require.Zero(t, fails)
	assert.Len(t, seen, n)
}

func TestCheckImage(t *testing.T) {
	assert.NoError(t, CheckImage(pngBytes(t)))
	assert.ErrorIs(t, CheckImage([]byte("definitely not an image")), domain.ErrUnreadableImage)

	path, cleanup, err := Materialize(t.TempDir(), pngBytes(t), ".png")
	require.NoError(t, err)
	defer cleanup()
	assert.NoError(t, CheckImageFile(path))
	assert.ErrorIs(t, CheckImageFile(filepath.Join(t.TempDir(), "missing.png")), domain.ErrUnreadableImage)
}
