package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compare/internal/config"
	"compare/internal/domain"
	"compare/internal/infra/pdfrender/pdftest"
)

type stubComparator struct {
	calls atomic.Int32
	fail  bool
}

func (s *stubComparator) DetectDifferences(string, string) ([]byte, []byte, error) {
	s.calls.Add(1)
	if s.fail {
		return nil, nil, domain.ErrNoResult
	}
	return []byte("A"), []byte("C"), nil
}

func (s *stubComparator) PixelPairwise(string, string) ([]byte, error) {
	s.calls.Add(1)
	if s.fail {
		return nil, nil
	}
	return []byte("C"), nil
}

func (s *stubComparator) AlignWithPhaseCorrelation(string, string) ([]byte, domain.Shift, error) {
	s.calls.Add(1)
	if s.fail {
		return nil, domain.Shift{}, domain.ErrNoResult
	}
	return []byte("A"), domain.Shift{}, nil
}

func minimalConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Scratch.Dir = t.TempDir()
	cfg.Worker.Size = 2
	return cfg
}

func newApp(t *testing.T, cmp *stubComparator) *fiber.App {
	t.Helper()
	return New(Deps{Config: minimalConfig(t), Comparator: cmp})
}

func pngB64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func postJSON(t *testing.T, app *fiber.App, target string, body any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestAlgorithms_MethodOne(t *testing.T) {
	app := newApp(t, &stubComparator{})
	img := pngB64(t)

	for _, prefix := range []string{"", "/v1"} {
		status, body := postJSON(t, app, prefix+"/algorithms?method=one", map[string]string{"img1": img, "img2": img})
		require.Equal(t, http.StatusOK, status)
		images := body["images"].(map[string]any)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("A")), images["aligned"])
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("C")), images["changed"])
	}
}

func TestAlgorithms_FormBody(t *testing.T) {
	app := newApp(t, &stubComparator{})
	img := pngB64(t)

	form := url.Values{"img1": {img}, "img2": {img}}
	req := httptest.NewRequest(http.MethodPost, "/algorithms?method=two", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	status, body := do(t, app, req)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"changed": base64.StdEncoding.EncodeToString([]byte("C"))}, body["images"])
}

func TestAlgorithms_Errors(t *testing.T) {
	img := pngB64(t)
	junk := base64.StdEncoding.EncodeToString([]byte("no pixels here"))

	tests := []struct {
		name   string
		target string
		body   map[string]string
		fail   bool
		status int
		msg    string
	}{
		{"unknown method", "/algorithms?method=seven", map[string]string{"img1": img, "img2": img}, false, 400, "unknown method"},
		{"absent method", "/algorithms", map[string]string{"img1": img, "img2": img}, false, 400, "unknown method"},
		{"missing image", "/algorithms?method=one", map[string]string{"img1": img}, false, 400, "Both images are required"},
		{"unreadable", "/algorithms?method=one", map[string]string{"img1": junk, "img2": junk}, false, 400, "unreadable image"},
		{"path variant disabled", "/algorithms?method=one", map[string]string{"img1_path": "a.png", "img2_path": "b.png"}, false, 400, "path inputs are disabled"},
		{"no matches", "/algorithms?method=one", map[string]string{"img1": img, "img2": img}, true, 400, "insufficient matches for alignment"},
		{"no difference", "/algorithms?method=two", map[string]string{"img1": img, "img2": img}, true, 400, "failed to compute difference"},
		{"no alignment", "/algorithms?method=three", map[string]string{"img1": img, "img2": img}, true, 400, "insufficient matches for alignment"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmp := &stubComparator{fail: tc.fail}
			status, body := postJSON(t, newApp(t, cmp), tc.target, tc.body)
			assert.Equal(t, tc.status, status)
			assert.Contains(t, body["error"], tc.msg)
			if !tc.fail {
				assert.Zero(t, cmp.calls.Load())
			}
		})
	}
}

func TestAlgorithms_MalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/algorithms?method=one", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	status, body := do(t, newApp(t, &stubComparator{}), req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "invalid request body")
}

func TestConvertPDF(t *testing.T) {
	app := newApp(t, &stubComparator{})
	pdf := base64.StdEncoding.EncodeToString(pdftest.Build(2))

	status, body := postJSON(t, app, "/convert-pdf", map[string]any{"pdf": pdf})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["image"])

	status, body = postJSON(t, app, "/convert-pdf", map[string]any{"pdf": pdf, "page": "2"})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["image"])

	status, body = postJSON(t, app, "/convert-pdf", map[string]any{"pdf": pdf, "page": "second"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "invalid page")

	status, body = postJSON(t, app, "/convert-pdf", map[string]any{"pdf": pdf, "page": 3})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Page number 3 is out of range. The PDF has 2 pages.", body["error"])

	status, body = postJSON(t, app, "/convert-pdf", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "PDF data is required")

	status, body = postJSON(t, app, "/v1/convert-pdf", map[string]any{"pdf": base64.StdEncoding.EncodeToString([]byte("%PDF broken"))})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body["error"], "Error processing PDF:")
}

func TestConvertPDF_Multipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("pdf", base64.StdEncoding.EncodeToString(pdftest.Build(1))))
	require.NoError(t, mw.WriteField("page", "1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/convert-pdf", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	status, body := do(t, newApp(t, &stubComparator{}), req)
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["image"])
}

func TestConvertPDFPages(t *testing.T) {
	status, body := postJSON(t, newApp(t, &stubComparator{}), "/convert-pdf/pages",
		map[string]any{"pdf": base64.StdEncoding.EncodeToString(pdftest.Build(3))})
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, body["images"], 3)
}

func TestWorkerStatsAndJSON404(t *testing.T) {
	app := newApp(t, &stubComparator{})

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/v1/workers/stats", nil))
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["capacity"])
	assert.Equal(t, true, body["enabled"])

	status, body = do(t, app, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not Found", body["error"])
}

func TestNew_DefaultsBuildWorkingApp(t *testing.T) {
	app := New(Deps{Config: minimalConfig(t)})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ops/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDefaultRenderer_HonoursBackend(t *testing.T) {
	cfg := minimalConfig(t)

	cfg.PDF.Backend = "fitz"
	assert.Equal(t, "fitz", defaultRenderer(cfg).BackendName())

	cfg.PDF.Backend = "pdfium"
	cfg.PDF.PdfiumMinIdle, cfg.PDF.PdfiumMaxIdle, cfg.PDF.PdfiumMaxTotal = 1, 1, 1
	assert.Equal(t, "pdfium", defaultRenderer(cfg).BackendName())

	cfg.PDF.Backend = "ghostscript"
	assert.Equal(t, "fitz", defaultRenderer(cfg).BackendName())
}
