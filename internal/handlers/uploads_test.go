package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/JesusBorbon/chat-seguro/internal/history"
)

func newUploadHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	gate, err := NewGate(ModeSecret, "Linux")
	require.NoError(t, err)
	hub := NewHub(gate, history.New(10), nil, "")
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "uploads"), 0755))
	return New(hub, gate, dataDir, 8), dataDir
}

func multipartPNG(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var imgBuf bytes.Buffer
	require.NoError(t, png.Encode(&imgBuf, img))

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("imagen", "gato.png")
	require.NoError(t, err)
	_, err = part.Write(imgBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestUploadPNG(t *testing.T) {
	h, dataDir := newUploadHandler(t)
	body, contentType := multipartPNG(t)

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.Upload(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		URLFull  string `json:"urlFull"`
		URLThumb string `json:"urlThumb"`
		Fecha    string `json:"fecha"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.URLFull, "/uploads/"))
	require.True(t, strings.HasPrefix(resp.URLThumb, "/uploads/"))
	require.Contains(t, resp.URLThumb, "_thumb")
	require.NotEmpty(t, resp.Fecha)

	// Both files land on disk; the thumbnail is a decodable PNG.
	full := filepath.Join(dataDir, "uploads", filepath.Base(resp.URLFull))
	thumb := filepath.Join(dataDir, "uploads", filepath.Base(resp.URLThumb))
	require.FileExists(t, full)
	require.FileExists(t, thumb)

	f, err := os.Open(thumb)
	require.NoError(t, err)
	defer f.Close()
	timg, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, thumbWidth, timg.Bounds().Dx())
}

func TestUploadRejectsMissingFile(t *testing.T) {
	h, _ := newUploadHandler(t)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("otra", "cosa"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.Upload(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "error")
}

func TestUploadRejectsNonImage(t *testing.T) {
	h, _ := newUploadHandler(t)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("imagen", "nota.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("esto no es una imagen"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.Upload(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServeUploadSanitizesFilename(t *testing.T) {
	h, dataDir := newUploadHandler(t)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "uploads", "ok.png"), []byte("png"), 0644))

	// Routed through chi so URLParam resolves like production.
	router := chi.NewRouter()
	router.Get("/uploads/{filename}", h.ServeUpload)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/uploads/..%2f..%2fsecret", nil)
	router.ServeHTTP(rr, req)
	require.NotEqual(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/uploads/ok.png", nil)
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
