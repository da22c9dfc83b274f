package handlers

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nfnt/resize"

	"github.com/JesusBorbon/chat-seguro/internal/metrics"
)

const (
	// thumbBlock is the width the image is crushed down to before scaling
	// back up; smaller values pixelate harder.
	thumbBlock = 24
	thumbWidth = 240
)

// Upload accepts one PNG or JPEG in the multipart field "imagen", stores the
// full-size file plus a pixelated thumbnail, and returns both URLs. The
// x-chat-key check happens in middleware before this runs. Uploading never
// touches chat state — the client follows up with a media mensaje event.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		errResp(w, http.StatusBadRequest, fmt.Sprintf("imagen demasiado grande (máx %dMB)", h.maxUploadMB))
		return
	}

	file, _, err := r.FormFile("imagen")
	if err != nil {
		errResp(w, http.StatusBadRequest, "falta el archivo imagen")
		return
	}
	defer file.Close()

	// Detect MIME type from first 512 bytes
	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	mimeType := http.DetectContentType(buf[:n])

	var ext string
	switch mimeType {
	case "image/png":
		ext = ".png"
	case "image/jpeg":
		ext = ".jpg"
	default:
		errResp(w, http.StatusBadRequest, "solo se permiten imágenes PNG o JPEG")
		return
	}

	// Seek back to start
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		errResp(w, http.StatusInternalServerError, "no se pudo leer la imagen")
		return
	}

	img, _, err := image.Decode(file)
	if err != nil {
		errResp(w, http.StatusBadRequest, "imagen inválida")
		return
	}

	id := newID()
	fullName := id + ext
	thumbName := id + "_thumb" + ext
	uploadsDir := filepath.Join(h.dataDir, "uploads")

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		errResp(w, http.StatusInternalServerError, "no se pudo leer la imagen")
		return
	}
	if err := saveStream(filepath.Join(uploadsDir, fullName), file); err != nil {
		errResp(w, http.StatusInternalServerError, "no se pudo guardar la imagen")
		return
	}

	if err := saveImage(filepath.Join(uploadsDir, thumbName), pixelate(img), mimeType); err != nil {
		os.Remove(filepath.Join(uploadsDir, fullName))
		errResp(w, http.StatusInternalServerError, "no se pudo generar la miniatura")
		return
	}

	metrics.UploadsTotal.Inc()
	ok(w, map[string]string{
		"urlFull":  "/uploads/" + fullName,
		"urlThumb": "/uploads/" + thumbName,
		"fecha":    time.Now().Format("15:04:05"),
	})
}

// pixelate crushes the image down to thumbBlock columns and blows it back up
// with nearest-neighbour sampling, so the thumbnail leaks as little of the
// original as a handful of colour blocks.
func pixelate(img image.Image) image.Image {
	small := resize.Resize(thumbBlock, 0, img, resize.NearestNeighbor)
	return resize.Resize(thumbWidth, 0, small, resize.NearestNeighbor)
}

func saveStream(path string, src io.Reader) error {
	dest, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dest.Close()
	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func saveImage(path string, img image.Image, mimeType string) error {
	dest, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dest.Close()
	if mimeType == "image/png" {
		err = png.Encode(dest, img)
	} else {
		err = jpeg.Encode(dest, img, &jpeg.Options{Quality: 80})
	}
	if err != nil {
		os.Remove(path)
	}
	return err
}

func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	// Sanitize
	filename = filepath.Base(filename)
	if strings.Contains(filename, "..") {
		http.Error(w, "invalid filename", http.StatusBadRequest)
		return
	}
	path := filepath.Join(h.dataDir, "uploads", filename)

	// Only validated PNG/JPEG ever lands here, so inline display is safe;
	// nosniff keeps browsers from second-guessing the type.
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, path)
}
