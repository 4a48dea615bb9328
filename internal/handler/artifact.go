package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// downloadSticker streams the delivery sticker PDF as an attachment named
// after the tracking code.
func (h *Handler) downloadSticker(w http.ResponseWriter, r *http.Request) {
	data, filename, err := h.artifacts.Sticker(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// trackingQR returns the tracking-code QR as an inline PNG.
func (h *Handler) trackingQR(w http.ResponseWriter, r *http.Request) {
	data, err := h.artifacts.TrackingQR(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
