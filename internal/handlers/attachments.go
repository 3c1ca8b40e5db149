package handlers

import (
	"net/http"

	"github.com/ukydev/workorder-safety/internal/attachments"
	"github.com/ukydev/workorder-safety/internal/middleware"
	"github.com/ukydev/workorder-safety/internal/models"
)

// UploadAttachment stores a multipart file against the work order
func (h *WorkOrderHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if h.attachments == nil {
		http.Error(w, "Attachment storage not configured", http.StatusServiceUnavailable)
		return
	}
	s, actor, ok := h.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, attachments.MaxSize+maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "File is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	a, err := h.attachments.Upload(r.Context(), s.ID(), file, header.Size, models.AttachmentMetadata{
		FileName:    header.Filename,
		ContentType: contentType,
		Category:    r.FormValue("category"),
		Caption:     r.FormValue("caption"),
		UploadedBy:  actor.UserID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// DeleteAttachment removes an attachment
func (h *WorkOrderHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if h.attachments == nil {
		http.Error(w, "Attachment storage not configured", http.StatusServiceUnavailable)
		return
	}
	if _, ok := middleware.GetActorFromContext(r.Context()); !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	if err := h.attachments.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
