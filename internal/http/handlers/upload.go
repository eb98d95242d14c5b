package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mediaspool/transcoded/internal/models"
	"github.com/mediaspool/transcoded/internal/upload"
)

// Upload protocol headers.
const (
	HeaderUploadID  = "X-Upload-Id"
	HeaderFilename  = "X-Filename"
	HeaderSequence  = "X-Sequence-Number"
	HeaderLastChunk = "X-Last-Chunk"
)

// UploadHandler serves the chunked upload endpoints. Chunk bodies are raw
// bytes, so these routes bypass the OpenAPI layer and mount directly on chi.
type UploadHandler struct {
	table         *upload.SessionTable
	maxChunkBytes int64
	logger        *slog.Logger
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(table *upload.SessionTable, maxChunkBytes int64, logger *slog.Logger) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{
		table:         table,
		maxChunkBytes: maxChunkBytes,
		logger:        logger.With(slog.String("component", "upload_handler")),
	}
}

// Routes mounts the upload endpoints on r.
func (h *UploadHandler) Routes(r chi.Router) {
	r.Post("/api/v1/uploads/chunks", h.putChunk)
	r.Post("/api/v1/uploads/{id}/complete", h.complete)
	r.Get("/api/v1/uploads/{id}", h.status)
}

// ChunkResponse acknowledges one accepted chunk.
type ChunkResponse struct {
	UploadID string `json:"upload_id"`
	Sequence int    `json:"sequence"`
}

func (h *UploadHandler) putChunk(w http.ResponseWriter, r *http.Request) {
	seqHeader := r.Header.Get(HeaderSequence)
	if seqHeader == "" {
		writeError(w, http.StatusBadRequest, "missing "+HeaderSequence+" header")
		return
	}
	seq, err := strconv.Atoi(seqHeader)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+HeaderSequence+" header")
		return
	}

	isLast := false
	if v := r.Header.Get(HeaderLastChunk); v != "" {
		isLast, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+HeaderLastChunk+" header")
			return
		}
	}

	body := http.MaxBytesReader(w, r.Body, h.maxChunkBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "chunk exceeds maximum size")
			return
		}
		writeError(w, http.StatusBadRequest, "reading chunk body: "+err.Error())
		return
	}

	uploadID, err := h.table.PutChunk(upload.Chunk{
		UploadID:    r.Header.Get(HeaderUploadID),
		Filename:    r.Header.Get(HeaderFilename),
		ContentType: r.Header.Get("Content-Type"),
		Sequence:    seq,
		IsLast:      isLast,
		Data:        data,
	})
	if err != nil {
		// Storage failures are the server's fault; everything else is a
		// protocol violation by the client.
		if errors.Is(err, models.ErrChunkPersist) {
			h.logger.Error("persisting chunk failed",
				slog.String("upload_id", uploadID),
				slog.Int("seq", seq),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "persisting chunk failed")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, ChunkResponse{UploadID: uploadID, Sequence: seq})
}

// CompleteResponse reports the assembled source video.
type CompleteResponse struct {
	UploadID string `json:"upload_id"`
	VideoID  string `json:"video_id"`
}

func (h *UploadHandler) complete(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "id")

	videoID, err := h.table.Complete(uploadID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Upload session not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, CompleteResponse{UploadID: uploadID, VideoID: videoID})
}

// UploadStatusResponse is the wire form of an upload session's status.
type UploadStatusResponse struct {
	UploadID     string `json:"upload_id"`
	State        string `json:"state"`
	Percent      int    `json:"percent"`
	VideoID      string `json:"video_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ChunkCount   int    `json:"chunk_count"`
	TotalChunks  int    `json:"total_chunks"`
}

func (h *UploadHandler) status(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "id")

	st := h.table.Status(uploadID)
	if st.State == upload.StateUnknown {
		writeError(w, http.StatusNotFound, "Upload session not found")
		return
	}

	writeJSON(w, http.StatusOK, UploadStatusResponse{
		UploadID:     uploadID,
		State:        string(st.State),
		Percent:      st.Percent,
		VideoID:      st.VideoID,
		ErrorMessage: st.ErrorMessage,
		ChunkCount:   st.ChunkCount,
		TotalChunks:  st.TotalChunks,
	})
}
