package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/klauspost/compress/zstd"

	"github.com/mathspractice/adaptive/internal/store"
)

// importMaxBytes bounds import bodies, compressed or not.
const importMaxBytes = 64 << 20

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ── Handlers ────────────────────────────────────────────────────────────────

// exportData downloads stored data for one or all students.
// @Summary      Export data
// @Description  Exports students, sessions, interventions and progress. compress=zstd returns a zstd stream.
// @Tags         Export
// @Produce      json
// @Produce      application/zstd
// @Param        student_id  query     string  false  "Only this student"
// @Param        compress    query     string  false  "zstd"
// @Success      200         {object}  store.ExportData
// @Failure      400         {object}  map[string]string
// @Failure      404         {object}  map[string]string
// @Router       /export [get]
func (h *Handler) exportData(w http.ResponseWriter, r *http.Request) {
	compress := r.URL.Query().Get("compress")
	if compress != "" && compress != "zstd" {
		respondError(w, http.StatusBadRequest, "compress must be zstd")
		return
	}

	data, err := h.store.Export(r.Context(), r.URL.Query().Get("student_id"))
	if h.handleStoreError(w, err, "student") {
		return
	}

	if compress == "" {
		w.Header().Set("Content-Disposition", "attachment; filename=adaptive-export.json")
		respondJSON(w, http.StatusOK, data)
		return
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		h.logger.Error("failed to create zstd writer", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", "attachment; filename=adaptive-export.json.zst")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(enc).Encode(data); err != nil {
		h.logger.Error("failed to write export", "error", err)
	}
	if err := enc.Close(); err != nil {
		h.logger.Error("failed to finish export", "error", err)
	}
}

// importData loads an export. zstd bodies are detected by their magic number.
// @Summary      Import data
// @Tags         Export
// @Accept       json
// @Accept       application/zstd
// @Produce      json
// @Param        body  body      store.ExportData  true  "Exported data"
// @Success      201   {object}  store.ImportResult
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /import [post]
func (h *Handler) importData(w http.ResponseWriter, r *http.Request) {
	body := bufio.NewReader(http.MaxBytesReader(w, r.Body, importMaxBytes))

	var src io.Reader = body
	if magic, err := body.Peek(len(zstdMagic)); err == nil && bytes.Equal(magic, zstdMagic) {
		dec, err := zstd.NewReader(body)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid zstd stream")
			return
		}
		defer dec.Close()
		src = dec
	}

	var data store.ExportData
	if err := json.NewDecoder(src).Decode(&data); err != nil {
		respondError(w, http.StatusBadRequest, "invalid import data")
		return
	}

	result, err := h.store.Import(r.Context(), &data)
	if errors.Is(err, store.ErrUnsupportedVersion) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.handleStoreError(w, err, "import") {
		return
	}
	h.logger.Info("data imported",
		"students", result.Students,
		"sessions", result.Sessions,
		"interventions", result.Interventions,
	)
	respondJSON(w, http.StatusCreated, result)
}
