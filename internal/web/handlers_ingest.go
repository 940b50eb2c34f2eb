package web

import (
	"net/http"

	"github.com/glucolog/glucolog/internal/core"
	"github.com/glucolog/glucolog/internal/logging"
)

// handleLoadData ingests a CSV file uploaded as multipart form data.
// The file is streamed straight into the parser, so memory stays flat
// regardless of file size.
func (s *Server) handleLoadData(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	// Optional override for files whose rows carry no user column
	userID := r.FormValue("user_id")

	result, err := s.service.IngestCSV(r.Context(), core.IngestOptions{
		FileName: header.Filename,
		UserID:   userID,
		Reader:   file,
	})
	if err != nil {
		if core.IsUserFacing(err) {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	logging.WithFields(r.Context(),
		"ingest_id", result.IngestID,
		"file", result.FileName,
	).Info("csv ingested",
		"rows", result.TotalRows,
		"inserted", result.Inserted,
		"failed", len(result.FailedRows),
	)

	writeJSON(w, toLoadDataResponse(result))
}

// handleListIngests returns recent ingest runs, newest first.
func (s *Server) handleListIngests(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", core.DefaultIngestHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.service.RecentIngests(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, runs)
}
