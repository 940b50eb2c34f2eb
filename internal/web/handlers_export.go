package web

import (
	"encoding/csv"
	"fmt"
	"log"
	"net/http"

	"github.com/glucolog/glucolog/internal/core"
)

// handleExportData exports a user's measurements as a streaming CSV
// download. Rows go straight from the database to the response, so the
// export never holds more than one row in memory. A user with no data
// gets a file containing only the header row.
func (s *Server) handleExportData(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id parameter")
		return
	}

	filename := fmt.Sprintf("glucose_levels_%s.csv", sanitizeFileName(userID))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write([]string{"user_id", "timestamp", "glucose_value"}); err != nil {
		// Can't change the status code after writing, just log and return
		log.Printf("export header write: %v", err)
		return
	}

	// Batch flushing: flush every N rows
	const flushInterval = 1000
	rowCount := 0

	err := s.service.StreamLevels(r.Context(), userID, func(lvl core.Level) error {
		record := []string{
			lvl.UserID,
			core.FormatTimestamp(lvl.Timestamp),
			core.FormatGlucose(lvl.GlucoseValue),
		}
		if err := csvWriter.Write(record); err != nil {
			return err
		}

		rowCount++
		if rowCount%flushInterval == 0 {
			csvWriter.Flush()
			if err := csvWriter.Error(); err != nil {
				return err
			}
			// Flush the HTTP response for chunked transfer
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}

		return nil
	})

	csvWriter.Flush()

	// Headers are already sent, so errors can only be logged
	if err != nil && err != r.Context().Err() {
		log.Printf("export stream error: %v", err)
	}
}
