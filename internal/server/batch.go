package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Koooper/EAS-Webapp/internal/batch"
)

// batchError maps runner errors to HTTP statuses
func batchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, batch.ErrJobNotFound), errors.Is(err, batch.ErrResultNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, batch.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// readBatch parses the alert list from a multipart "file" upload (by
// extension), a text/csv body, or a JSON body
func (h *HTTPServer) readBatch(w http.ResponseWriter, r *http.Request) ([]batch.Alert, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit())
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("no file provided")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".csv":
			return batch.ParseCSV(bytes.NewReader(data))
		case ".json":
			return batch.ParseJSON(data)
		default:
			return nil, errors.New("unsupported file format, use CSV or JSON")
		}

	case "text/csv":
		return batch.ParseCSV(r.Body)

	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		return batch.ParseJSON(data)
	}
}

func (h *HTTPServer) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.readBatch(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse error: "+err.Error())
		return
	}

	job, err := h.batch.Create(alerts)
	if err != nil {
		batchError(w, err)
		return
	}

	if start, _ := strconv.ParseBool(r.URL.Query().Get("start")); start {
		if err := h.batch.Start(job.ID); err != nil {
			batchError(w, err)
			return
		}
		job, _ = h.batch.Get(job.ID)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"job_id":      job.ID,
		"alert_count": job.TotalCount,
		"status":      job.Status,
	})
}

func (h *HTTPServer) handleBatchList(w http.ResponseWriter, r *http.Request) {
	jobs := h.batch.List()
	summaries := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, map[string]any{
			"job_id":       job.ID,
			"status":       job.Status,
			"progress":     job.Progress,
			"total_count":  job.TotalCount,
			"succeeded":    len(job.Results),
			"failed":       len(job.Errors),
			"created_at":   job.CreatedAt,
			"completed_at": job.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": summaries})
}

func (h *HTTPServer) handleBatchTemplate(w http.ResponseWriter, r *http.Request) {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="batch_template.csv"`)
		io.WriteString(w, batch.CSVTemplate())
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="batch_template.json"`)
		io.WriteString(w, batch.JSONTemplate())
	default:
		writeError(w, http.StatusBadRequest, "format must be csv or json")
	}
}

func (h *HTTPServer) handleBatchGet(w http.ResponseWriter, r *http.Request) {
	job, err := h.batch.Get(r.PathValue("id"))
	if err != nil {
		batchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *HTTPServer) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.batch.Delete(r.PathValue("id")); err != nil {
		batchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *HTTPServer) handleBatchStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.batch.Start(id); err != nil {
		batchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": id, "status": batch.StatusProcessing})
}

func (h *HTTPServer) handleBatchCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.batch.Cancel(id); err != nil {
		batchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": id, "status": batch.StatusCancelled})
}

func (h *HTTPServer) handleBatchResults(w http.ResponseWriter, r *http.Request) {
	job, err := h.batch.Get(r.PathValue("id"))
	if err != nil {
		batchError(w, err)
		return
	}

	offset, limit := 0, 100
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	results := job.Results
	if offset > len(results) {
		offset = len(results)
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"job_id":        job.ID,
		"status":        job.Status,
		"total_results": len(results),
		"offset":        offset,
		"limit":         limit,
		"results":       results[offset:end],
		"errors":        job.Errors,
	})
}

func (h *HTTPServer) handleBatchAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}

	wav, err := h.batch.Audio(r.Context(), id, index)
	if err != nil {
		batchError(w, err)
		return
	}

	out, format, status, err := h.convert(r.Context(), wav, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeAudio(w, format, fmt.Sprintf("alert_%s_%d.%s", id, index, format), out)
}

