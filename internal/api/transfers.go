package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pidrive-backend/internal/auth"
	"pidrive-backend/internal/drive"
	"pidrive-backend/internal/fault"
	"pidrive-backend/internal/models"
)

// TransferHandler moves file payloads between the client and the
// engine. Uploaded parts are spooled to local temp files first so the
// quota gate sees exact sizes before any remote byte moves.
type TransferHandler struct {
	engine     *drive.Engine
	jwtManager *auth.JWTManager
	spoolDir   string
}

func NewTransferHandler(engine *drive.Engine, jwtManager *auth.JWTManager, spoolDir string) *TransferHandler {
	return &TransferHandler{
		engine:     engine,
		jwtManager: jwtManager,
		spoolDir:   spoolDir,
	}
}

type uploadedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type uploadResponse struct {
	Job   models.JobStatus `json:"job"`
	Files []uploadedFile   `json:"files"`
}

// Upload receives a multipart batch, spools every file part in order,
// and hands the batch to the engine. The response arrives once the
// whole batch has landed; progress streams over /api/progress while
// the request is in flight.
func (h *TransferHandler) Upload(w http.ResponseWriter, r *http.Request) {
	username, password, err := requestCredentials(r, h.jwtManager)
	if err != nil {
		writeError(w, err)
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeBadRequest(w, "expected a multipart body")
		return
	}

	sources, cleanup, err := h.spoolParts(mr)
	defer cleanup()
	if err != nil {
		writeError(w, err)
		return
	}
	if len(sources) == 0 {
		writeBadRequest(w, "no files in request")
		return
	}

	paths := make([]string, len(sources))
	for i, src := range sources {
		paths[i] = src.Path
	}
	sizes, err := h.engine.SourceSizes(paths)
	if err != nil {
		writeError(w, err)
		return
	}

	job, err := h.engine.Upload(r.Context(), username, password, parseSegments(r.URL.Query().Get("path")), sources)
	if err != nil {
		writeError(w, err)
		return
	}

	<-job.Done()
	if err := job.Err(); err != nil {
		writeError(w, err)
		return
	}

	files := make([]uploadedFile, len(sources))
	for i, src := range sources {
		files[i] = uploadedFile{Name: src.Name, Size: sizes[i]}
	}
	writeJSON(w, http.StatusCreated, uploadResponse{Job: job.Status(), Files: files})
}

// spoolParts drains the multipart stream into temp files, in part
// order. The returned cleanup removes whatever was spooled and is safe
// to call regardless of the error.
func (h *TransferHandler) spoolParts(mr *multipart.Reader) ([]drive.LocalSource, func(), error) {
	var sources []drive.LocalSource
	cleanup := func() {
		for _, src := range sources {
			os.Remove(src.Path)
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sources, cleanup, fault.Wrap(fault.CodeSourceUnavailable, "malformed multipart body", err)
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}
		name := filepath.Base(part.FileName())

		tmp, err := os.CreateTemp(h.spoolDir, "upload-*")
		if err != nil {
			part.Close()
			return sources, cleanup, fault.Wrap(fault.CodeWrite, "failed to spool upload", err)
		}
		if _, err := io.Copy(tmp, part); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			part.Close()
			return sources, cleanup, fault.Wrap(fault.CodeSourceUnavailable, "failed to receive "+name, err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			part.Close()
			return sources, cleanup, fault.Wrap(fault.CodeWrite, "failed to spool upload", err)
		}
		part.Close()
		sources = append(sources, drive.LocalSource{Name: name, Path: tmp.Name()})
	}
	return sources, cleanup, nil
}

// Download streams one file as-is, or several entries (or a folder) as
// a zip bundle. Headers carry the job ID so the client can follow the
// bundling progress on the event feed.
func (h *TransferHandler) Download(w http.ResponseWriter, r *http.Request) {
	username, password, err := requestCredentials(r, h.jwtManager)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	dl, err := h.engine.StartDownload(r.Context(), username, password, parseSegments(q.Get("path")), q["names"])
	if err != nil {
		writeError(w, err)
		return
	}
	defer dl.Close()

	if dl.Archive {
		w.Header().Set("Content-Type", "application/zip")
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Name))
	w.Header().Set("X-Transfer-Job", dl.Job.ID)

	dl.Stream(w)
}

func (h *TransferHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.engine.Jobs()
	statuses := make([]models.JobStatus, 0, len(jobs))
	for _, j := range jobs {
		statuses = append(statuses, j.Status())
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *TransferHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := h.engine.Job(id)
	if !ok {
		writeError(w, fault.Newf(fault.CodeNotFound, "no such transfer: %s", id))
		return
	}
	writeJSON(w, http.StatusOK, job.Status())
}

func (h *TransferHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.engine.Job(id); !ok {
		writeError(w, fault.Newf(fault.CodeNotFound, "no such transfer: %s", id))
		return
	}
	if !h.engine.RemoveJob(id) {
		writeJSON(w, http.StatusConflict, models.ErrorResponse{
			Error:   "CONFLICT",
			Message: "transfer still running",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
