package drive

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"pidrive-backend/internal/fault"
	"pidrive-backend/internal/logging"
	"pidrive-backend/internal/metrics"
	"pidrive-backend/internal/remotefs"
	"pidrive-backend/internal/sandbox"
	"pidrive-backend/internal/session"
)

// LocalSource is one file staged on this process's disk, waiting to be
// pushed into the user's tree.
type LocalSource struct {
	Name string
	Path string
}

// SourceSizes stats each local source and returns its byte size, in
// order. Any unreadable source fails the whole batch.
func (e *Engine) SourceSizes(paths []string) ([]int64, error) {
	sizes := make([]int64, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fault.Wrap(fault.CodeSourceUnavailable, "cannot read source "+p, err)
		}
		if info.IsDir() {
			return nil, fault.Newf(fault.CodeSourceUnavailable, "source is a directory: %s", p)
		}
		sizes = append(sizes, info.Size())
	}
	return sizes, nil
}

// Upload pushes a batch of local sources into the destination folder.
// The quota gate runs once against the batch total before any bytes
// move: either every file is allowed to start, or none does. The
// returned job finishes in the background while the user's session
// stays held; progress arrives per completed file, in file order.
func (e *Engine) Upload(ctx context.Context, username, password string, dest []string, sources []LocalSource) (*Job, error) {
	if len(sources) == 0 {
		return nil, fault.New(fault.CodeSourceUnavailable, "no sources to upload")
	}

	sizes := make([]int64, len(sources))
	var total int64
	for i, src := range sources {
		if err := sandbox.CheckName(src.Name); err != nil {
			return nil, err
		}
		info, err := os.Stat(src.Path)
		if err != nil {
			return nil, fault.Wrap(fault.CodeSourceUnavailable, "cannot read source "+src.Name, err)
		}
		if info.IsDir() {
			return nil, fault.Newf(fault.CodeSourceUnavailable, "source is a directory: %s", src.Name)
		}
		sizes[i] = info.Size()
		total += info.Size()
	}

	s, err := e.sessions.Acquire(ctx, username, password)
	if err != nil {
		return nil, err
	}

	destPath, err := sandbox.Resolve(s.Root, dest)
	if err != nil {
		s.Release()
		return nil, err
	}
	if err := statFolder(s.Client, destPath, dest); err != nil {
		s.Release()
		return nil, err
	}

	ok, err := checkUpload(s.Client, s.Root, s.Account.StorageLimitBytes(), total)
	if err != nil {
		s.Release()
		return nil, err
	}
	if !ok {
		s.Release()
		metrics.RecordQuotaRejection()
		return nil, fault.Newf(fault.CodeQuotaExceeded, "upload of %d bytes exceeds storage limit", total)
	}

	job := newJob(KindUpload)
	job.setTotal(total)
	e.register(job)
	e.events.Publish(Event{Kind: EventTotal, JobID: job.ID, Bytes: total})

	logging.Info("upload started",
		zap.String("user", s.Account.FolderName()),
		zap.String("job", job.ID),
		zap.Int("files", len(sources)),
		zap.Int64("bytes", total))

	go e.runUpload(s, job, destPath, sources, sizes)
	return job, nil
}

func (e *Engine) runUpload(s *session.Session, job *Job, destPath string, sources []LocalSource, sizes []int64) {
	defer s.Release()
	job.start()

	var done int64
	for i, src := range sources {
		if err := e.uploadOne(s.Client, destPath, src); err != nil {
			job.fail(err)
			logging.Error("upload failed",
				zap.String("job", job.ID),
				zap.String("file", src.Name),
				zap.Error(err))
			return
		}
		done += sizes[i]
		job.setTransferred(done)
		metrics.AddTransferBytes("upload", sizes[i])
		e.events.Publish(Event{Kind: EventUpload, JobID: job.ID, Bytes: done})
	}

	job.complete()
	logging.Info("upload completed", zap.String("job", job.ID), zap.Int64("bytes", done))
}

func (e *Engine) uploadOne(client remotefs.Client, destPath string, src LocalSource) error {
	f, err := os.Open(src.Path)
	if err != nil {
		return fault.Wrap(fault.CodeTransfer, "source vanished: "+src.Name, err)
	}
	defer f.Close()

	w, err := client.Create(path.Join(destPath, src.Name))
	if err != nil {
		return fault.Wrap(fault.CodeTransfer, "failed to create remote file: "+src.Name, err)
	}

	buf := make([]byte, copyChunk)
	if _, err := io.CopyBuffer(w, f, buf); err != nil {
		w.Close()
		return fault.Wrap(fault.CodeTransfer, "failed to stream "+src.Name, err)
	}
	if err := w.Close(); err != nil {
		return fault.Wrap(fault.CodeTransfer, "failed to finish "+src.Name, err)
	}
	return nil
}

// downloadSource is one file resolved for a download, with the path it
// takes inside an archive.
type downloadSource struct {
	abs     string
	rel     string
	size    int64
	modTime int64
}

// Download is a prepared download holding the user's session until the
// payload has been streamed (or the download is abandoned). Callers
// inspect Name/Size/Archive to shape their response, then call Stream
// exactly once, or Close to give the session back untouched.
type Download struct {
	Name    string
	Size    int64
	Archive bool
	Job     *Job

	engine  *Engine
	session *session.Session
	sources []downloadSource
	release sync.Once
}

// StartDownload resolves every requested name, computes the job total
// and returns the descriptor. A single file streams as-is; anything
// else (several names, or one folder) becomes a zip bundle with the
// relative folder structure preserved.
func (e *Engine) StartDownload(ctx context.Context, username, password string, parent []string, names []string) (*Download, error) {
	if len(names) == 0 {
		return nil, fault.New(fault.CodeSourceUnavailable, "no entries requested")
	}

	s, err := e.sessions.Acquire(ctx, username, password)
	if err != nil {
		return nil, err
	}

	prepared, err := e.prepareDownload(s, parent, names)
	if err != nil {
		s.Release()
		return nil, err
	}

	e.register(prepared.Job)
	e.events.Publish(Event{Kind: EventTotal, JobID: prepared.Job.ID, Bytes: prepared.Size})

	logging.Info("download started",
		zap.String("user", s.Account.FolderName()),
		zap.String("job", prepared.Job.ID),
		zap.Strings("names", names),
		zap.Int64("bytes", prepared.Size),
		zap.Bool("archive", prepared.Archive))
	return prepared, nil
}

func (e *Engine) prepareDownload(s *session.Session, parent []string, names []string) (*Download, error) {
	parentPath, err := sandbox.Resolve(s.Root, parent)
	if err != nil {
		return nil, err
	}

	var sources []downloadSource
	archive := len(names) > 1
	var singleEntry remotefs.Entry

	for _, name := range names {
		if err := sandbox.CheckName(name); err != nil {
			return nil, err
		}
		abs := path.Join(parentPath, name)
		entry, err := s.Client.Stat(abs)
		if err != nil {
			if remotefs.IsNotExist(err) {
				return nil, fault.Newf(fault.CodeSourceUnavailable, "no such entry: %s", name)
			}
			return nil, fault.Wrap(fault.CodeConnection, "failed to check entry", err)
		}
		if entry.Dir {
			archive = true
			if err := expandFolder(s.Client, abs, name, &sources); err != nil {
				return nil, err
			}
			continue
		}
		singleEntry = entry
		sources = append(sources, downloadSource{
			abs:     abs,
			rel:     name,
			size:    entry.Size,
			modTime: entry.ModTime.Unix(),
		})
	}

	var total int64
	for _, src := range sources {
		total += src.size
	}

	job := newJob(KindDownload)
	job.setTotal(total)

	d := &Download{
		Size:    total,
		Archive: archive,
		Job:     job,
		engine:  e,
		session: s,
		sources: sources,
	}
	if archive {
		d.Name = archiveName(names)
	} else {
		d.Name = singleEntry.Name
	}
	return d, nil
}

// expandFolder walks a folder depth-first, collecting every descendant
// file with its archive-relative path.
func expandFolder(client remotefs.Client, abs, rel string, sources *[]downloadSource) error {
	entries, err := client.ReadDir(abs)
	if err != nil {
		return fault.Wrap(fault.CodeSourceUnavailable, "failed to read folder "+rel, err)
	}
	for _, entry := range entries {
		childAbs := path.Join(abs, entry.Name)
		childRel := rel + "/" + entry.Name
		if entry.Dir {
			if err := expandFolder(client, childAbs, childRel, sources); err != nil {
				return err
			}
			continue
		}
		*sources = append(*sources, downloadSource{
			abs:     childAbs,
			rel:     childRel,
			size:    entry.Size,
			modTime: entry.ModTime.Unix(),
		})
	}
	return nil
}

func archiveName(names []string) string {
	if len(names) == 1 {
		return names[0] + ".zip"
	}
	return "download.zip"
}

// Stream writes the payload to w and finishes the job. The session is
// released when streaming ends, whatever the outcome.
func (d *Download) Stream(w io.Writer) error {
	defer d.release.Do(d.session.Release)
	d.Job.start()

	var err error
	if d.Archive {
		err = d.streamArchive(w)
	} else {
		err = d.streamSingle(w)
	}
	if err != nil {
		d.Job.fail(err)
		logging.Error("download failed", zap.String("job", d.Job.ID), zap.Error(err))
		return err
	}

	d.Job.complete()
	logging.Info("download completed",
		zap.String("job", d.Job.ID),
		zap.Int64("bytes", d.Job.TransferredBytes()))
	return nil
}

// Close abandons a download that was never streamed and releases the
// session. Safe to call after Stream.
func (d *Download) Close() {
	d.release.Do(func() {
		d.session.Release()
		d.Job.fail(fault.New(fault.CodeTransfer, "download abandoned"))
	})
}

func (d *Download) streamSingle(w io.Writer) error {
	src := d.sources[0]
	r, err := d.session.Client.Open(src.abs)
	if err != nil {
		return fault.Wrap(fault.CodeTransfer, "failed to open "+src.rel, err)
	}
	defer r.Close()

	if err := d.copyCounted(w, r); err != nil {
		return fault.Wrap(fault.CodeTransfer, "failed to stream "+src.rel, err)
	}
	return nil
}

func (d *Download) streamArchive(w io.Writer) error {
	cw := &countingWriter{w: w, download: d}
	zw := zip.NewWriter(cw)

	for _, src := range d.sources {
		header := &zip.FileHeader{
			Name:     src.rel,
			Method:   zip.Deflate,
			Modified: time.Unix(src.modTime, 0),
		}
		ew, err := zw.CreateHeader(header)
		if err != nil {
			return fault.Wrap(fault.CodeTransfer, "failed to add archive entry "+src.rel, err)
		}

		r, err := d.session.Client.Open(src.abs)
		if err != nil {
			return fault.Wrap(fault.CodeTransfer, "failed to open "+src.rel, err)
		}
		if err := d.copyCounted(ew, r); err != nil {
			r.Close()
			return fault.Wrap(fault.CodeTransfer, "failed to bundle "+src.rel, err)
		}
		r.Close()
	}

	// Closing flushes the central directory through the counting
	// writer, which lands the final bundle progress signal.
	if err := zw.Close(); err != nil {
		return fault.Wrap(fault.CodeTransfer, "failed to finalize archive", err)
	}
	return nil
}

// copyCounted streams r into w in fixed chunks, advancing the read
// side of the job's progress.
func (d *Download) copyCounted(w io.Writer, r io.Reader) error {
	buf := make([]byte, copyChunk)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			d.Job.addTransferred(int64(n))
			metrics.AddTransferBytes("download", int64(n))
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// countingWriter advances the bundling byte count as archive output
// passes through to the destination. The central directory written on
// close counts too.
type countingWriter struct {
	w        io.Writer
	download *Download
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		total := cw.download.Job.addBundled(int64(n))
		cw.download.engine.events.Publish(Event{
			Kind:  EventBundle,
			JobID: cw.download.Job.ID,
			Bytes: total,
		})
	}
	return n, err
}
