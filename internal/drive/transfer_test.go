package drive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidrive-backend/internal/fault"
)

func waitJob(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transfer job did not finish")
	}
}

func stageSource(t *testing.T, dir, name string, content []byte) LocalSource {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return LocalSource{Name: name, Path: p}
}

func TestSourceSizes(t *testing.T) {
	e, _ := testEngine(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 42), 0o644))

	sizes, err := e.SourceSizes([]string{filepath.Join(dir, "a.bin")})
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, sizes)

	_, err = e.SourceSizes([]string{filepath.Join(dir, "ghost.bin")})
	assert.True(t, fault.HasCode(err, fault.CodeSourceUnavailable))
}

func TestUploadRoundTrip(t *testing.T) {
	e, _ := testEngine(t)
	staging := t.TempDir()

	content := []byte("the quick brown fox jumps over the lazy dog")
	src := stageSource(t, staging, "fox.txt", content)

	job, err := e.Upload(ctx(), testUser, testPassword, nil, []LocalSource{src})
	require.NoError(t, err)
	waitJob(t, job)
	require.NoError(t, job.Err())
	assert.Equal(t, StateCompleted, job.State())
	assert.Equal(t, int64(len(content)), job.TransferredBytes())

	dl, err := e.StartDownload(ctx(), testUser, testPassword, nil, []string{"fox.txt"})
	require.NoError(t, err)
	assert.False(t, dl.Archive)
	assert.Equal(t, "fox.txt", dl.Name)
	assert.Equal(t, int64(len(content)), dl.Size)

	var buf bytes.Buffer
	require.NoError(t, dl.Stream(&buf))
	assert.Equal(t, content, buf.Bytes(), "downloaded bytes match the uploaded original")
}

func TestUploadBatchAdvancesPerFile(t *testing.T) {
	e, _ := testEngine(t)
	staging := t.TempDir()

	sources := []LocalSource{
		stageSource(t, staging, "a.bin", make([]byte, 100)),
		stageSource(t, staging, "b.bin", make([]byte, 200)),
		stageSource(t, staging, "c.bin", make([]byte, 300)),
	}

	events := e.Events().Subscribe()
	defer e.Events().Unsubscribe(events)

	job, err := e.Upload(ctx(), testUser, testPassword, nil, sources)
	require.NoError(t, err)
	assert.Equal(t, int64(600), job.TotalBytes())
	waitJob(t, job)
	require.NoError(t, job.Err())

	var totals, uploads []int64
	deadline := time.After(2 * time.Second)
collect:
	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case EventTotal:
				totals = append(totals, ev.Bytes)
			case EventUpload:
				uploads = append(uploads, ev.Bytes)
				if ev.Bytes == 600 {
					break collect
				}
			}
		case <-deadline:
			t.Fatal("progress events never reached the batch total")
		}
	}

	assert.Equal(t, []int64{600}, totals, "one total announcement at job start")
	assert.Equal(t, []int64{100, 300, 600}, uploads, "progress advances per completed file, in file order")
}

func TestUploadQuotaRejectedInFull(t *testing.T) {
	e, root := testEngine(t)
	staging := t.TempDir()

	// 900 MB already used, as a sparse file.
	used, err := os.Create(filepath.Join(root, "big.bin"))
	require.NoError(t, err)
	require.NoError(t, used.Truncate(900_000_000))
	require.NoError(t, used.Close())

	// A 200 MB incoming batch would land at 1.1 GB against a 1 GB limit.
	incoming, err := os.Create(filepath.Join(staging, "incoming.bin"))
	require.NoError(t, err)
	require.NoError(t, incoming.Truncate(200_000_000))
	require.NoError(t, incoming.Close())

	_, err = e.Upload(ctx(), testUser, testPassword, nil, []LocalSource{
		{Name: "incoming.bin", Path: filepath.Join(staging, "incoming.bin")},
	})
	assert.True(t, fault.HasCode(err, fault.CodeQuotaExceeded))

	status, err := e.Storage(ctx(), testUser, testPassword)
	require.NoError(t, err)
	assert.Equal(t, int64(900_000_000), status.UsedBytes, "rejected upload writes zero bytes")

	_, statErr := os.Stat(filepath.Join(root, "incoming.bin"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUploadMixedBatchSharesOneQuotaGate(t *testing.T) {
	e, root := testEngine(t)
	staging := t.TempDir()

	used, err := os.Create(filepath.Join(root, "big.bin"))
	require.NoError(t, err)
	require.NoError(t, used.Truncate(999_999_000))
	require.NoError(t, used.Close())

	// The small file alone would fit; the pair does not. The whole
	// batch must be refused.
	small := stageSource(t, staging, "small.txt", []byte("ok"))
	large, err := os.Create(filepath.Join(staging, "large.bin"))
	require.NoError(t, err)
	require.NoError(t, large.Truncate(5_000))
	require.NoError(t, large.Close())

	_, err = e.Upload(ctx(), testUser, testPassword, nil, []LocalSource{
		small,
		{Name: "large.bin", Path: filepath.Join(staging, "large.bin")},
	})
	assert.True(t, fault.HasCode(err, fault.CodeQuotaExceeded))

	_, statErr := os.Stat(filepath.Join(root, "small.txt"))
	assert.True(t, os.IsNotExist(statErr), "no file from the batch starts")
}

func TestUploadMissingSource(t *testing.T) {
	e, _ := testEngine(t)

	_, err := e.Upload(ctx(), testUser, testPassword, nil, []LocalSource{
		{Name: "ghost.txt", Path: filepath.Join(t.TempDir(), "ghost.txt")},
	})
	assert.True(t, fault.HasCode(err, fault.CodeSourceUnavailable))
}

func TestUploadMissingDestination(t *testing.T) {
	e, _ := testEngine(t)
	src := stageSource(t, t.TempDir(), "a.txt", []byte("a"))

	_, err := e.Upload(ctx(), testUser, testPassword, []string{"no-such-folder"}, []LocalSource{src})
	assert.True(t, fault.HasCode(err, fault.CodeNotFound))
}

func TestDownloadArchiveBundlesTree(t *testing.T) {
	e, root := testEngine(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "archive"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "archive", "b.txt"), []byte("beta"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.txt"), []byte("gamma"), 0o644))

	dl, err := e.StartDownload(ctx(), testUser, testPassword, nil, []string{"docs", "c.txt"})
	require.NoError(t, err)
	assert.True(t, dl.Archive)
	assert.Equal(t, "download.zip", dl.Name)
	assert.Equal(t, int64(len("alpha")+len("beta")+len("gamma")), dl.Size)

	var buf bytes.Buffer
	require.NoError(t, dl.Stream(&buf))
	assert.Equal(t, StateCompleted, dl.Job.State())
	assert.Equal(t, dl.Size, dl.Job.TransferredBytes())
	assert.Equal(t, int64(buf.Len()), dl.Job.BundledBytes(), "bundle progress ends at the archive size")

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	contents := map[string]string{}
	for _, f := range zr.File {
		r, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		r.Close()
		contents[f.Name] = string(data)
	}
	assert.Equal(t, map[string]string{
		"docs/a.txt":         "alpha",
		"docs/archive/b.txt": "beta",
		"c.txt":              "gamma",
	}, contents, "archive preserves relative folder structure")
}

func TestDownloadSingleFolderBecomesArchive(t *testing.T) {
	e, root := testEngine(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "a.txt"), []byte("alpha"), 0o644))

	dl, err := e.StartDownload(ctx(), testUser, testPassword, nil, []string{"docs"})
	require.NoError(t, err)
	assert.True(t, dl.Archive)
	assert.Equal(t, "docs.zip", dl.Name)
	dl.Close()
}

func TestDownloadMissingSource(t *testing.T) {
	e, _ := testEngine(t)

	_, err := e.StartDownload(ctx(), testUser, testPassword, nil, []string{"ghost.txt"})
	assert.True(t, fault.HasCode(err, fault.CodeSourceUnavailable))
}

func TestDownloadBundleEmitsBundleEvents(t *testing.T) {
	e, root := testEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), bytes.Repeat([]byte("a"), 10_000), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), bytes.Repeat([]byte("b"), 10_000), 0o644))

	events := e.Events().Subscribe()
	defer e.Events().Unsubscribe(events)

	dl, err := e.StartDownload(ctx(), testUser, testPassword, nil, []string{"a.txt", "b.txt"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, dl.Stream(&buf))

	var sawTotal bool
	var bundles []int64
	deadline := time.After(2 * time.Second)
collect:
	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case EventTotal:
				sawTotal = true
				assert.Equal(t, int64(20_000), ev.Bytes)
			case EventBundle:
				bundles = append(bundles, ev.Bytes)
				if ev.Bytes == int64(buf.Len()) {
					break collect
				}
			}
		case <-deadline:
			t.Fatal("bundle progress never reached the archive size")
		}
	}

	assert.True(t, sawTotal, "job start announces the total")
	for i := 1; i < len(bundles); i++ {
		assert.GreaterOrEqual(t, bundles[i], bundles[i-1], "bundle progress never decreases")
	}
}

func TestJobProgressMonotonicAndBounded(t *testing.T) {
	e, _ := testEngine(t)
	staging := t.TempDir()

	sources := []LocalSource{
		stageSource(t, staging, "a.bin", make([]byte, 50_000)),
		stageSource(t, staging, "b.bin", make([]byte, 70_000)),
	}

	job, err := e.Upload(ctx(), testUser, testPassword, nil, sources)
	require.NoError(t, err)

	var last int64
	for {
		current := job.TransferredBytes()
		assert.GreaterOrEqual(t, current, last, "transferred bytes never decrease")
		assert.LessOrEqual(t, current, job.TotalBytes(), "transferred bytes never exceed the total")
		last = current

		select {
		case <-job.Done():
			assert.Equal(t, job.TotalBytes(), job.TransferredBytes())
			return
		default:
		}
	}
}

func TestJobRegistry(t *testing.T) {
	e, _ := testEngine(t)
	src := stageSource(t, t.TempDir(), "a.txt", []byte("a"))

	job, err := e.Upload(ctx(), testUser, testPassword, nil, []LocalSource{src})
	require.NoError(t, err)
	waitJob(t, job)

	got, ok := e.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)

	status := got.Status()
	assert.Equal(t, string(KindUpload), status.Kind)
	assert.Equal(t, string(StateCompleted), status.State)

	assert.True(t, e.RemoveJob(job.ID))
	_, ok = e.Job(job.ID)
	assert.False(t, ok)
}
