// Package archive keeps the centered images of verification attempts on disk
// along with the digit each one was supposed to show, building a labelled
// dataset for retraining the classifier.
package archive

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
)

// LabelsFile is the name of the CSV index written next to the images.
const LabelsFile = "labels.csv"

var (
	ErrBadName = errors.New("archive: challenge id can't be used in a file name")

	imageExts = []string{".png", ".jpg", ".jpeg", ".gif"}
)

type Archive struct {
	dir string

	// lock serializes writers of labels.csv
	lock sync.Mutex
	wg   sync.WaitGroup
}

func New(dir string) *Archive {
	return &Archive{dir: dir}
}

func (a *Archive) Dir() string {
	return a.dir
}

// FileName is the archive name of the image for challenge id.
func FileName(id string, label int) string {
	return fmt.Sprintf("captcha_%s_%d.png", id, label)
}

// Save writes img as a PNG and records its label in labels.csv.
func (a *Archive) Save(ctx context.Context, img image.Image, id string, label int) error {
	if !validName(id) {
		return fmt.Errorf("%w: %q", ErrBadName, id)
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("can't create archive dir %s: %w", a.dir, err)
	}

	name := FileName(id, label)
	if err := writeFileAtomic(filepath.Join(a.dir, name), func(w io.Writer) error {
		return png.Encode(w, img)
	}); err != nil {
		return fmt.Errorf("can't write %s: %w", name, err)
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	labels, err := a.readLabels()
	if err != nil {
		return err
	}

	labels.set(name, strconv.Itoa(label))

	if err := writeFileAtomic(filepath.Join(a.dir, LabelsFile), labels.write); err != nil {
		return fmt.Errorf("can't write %s: %w", LabelsFile, err)
	}

	return nil
}

// SaveAsync runs Save in the background. Failures are logged and counted,
// never returned.
func (a *Archive) SaveAsync(img image.Image, id string, label int, lg *slog.Logger) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := a.Save(ctx, img, id, label); err != nil {
			writes.WithLabelValues("error").Inc()
			lg.Error("can't archive challenge image", "err", err, "id", id)
			return
		}

		writes.WithLabelValues("ok").Inc()
		lg.Debug("archived challenge image", "file", FileName(id, label))
	}()
}

// Wait blocks until every SaveAsync started so far has finished.
func (a *Archive) Wait() {
	a.wg.Wait()
}

// Labels returns the archived file names and their labels in the order they
// were first recorded.
func (a *Archive) Labels() ([][2]string, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	labels, err := a.readLabels()
	if err != nil {
		return nil, err
	}

	result := make([][2]string, 0, len(labels.order))
	for _, name := range labels.order {
		result = append(result, [2]string{name, labels.values[name]})
	}
	return result, nil
}

// Export writes a zip of every image in the archive to w. A missing archive
// directory, or a nil Archive, produces an empty zip.
func (a *Archive) Export(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)

	var entries []os.DirEntry
	if a != nil && a.dir != "" {
		var err error
		entries, err = os.ReadDir(a.dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("can't list archive dir %s: %w", a.dir, err)
		}
	}

	for _, ent := range entries {
		if ent.IsDir() || !slices.Contains(imageExts, strings.ToLower(filepath.Ext(ent.Name()))) {
			continue
		}

		if err := addFile(zw, filepath.Join(a.dir, ent.Name()), ent.Name()); err != nil {
			return cw.n, err
		}
	}

	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("can't finish zip: %w", err)
	}

	downloads.Inc()
	zipBytes.Set(float64(cw.n))

	return cw.n, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	fin, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("can't open %s: %w", path, err)
	}
	defer fin.Close()

	st, err := fin.Stat()
	if err != nil {
		return fmt.Errorf("can't stat %s: %w", path, err)
	}

	hdr, err := zip.FileInfoHeader(st)
	if err != nil {
		return fmt.Errorf("can't build zip header for %s: %w", path, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	fout, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("can't add %s to zip: %w", name, err)
	}

	if _, err := io.Copy(fout, fin); err != nil {
		return fmt.Errorf("can't copy %s into zip: %w", name, err)
	}

	return nil
}

// validName accepts ids made of letters, digits, '-' and '_'.
func validName(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

type labelSet struct {
	order  []string
	values map[string]string
}

func (l *labelSet) set(name, label string) {
	if _, ok := l.values[name]; !ok {
		l.order = append(l.order, name)
	}
	l.values[name] = label
}

func (l *labelSet) write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"filename", "label"}); err != nil {
		return err
	}
	for _, name := range l.order {
		if err := cw.Write([]string{name, l.values[name]}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// readLabels loads labels.csv. The caller holds a.lock.
func (a *Archive) readLabels() (*labelSet, error) {
	result := &labelSet{values: map[string]string{}}

	fin, err := os.Open(filepath.Join(a.dir, LabelsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return nil, fmt.Errorf("can't open %s: %w", LabelsFile, err)
	}
	defer fin.Close()

	rows, err := csv.NewReader(fin).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("can't parse %s: %w", LabelsFile, err)
	}

	for i, row := range rows {
		if i == 0 && len(row) == 2 && row[0] == "filename" {
			continue
		}
		if len(row) != 2 {
			continue
		}
		result.set(row[0], row[1])
	}

	return result, nil
}

// writeFileAtomic writes to a temporary file in the same directory and
// renames it over path, so readers never see a partial file.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
