package archive

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/inkwell-labs/scribble/lib/challenge/challengetest"
	"github.com/klauspost/compress/zip"
)

func testImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 40, 40))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(20, 20, color.Gray{})
	return img
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}

	var result []string
	for _, f := range zr.File {
		result = append(result, f.Name)
	}
	slices.Sort(result)
	return result
}

func TestSaveAndLabels(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "images"))

	for _, tt := range []struct {
		id    string
		label int
	}{
		{id: "aaa", label: 3},
		{id: "bbb", label: 7},
		{id: "aaa", label: 3},
	} {
		if err := a.Save(t.Context(), testImage(), tt.id, tt.label); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := os.Stat(filepath.Join(a.Dir(), "captcha_aaa_3.png")); err != nil {
		t.Errorf("image not written: %v", err)
	}

	got, err := a.Labels()
	if err != nil {
		t.Fatal(err)
	}

	want := [][2]string{
		{"captcha_aaa_3.png", "3"},
		{"captcha_bbb_7.png", "7"},
	}
	if !slices.Equal(got, want) {
		t.Errorf("labels = %v, want %v", got, want)
	}

	data, err := os.ReadFile(filepath.Join(a.Dir(), LabelsFile))
	if err != nil {
		t.Fatal(err)
	}
	if wantCSV := "filename,label\ncaptcha_aaa_3.png,3\ncaptcha_bbb_7.png,7\n"; string(data) != wantCSV {
		t.Errorf("labels.csv = %q, want %q", data, wantCSV)
	}
}

func TestSaveRejectsPaths(t *testing.T) {
	a := New(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", `a\b`, ".."} {
		if err := a.Save(t.Context(), testImage(), id, 1); !errors.Is(err, ErrBadName) {
			t.Errorf("Save(%q): wanted ErrBadName, got: %v", id, err)
		}
	}
}

func TestSaveAsync(t *testing.T) {
	a := New(t.TempDir())

	for i := range 20 {
		a.SaveAsync(testImage(), string(rune('a'+i)), i%10, slog.Default())
	}
	a.Wait()

	got, err := a.Labels()
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 20 {
		t.Errorf("wanted 20 labels after concurrent saves, got %d", len(got))
	}
}

func TestExport(t *testing.T) {
	a := New(t.TempDir())

	if err := a.Save(t.Context(), testImage(), "one", 1); err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string]string{
		"photo.JPG":  "jpeg bytes",
		"anim.gif":   "gif bytes",
		"notes.txt":  "not an image",
		"model.json": "{}",
	} {
		if err := os.WriteFile(filepath.Join(a.Dir(), name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(a.Dir(), "nested.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	n, err := a.Export(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if n != int64(buf.Len()) {
		t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
	}

	want := []string{"anim.gif", "captcha_one_1.png", "photo.JPG"}
	if got := zipNames(t, buf.Bytes()); !slices.Equal(got, want) {
		t.Errorf("zip entries = %v, want %v", got, want)
	}
}

func TestExportMissingDir(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "never-created"))

	var buf bytes.Buffer
	if _, err := a.Export(&buf); err != nil {
		t.Fatal(err)
	}

	if got := zipNames(t, buf.Bytes()); len(got) != 0 {
		t.Errorf("wanted an empty zip, got entries %v", got)
	}
}

func TestSaveAcceptsChallengeIDs(t *testing.T) {
	a := New(t.TempDir())
	chall := challengetest.New(t, 4)

	if err := a.Save(t.Context(), testImage(), chall.ID, chall.ExpectedDigit); err != nil {
		t.Fatalf("can't archive challenge %s: %v", chall.ID, err)
	}

	if _, err := os.Stat(filepath.Join(a.Dir(), FileName(chall.ID, 4))); err != nil {
		t.Errorf("archived image missing: %v", err)
	}
}
