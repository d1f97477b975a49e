package processor

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTarArchive(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "Data")
	writeFile(t, filepath.Join(root, "Train", "nv", "ISIC_1.jpg"), []byte("train"))
	writeFile(t, filepath.Join(root, "Test", "ISIC_2.jpg"), []byte("test"))
	writeFile(t, filepath.Join(root, "HAM10000_metadata"), []byte("not included"))

	tarName := filepath.Join(dir, "Data.tar")
	require.NoError(t, CreateTarArchive(tarName, root, []string{"Train", "Validation", "Test"}))

	f, err := os.Open(tarName)
	require.NoError(t, err)
	defer f.Close()

	contents := map[string]string{}
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}

	assert.Equal(t, "train", contents["Train/nv/ISIC_1.jpg"])
	assert.Equal(t, "test", contents["Test/ISIC_2.jpg"])
	assert.Contains(t, contents, "Train/")
	assert.Contains(t, contents, "Train/nv/")
	assert.NotContains(t, contents, "HAM10000_metadata")
}

type failingCloser struct {
	bytes.Buffer
	closed bool
}

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("no space left on device")
}

func TestWriteTar_ReportsCloseError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Train", "mel", "ISIC_1.jpg"), []byte("train"))

	w := &failingCloser{}
	total, err := writeTar(w, root, []string{"Train"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no space left on device")
	assert.True(t, w.closed)
	assert.Equal(t, int64(5), total)
}
