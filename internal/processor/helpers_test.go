package processor

import (
	"archive/zip"
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"skinlesion-prep/internal/metadata"
)

// writeZip は files (メンバー名 -> 内容) を名前順に格納したzipを作成する
func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	w := zip.NewWriter(f)
	for _, name := range names {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, 0644))
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func mustIndex(t *testing.T, rows string) *metadata.Index {
	t.Helper()
	idx, err := metadata.ReadTable(strings.NewReader("image_id,dx\n"+rows), ',')
	require.NoError(t, err)
	return idx
}

func countMoves(moves []Move) map[string]map[string]int {
	counts := make(map[string]map[string]int)
	for _, m := range moves {
		if counts[m.Split] == nil {
			counts[m.Split] = make(map[string]int)
		}
		counts[m.Split][m.Label]++
	}
	return counts
}
