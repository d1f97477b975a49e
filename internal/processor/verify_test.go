package processor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarantine(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Images")
	corruptDir := filepath.Join(dir, "Corrupt")
	writeFile(t, filepath.Join(src, "ISIC_1.jpg"), encodeJPEG(t, 4, 4))
	writeFile(t, filepath.Join(src, "ISIC_2.jpg"), []byte("truncated"))
	writeFile(t, filepath.Join(src, "ISIC_3.jpg"), encodeJPEG(t, 4, 4))

	good, corrupt, err := Quarantine(context.Background(), src, []string{"ISIC_1.jpg", "ISIC_2.jpg", "ISIC_3.jpg"}, corruptDir, 2, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"ISIC_1.jpg", "ISIC_3.jpg"}, good)
	assert.Equal(t, []string{"ISIC_2.jpg"}, corrupt)
	assert.FileExists(t, filepath.Join(corruptDir, "ISIC_2.jpg"))
	assert.NoFileExists(t, filepath.Join(src, "ISIC_2.jpg"))
}

func TestQuarantine_DryRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Images")
	writeFile(t, filepath.Join(src, "ISIC_2.jpg"), []byte("truncated"))

	good, corrupt, err := Quarantine(context.Background(), src, []string{"ISIC_2.jpg"}, filepath.Join(dir, "Corrupt"), 1, true)
	require.NoError(t, err)
	assert.Empty(t, good)
	assert.Equal(t, []string{"ISIC_2.jpg"}, corrupt)
	assert.FileExists(t, filepath.Join(src, "ISIC_2.jpg"))
}
