package processor

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("ISIC_%07d.jpg", i)
	}
	return names
}

func TestSplitImages_DisjointAndComplete(t *testing.T) {
	images := imageNames(100)
	train, validation := SplitImages(images, 0.8, 10)

	assert.Len(t, train, 80)
	assert.Len(t, validation, 20)

	seen := make(map[string]bool)
	for _, name := range append(append([]string{}, train...), validation...) {
		assert.False(t, seen[name], "image %s assigned twice", name)
		seen[name] = true
	}
	assert.Len(t, seen, 100)
}

func TestSplitImages_Deterministic(t *testing.T) {
	images := imageNames(50)
	train1, val1 := SplitImages(images, 0.8, 10)

	shuffled := append([]string{}, images...)
	rand.New(rand.NewSource(99)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	train2, val2 := SplitImages(shuffled, 0.8, 10)

	assert.Equal(t, train1, train2, "input order must not matter")
	assert.Equal(t, val1, val2)

	train3, _ := SplitImages(images, 0.8, 11)
	assert.NotEqual(t, train1, train3, "another seed gives another split")
}

func TestSplitImages_Truncates(t *testing.T) {
	train, validation := SplitImages(imageNames(19), 0.8, 10)
	assert.Len(t, train, 15)
	assert.Len(t, validation, 4)

	train, validation = SplitImages(nil, 0.8, 10)
	assert.Empty(t, train)
	assert.Empty(t, validation)
}

func TestPlanner_Plan(t *testing.T) {
	idx := mustIndex(t, "ISIC_1,nv\nISIC_2,mel\nISIC_3,bkl\nISIC_4,df\nISIC_5,nv\n")
	p := &Planner{
		SourceDir:      "Data/Images",
		TrainRoot:      "Data/Train",
		ValidationRoot: "Data/Validation",
		Ratio:          0.8,
		Seed:           10,
		Index:          idx,
	}

	plan := p.Plan([]string{"ISIC_1.jpg", "ISIC_2.jpg", "ISIC_3.jpg", "ISIC_4.jpg", "ISIC_5.jpg", "ISIC_9.jpg"})

	assert.Equal(t, []string{"ISIC_9.jpg"}, plan.Unmatched)
	require.Len(t, plan.Moves, 5)

	splits := map[string]int{}
	for _, m := range plan.Moves {
		splits[m.Split]++
		class, ok := idx.Lookup(m.File)
		require.True(t, ok)
		assert.Equal(t, string(class), m.Label)
		assert.Equal(t, filepath.Join("Data", m.Split, m.Label, m.File), m.Dst)
		assert.Equal(t, filepath.Join("Data/Images", m.File), m.Src)
	}
	assert.Equal(t, map[string]int{"Train": 4, "Validation": 1}, splits)
}

func TestPlanInPlace(t *testing.T) {
	idx := mustIndex(t, "ISIC_1,vasc\n")
	plan := PlanInPlace("Data/Test", []string{"ISIC_1.jpg", "ISIC_2.jpg"}, idx)

	require.Len(t, plan.Moves, 1)
	assert.Equal(t, filepath.Join("Data/Test", "vasc", "ISIC_1.jpg"), plan.Moves[0].Dst)
	assert.Equal(t, "Test", plan.Moves[0].Split)
	assert.Equal(t, []string{"ISIC_2.jpg"}, plan.Unmatched)
}

func TestCreateSubFolders(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Train")
	require.NoError(t, CreateSubFolders(root, ClassLabels()))
	require.NoError(t, CreateSubFolders(root, ClassLabels()))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 7)
	assert.DirExists(t, filepath.Join(root, "akiec"))
}

func TestPopulator_Populate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Images")
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		writeFile(t, filepath.Join(src, name), []byte(name))
	}
	// already present at the destination
	writeFile(t, filepath.Join(dir, "Train", "nv", "c.jpg"), []byte("kept"))

	moves := []Move{
		newMove(src, filepath.Join(dir, "Train"), "a.jpg", "nv"),
		newMove(src, filepath.Join(dir, "Validation"), "b.jpg", "mel"),
		newMove(src, filepath.Join(dir, "Train"), "c.jpg", "nv"),
	}

	p := &Populator{Workers: 2}
	res, err := p.Populate(context.Background(), moves)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Moved)
	assert.Equal(t, 1, res.Skipped)
	assert.FileExists(t, filepath.Join(dir, "Train", "nv", "a.jpg"))
	assert.FileExists(t, filepath.Join(dir, "Validation", "mel", "b.jpg"))
	data, err := os.ReadFile(filepath.Join(dir, "Train", "nv", "c.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))

	left, err := os.ReadDir(src)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestPopulator_DryRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Images")
	writeFile(t, filepath.Join(src, "a.jpg"), []byte("a"))

	p := &Populator{Workers: 1, DryRun: true}
	res, err := p.Populate(context.Background(), []Move{newMove(src, filepath.Join(dir, "Train"), "a.jpg", "nv")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Moved)
	assert.FileExists(t, filepath.Join(src, "a.jpg"))
	assert.NoDirExists(t, filepath.Join(dir, "Train"))
}

func TestPopulator_Resize(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Images")
	writeFile(t, filepath.Join(src, "wide.jpg"), encodeJPEG(t, 100, 40))
	writeFile(t, filepath.Join(src, "small.jpg"), encodeJPEG(t, 20, 20))

	p := &Populator{Workers: 2, MaxWidth: 50, Quality: 80}
	res, err := p.Populate(context.Background(), []Move{
		newMove(src, filepath.Join(dir, "Train"), "wide.jpg", "nv"),
		newMove(src, filepath.Join(dir, "Train"), "small.jpg", "nv"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Moved)
	assert.Equal(t, 1, res.Resized)
}

func TestPopulator_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	p := &Populator{Workers: 2}
	_, err := p.Populate(context.Background(), []Move{
		newMove(filepath.Join(dir, "Images"), filepath.Join(dir, "Train"), "missing.jpg", "nv"),
	})
	assert.Error(t, err)
}

func TestRemoveScratch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Images")
	writeFile(t, filepath.Join(dir, "leftover.jpg"), []byte("x"))

	require.NoError(t, RemoveScratch(dir))
	assert.NoDirExists(t, dir)
	assert.NoError(t, RemoveScratch(dir))
}
