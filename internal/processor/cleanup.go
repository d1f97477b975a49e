package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"

	"skinlesion-prep/internal/utils"
)

// ArtifactNames は展開時に紛れ込むOS固有のファイル名を返す
func ArtifactNames(goos string) []string {
	names := []string{"__MACOSX", ".DS_Store"}
	if goos == "windows" {
		names = append(names, "Thumbs.db", "desktop.ini")
	}
	return names
}

// TestCleaner はテスト画像アーカイブの展開結果を整理する
type TestCleaner struct {
	NestedDir string // アーカイブ内の入れ子フォルダ名
	GOOS      string
	DryRun    bool
}

// NewTestCleaner は実行中のOS向けの TestCleaner を返す
func NewTestCleaner(nestedDir string) *TestCleaner {
	return &TestCleaner{
		NestedDir: nestedDir,
		GOOS:      runtime.GOOS,
	}
}

// CleanResult は整理の結果
type CleanResult struct {
	Removed   int
	Flattened int
}

// Clean は不要なファイルを削除し、入れ子フォルダ内の jpg を dir 直下に移してフォルダを削除する
func (c *TestCleaner) Clean(dir string) (CleanResult, error) {
	var result CleanResult
	if !utils.Exists(dir) {
		return result, nil
	}

	artifacts := make(map[string]bool)
	for _, name := range ArtifactNames(c.GOOS) {
		artifacts[name] = true
	}

	var targets []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		name := d.Name()
		if artifacts[name] || strings.HasPrefix(name, "._") {
			targets = append(targets, path)
			if d.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("ディレクトリの走査に失敗: %w", err)
	}

	for _, path := range targets {
		log.WithField("path", path).Debug("不要なファイルを削除")
		result.Removed++
		if c.DryRun {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return result, fmt.Errorf("削除に失敗 %s: %w", path, err)
		}
	}

	if c.NestedDir == "" {
		return result, nil
	}
	nested := filepath.Join(dir, c.NestedDir)
	info, err := os.Stat(nested)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return result, err
	}
	if !info.IsDir() {
		return result, fmt.Errorf("%s はディレクトリではありません", nested)
	}

	entries, err := os.ReadDir(nested)
	if err != nil {
		return result, err
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(entry.Name()), ".jpg") {
			continue
		}
		src := filepath.Join(nested, entry.Name())
		dst := filepath.Join(dir, entry.Name())
		if utils.Exists(dst) {
			continue
		}
		result.Flattened++
		if c.DryRun {
			continue
		}
		if err := utils.MoveFile(src, dst); err != nil {
			return result, err
		}
	}

	if !c.DryRun {
		if err := os.RemoveAll(nested); err != nil {
			return result, fmt.Errorf("入れ子フォルダの削除に失敗: %w", err)
		}
	}

	log.WithFields(log.Fields{
		"dir":       dir,
		"removed":   result.Removed,
		"flattened": result.Flattened,
	}).Info("テスト画像を整理しました")

	return result, nil
}
