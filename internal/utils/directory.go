package utils

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
}

// IsImageFile は拡張子と名前から画像ファイルかどうかを判定
func IsImageFile(name string) bool {
	base := filepath.Base(name)
	// AppleDouble (._xxx.jpg) や隠しファイルは除外
	if strings.HasPrefix(base, ".") {
		return false
	}
	return imageExts[strings.ToLower(filepath.Ext(base))]
}

// GetSubDirectories は指定されたディレクトリ内のサブディレクトリを取得
func GetSubDirectories(rootDir string) ([]string, error) {
	var subDirs []string
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			subDirs = append(subDirs, filepath.Join(rootDir, entry.Name()))
		}
	}
	return subDirs, nil
}

// ListImageFiles はディレクトリ直下の画像ファイル名を名前順で取得
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && IsImageFile(entry.Name()) {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// GetImageFiles は指定されたディレクトリ内の画像ファイルを再帰的に取得
func GetImageFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// CountEntries はディレクトリ直下のエントリ数を返す。存在しなければ0。
func CountEntries(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Exists はパスが存在するかを返す
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
