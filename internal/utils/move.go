package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile は単一ファイルをコピー
func CopyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		os.Remove(dst)
		return err
	}
	return dstFile.Close()
}

// MoveFile はファイルを移動する。rename に失敗した場合 (デバイス跨ぎ等) はコピーして元を削除。
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("ディレクトリの作成に失敗: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyFile(src, dst); err != nil {
		return fmt.Errorf("コピーに失敗 %s -> %s: %w", src, dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("移動元の削除に失敗 %s: %w", src, err)
	}
	return nil
}
