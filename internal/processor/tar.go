package processor

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// CreateTarArchive は root 配下の dirs を tarFileName にまとめる。
// エントリ名は root からの相対パス。
func CreateTarArchive(tarFileName, root string, dirs []string) error {
	log.WithField("tar", tarFileName).Info("tarファイルの作成を開始")

	tarFile, err := os.Create(tarFileName)
	if err != nil {
		return fmt.Errorf("tarファイルの作成に失敗: %w", err)
	}

	total, err := writeTar(tarFile, root, dirs)
	if err != nil {
		os.Remove(tarFileName)
		return err
	}

	log.WithFields(log.Fields{
		"tar":  tarFileName,
		"size": humanize.Bytes(uint64(total)),
	}).Info("tarファイルが作成されました")
	return nil
}

// writeTar は dirs を w に書き込んで w を閉じる。書き込んだ内容のバイト数を返す。
func writeTar(w io.WriteCloser, root string, dirs []string) (int64, error) {
	tarWriter := tar.NewWriter(w)

	var total int64
	for _, dir := range dirs {
		sourceDir := filepath.Join(root, dir)
		if _, err := os.Stat(sourceDir); os.IsNotExist(err) {
			log.WithField("dir", sourceDir).Warn("tar対象のディレクトリがありません")
			continue
		}

		err := filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			relPath, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}

			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = filepath.ToSlash(relPath)
			if info.IsDir() {
				header.Name += "/"
			}

			if err := tarWriter.WriteHeader(header); err != nil {
				return err
			}

			// ディレクトリの場合はファイル内容を書き込まない
			if !info.Mode().IsRegular() {
				return nil
			}

			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			n, err := io.Copy(tarWriter, file)
			total += n
			return err
		})
		if err != nil {
			w.Close()
			return total, fmt.Errorf("ファイルのtar化に失敗: %w", err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		w.Close()
		return total, fmt.Errorf("tarの書き込みに失敗: %w", err)
	}
	if err := w.Close(); err != nil {
		return total, fmt.Errorf("tarファイルのクローズに失敗: %w", err)
	}
	return total, nil
}
