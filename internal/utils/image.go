package utils

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // GIF デコーダを登録
	"image/jpeg"
	_ "image/png" // PNG デコーダを登録
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
)

// VerifyImage は画像を最後までデコードして破損していないか確認する
func VerifyImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, _, err := image.Decode(f); err != nil {
		return fmt.Errorf("デコードに失敗: %w", err)
	}
	return nil
}

// ResizeImage は幅が maxWidth を超える画像を縦横比を保って縮小し、JPEGで返す。
// 縮小不要なら resized は false で、data はそのまま返る。
func ResizeImage(data []byte, maxWidth int, quality int) (out []byte, resized bool, err error) {
	if maxWidth <= 0 {
		return data, false, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("画像のデコードに失敗: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxWidth {
		return data, false, nil
	}

	aspectRatio := float64(bounds.Dy()) / float64(bounds.Dx())
	newHeight := uint(float64(maxWidth) * aspectRatio)
	if newHeight == 0 {
		newHeight = 1
	}

	dst := resize.Resize(uint(maxWidth), newHeight, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, false, fmt.Errorf("縮小画像のエンコードに失敗: %w", err)
	}
	return buf.Bytes(), true, nil
}

// ResizeFile は src を読み込み、必要なら縮小して dst に書き出し、src を削除する
func ResizeFile(src, dst string, maxWidth, quality int) (bool, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return false, err
	}
	out, resized, err := ResizeImage(data, maxWidth, quality)
	if err != nil {
		return false, err
	}
	if !resized {
		return false, MoveFile(src, dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, err
	}
	if err := os.WriteFile(dst, out, 0644); err != nil {
		return false, err
	}
	return true, os.Remove(src)
}
