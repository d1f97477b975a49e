package processor

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"skinlesion-prep/internal/utils"
)

// ErrUnsafePath はアーカイブ内のパスが展開先の外を指している
var ErrUnsafePath = errors.New("unsafe path in archive")

// Extractor はzipアーカイブを冪等に展開する
type Extractor struct {
	SkipThreshold int  // 展開先にこの件数以上のエントリがあれば何もしない
	DryRun        bool // 書き込まずに件数だけ数える
}

// ExtractResult は展開の結果
type ExtractResult struct {
	Archive     string
	Extracted   int
	Skipped     int
	Bytes       uint64
	AlreadyDone bool
}

// Extract は archivePath を dest に展開する。dest に既に同名のファイルがあるメンバーは展開しない。
func (e *Extractor) Extract(ctx context.Context, archivePath, dest string) (ExtractResult, error) {
	result := ExtractResult{Archive: filepath.Base(archivePath)}

	if e.SkipThreshold > 0 {
		count, err := utils.CountEntries(dest)
		if err != nil {
			return result, fmt.Errorf("展開先の確認に失敗: %w", err)
		}
		if count >= e.SkipThreshold {
			log.WithFields(log.Fields{
				"archive": result.Archive,
				"dest":    dest,
				"entries": count,
			}).Info("展開済みのためスキップ")
			result.AlreadyDone = true
			return result, nil
		}
	}

	reader, err := zip.OpenReader(archivePath)
	if errors.Is(err, zip.ErrInsecurePath) {
		reader.Close()
		return result, fmt.Errorf("%w: %s", ErrUnsafePath, archivePath)
	}
	if err != nil {
		return result, fmt.Errorf("アーカイブを開けません %s: %w", archivePath, err)
	}
	defer reader.Close()

	if !e.DryRun {
		if err := os.MkdirAll(dest, 0755); err != nil {
			return result, fmt.Errorf("ディレクトリの作成に失敗: %w", err)
		}
	}

	for _, member := range reader.File {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		target, err := safeJoin(dest, member.Name)
		if err != nil {
			return result, err
		}

		if member.FileInfo().IsDir() {
			if !e.DryRun {
				if err := os.MkdirAll(target, 0755); err != nil {
					return result, fmt.Errorf("ディレクトリの作成に失敗: %w", err)
				}
			}
			continue
		}

		if utils.Exists(target) {
			result.Skipped++
			continue
		}

		result.Extracted++
		result.Bytes += member.UncompressedSize64
		if e.DryRun {
			continue
		}

		if err := extractMember(member, target); err != nil {
			return result, fmt.Errorf("%s の展開に失敗: %w", member.Name, err)
		}
	}

	log.WithFields(log.Fields{
		"archive":   result.Archive,
		"extracted": result.Extracted,
		"skipped":   result.Skipped,
		"size":      humanize.Bytes(result.Bytes),
	}).Info("アーカイブを展開しました")

	return result, nil
}

func extractMember(member *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := member.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(target)
		return err
	}
	return out.Close()
}

// safeJoin は zip メンバー名を dest 配下のパスに変換する
func safeJoin(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" ||
		clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return filepath.Join(dest, clean), nil
}

// ListArchiveImages はアーカイブ内の画像ファイル名を重複なしで名前順に返す
func ListArchiveImages(archivePaths ...string) ([]string, error) {
	seen := make(map[string]bool)
	for _, archivePath := range archivePaths {
		reader, err := zip.OpenReader(archivePath)
		if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
			return nil, fmt.Errorf("アーカイブを開けません %s: %w", archivePath, err)
		}
		for _, member := range reader.File {
			if !member.FileInfo().IsDir() && utils.IsImageFile(member.Name) {
				seen[filepath.Base(filepath.FromSlash(member.Name))] = true
			}
		}
		reader.Close()
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
