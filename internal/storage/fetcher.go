package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"skinlesion-prep/internal/utils"
)

// Fetcher はローカルにないファイルだけをダウンロードする
type Fetcher struct {
	downloader Downloader
	prefix     string
	limiter    *rate.Limiter
}

// NewFetcher は秒間 rps リクエストに制限した Fetcher を返す
func NewFetcher(d Downloader, prefix string, rps float64) *Fetcher {
	return &Fetcher{
		downloader: d,
		prefix:     prefix,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// FetchMissing は names のうち dir に存在しないものを取得する。取得した件数を返す。
func (f *Fetcher) FetchMissing(ctx context.Context, dir string, names []string) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}

	fetched := 0
	for _, name := range names {
		if name == "" {
			continue
		}
		local := filepath.Join(dir, name)
		if utils.Exists(local) {
			continue
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return fetched, err
		}

		key := path.Join(f.prefix, name)
		tmp := local + ".part"
		log.WithFields(log.Fields{"key": key, "dest": local}).Info("ストレージから取得中")

		if err := f.downloader.DownloadToFile(ctx, key, tmp); err != nil {
			os.Remove(tmp)
			return fetched, fmt.Errorf("%s の取得に失敗: %w", key, err)
		}
		if err := os.Rename(tmp, local); err != nil {
			return fetched, err
		}
		fetched++
	}
	return fetched, nil
}
