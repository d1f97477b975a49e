// Package storage は生データのアーカイブをS3互換ストレージから取得する
package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"skinlesion-prep/internal/config"
)

// Downloader はオブジェクトをローカルファイルに保存する
type Downloader interface {
	DownloadToFile(ctx context.Context, key, localPath string) error
}

// Client は minio クライアントの薄いラッパー
type Client struct {
	api    *minio.Client
	bucket string
}

var _ Downloader = (*Client)(nil)

// New は設定からクライアントを作成する
func New(cfg config.S3Config) (*Client, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("S3クライアントの作成に失敗: %w", err)
	}

	return &Client{
		api:    minioClient,
		bucket: cfg.Bucket,
	}, nil
}

// DownloadToFile はオブジェクトを localPath に保存する
func (c *Client) DownloadToFile(ctx context.Context, key, localPath string) error {
	obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("オブジェクト %s の取得に失敗: %w", key, err)
	}
	defer obj.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("ファイル %s の作成に失敗: %w", localPath, err)
	}

	if _, err := io.Copy(f, obj); err != nil {
		f.Close()
		return fmt.Errorf("ファイル %s の書き込みに失敗: %w", localPath, err)
	}
	return f.Close()
}
