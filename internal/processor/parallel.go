package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"skinlesion-prep/internal/utils"
)

// RunParallel は items を最大 maxWorkers 並列で処理する。
// 個々の失敗はログに出し、最後にまとめてエラーとして返す。
func RunParallel[T any](ctx context.Context, items []T, maxWorkers int, name func(T) string, fn func(T) error) error {
	if len(items) == 0 {
		return nil
	}

	// 並列度が1の場合は順次処理
	if maxWorkers <= 1 {
		var errs []error
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(item); err != nil {
				log.WithFields(log.Fields{"item": name(item), "error": err}).Warn("処理に失敗")
				errs = append(errs, fmt.Errorf("%s: %w", name(item), err))
			}
		}
		return joinFailures(errs)
	}

	sem := utils.NewSemaphore(maxWorkers)
	var wg sync.WaitGroup
	errCh := make(chan error, len(items))

	log.WithFields(log.Fields{"items": len(items), "workers": maxWorkers}).Debug("並列処理を開始")

	for _, item := range items {
		if err := sem.Acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func(it T) {
			defer wg.Done()
			defer sem.Release()

			if err := fn(it); err != nil {
				errCh <- fmt.Errorf("%s: %w", name(it), err)
			}
		}(item)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		log.WithError(err).Warn("処理に失敗")
		errs = append(errs, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return joinFailures(errs)
}

func joinFailures(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d件の処理に失敗しました: %w", len(errs), errors.Join(errs...))
}
