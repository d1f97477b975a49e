package processor

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"skinlesion-prep/internal/utils"
)

// Quarantine は dir 直下の images をデコードして確認し、壊れたものを corruptDir に移す。
// 正常な画像と破損画像の名前をそれぞれ名前順で返す。
func Quarantine(ctx context.Context, dir string, images []string, corruptDir string, workers int, dryRun bool) (good, corrupt []string, err error) {
	var mu sync.Mutex

	err = RunParallel(ctx, images, workers, func(name string) string { return name }, func(name string) error {
		src := filepath.Join(dir, name)
		if verr := utils.VerifyImage(src); verr != nil {
			log.WithFields(log.Fields{"file": name, "error": verr}).Warn("破損画像を検出")
			mu.Lock()
			corrupt = append(corrupt, name)
			mu.Unlock()
			if dryRun {
				return nil
			}
			return utils.MoveFile(src, filepath.Join(corruptDir, name))
		}
		mu.Lock()
		good = append(good, name)
		mu.Unlock()
		return nil
	})

	sort.Strings(good)
	sort.Strings(corrupt)
	return good, corrupt, err
}
