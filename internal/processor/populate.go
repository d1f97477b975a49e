package processor

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"skinlesion-prep/internal/metadata"
	"skinlesion-prep/internal/utils"
)

// Move は1枚の画像の移動計画
type Move struct {
	File  string // ファイル名
	Src   string // 移動元のパス
	Split string // 分割ディレクトリ名 (Train など)
	Label string // クラスフォルダ名
	Dst   string // 移動先のパス
}

// Plan は分割と移動の計画
type Plan struct {
	Moves     []Move
	Unmatched []string // メタデータにない画像
	Dropped   []string // 件数調整で使わない画像
}

// ClassLabels は多クラスモードのフォルダ名を返す
func ClassLabels() []string {
	classes := metadata.Classes()
	labels := make([]string, len(classes))
	for i, c := range classes {
		labels[i] = string(c)
	}
	return labels
}

// CreateSubFolders は root 配下にラベルごとのフォルダを作成する。既にあれば何もしない。
func CreateSubFolders(root string, labels []string) error {
	for _, label := range labels {
		if err := os.MkdirAll(filepath.Join(root, label), 0755); err != nil {
			return fmt.Errorf("ディレクトリの作成に失敗: %w", err)
		}
	}
	return nil
}

// SplitImages は名前順に並べた images から int(ratio*n) 枚を非復元抽出で教師データとし、
// 残りを検証データとする。seed と images が同じなら結果も同じ。
func SplitImages(images []string, ratio float64, seed int64) (train, validation []string) {
	sorted := append([]string(nil), images...)
	sort.Strings(sorted)

	trainingCount := int(ratio * float64(len(sorted)))
	rng := rand.New(rand.NewSource(seed))
	picked := make(map[int]bool, trainingCount)
	for _, i := range rng.Perm(len(sorted))[:trainingCount] {
		picked[i] = true
	}

	for i, name := range sorted {
		if picked[i] {
			train = append(train, name)
		} else {
			validation = append(validation, name)
		}
	}
	return train, validation
}

// Planner はメタデータと分割比率から移動計画を作る
type Planner struct {
	SourceDir      string
	TrainRoot      string
	ValidationRoot string
	Ratio          float64
	Seed           int64
	Index          *metadata.Index
}

// Plan は images をメタデータと結合し、教師/検証に分けて移動先を決める
func (p *Planner) Plan(images []string) *Plan {
	plan := &Plan{}

	matched := make([]string, 0, len(images))
	for _, name := range images {
		if _, ok := p.Index.Lookup(name); ok {
			matched = append(matched, name)
		} else {
			plan.Unmatched = append(plan.Unmatched, name)
		}
	}

	train, validation := SplitImages(matched, p.Ratio, p.Seed)
	plan.Moves = append(plan.Moves, p.moves(train, p.TrainRoot)...)
	plan.Moves = append(plan.Moves, p.moves(validation, p.ValidationRoot)...)
	return plan
}

func (p *Planner) moves(images []string, root string) []Move {
	moves := make([]Move, 0, len(images))
	for _, name := range images {
		class, _ := p.Index.Lookup(name)
		moves = append(moves, newMove(p.SourceDir, root, name, string(class)))
	}
	return moves
}

// PlanInPlace は dir 直下の画像を dir/<class>/ に移す計画を作る (テスト画像用)
func PlanInPlace(dir string, images []string, index *metadata.Index) *Plan {
	plan := &Plan{}
	for _, name := range images {
		class, ok := index.Lookup(name)
		if !ok {
			plan.Unmatched = append(plan.Unmatched, name)
			continue
		}
		plan.Moves = append(plan.Moves, newMove(dir, dir, name, string(class)))
	}
	return plan
}

func newMove(srcDir, root, name, label string) Move {
	return Move{
		File:  name,
		Src:   filepath.Join(srcDir, name),
		Split: filepath.Base(root),
		Label: label,
		Dst:   filepath.Join(root, label, name),
	}
}

// Populator は移動計画を実行する
type Populator struct {
	Workers  int
	DryRun   bool
	MaxWidth int // 0 ならリサイズしない
	Quality  int
}

// PopulateResult は移動の結果
type PopulateResult struct {
	Moved   int
	Resized int
	Skipped int
}

// Populate は moves を並列に実行する。移動先に既に同名のファイルがあれば移動元を削除するだけにする。
func (p *Populator) Populate(ctx context.Context, moves []Move) (PopulateResult, error) {
	var moved, resized, skipped atomic.Int64

	err := RunParallel(ctx, moves, p.Workers, func(m Move) string { return m.File }, func(m Move) error {
		if p.DryRun {
			log.WithFields(log.Fields{"src": m.Src, "dst": m.Dst}).Debug("[DRY RUN] 移動")
			moved.Add(1)
			return nil
		}

		if utils.Exists(m.Dst) {
			skipped.Add(1)
			return os.Remove(m.Src)
		}

		if p.MaxWidth > 0 {
			didResize, err := utils.ResizeFile(m.Src, m.Dst, p.MaxWidth, p.Quality)
			if err != nil {
				return err
			}
			if didResize {
				resized.Add(1)
			}
		} else if err := utils.MoveFile(m.Src, m.Dst); err != nil {
			return err
		}
		moved.Add(1)
		return nil
	})

	return PopulateResult{
		Moved:   int(moved.Load()),
		Resized: int(resized.Load()),
		Skipped: int(skipped.Load()),
	}, err
}

// RemoveScratch は展開用の一時ディレクトリを削除する
func RemoveScratch(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("一時ディレクトリの削除に失敗: %w", err)
	}
	log.WithField("dir", dir).Info("一時ディレクトリを削除しました")
	return nil
}
