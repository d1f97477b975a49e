package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"skinlesion-prep/internal/config"
	"skinlesion-prep/internal/manifest"
	"skinlesion-prep/internal/metadata"
	"skinlesion-prep/internal/utils"
)

// ErrNoImages は分割対象の画像が1枚もない
var ErrNoImages = errors.New("no images to split")

// Fetcher はローカルにない入力ファイルを取得する
type Fetcher interface {
	FetchMissing(ctx context.Context, dir string, names []string) (int, error)
}

// Recorder は分割結果を記録する
type Recorder interface {
	Record(ctx context.Context, run manifest.Run, entries []manifest.Entry) error
}

type planner interface {
	Plan(images []string) *Plan
}

// Summary は実行結果の集計
type Summary struct {
	Extracted []ExtractResult
	Counts    map[string]map[string]int // split -> label -> 件数
	Unmatched int
	Corrupt   int
	Dropped   int
	Resized   int
	Skipped   bool // 既に完成していたため何もしなかった
}

func (s *Summary) add(moves []Move) {
	for _, m := range moves {
		if s.Counts[m.Split] == nil {
			s.Counts[m.Split] = make(map[string]int)
		}
		s.Counts[m.Split][m.Label]++
	}
}

// Pipeline は展開から移動までを順に実行する
type Pipeline struct {
	cfg      *config.Config
	fetcher  Fetcher
	recorder Recorder
}

// NewPipeline は Pipeline を作成する。fetcher と recorder は nil でもよい。
func NewPipeline(cfg *config.Config, fetcher Fetcher, recorder Recorder) *Pipeline {
	return &Pipeline{cfg: cfg, fetcher: fetcher, recorder: recorder}
}

// Run は全工程を実行する
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	cfg := p.cfg
	summary := &Summary{Counts: make(map[string]map[string]int)}
	start := time.Now()

	scratch := cfg.Path(cfg.ImagesDir)
	trainRoot := cfg.Path(cfg.TrainDir)
	validationRoot := cfg.Path(cfg.ValidationDir)
	testRoot := cfg.Path(cfg.TestDir)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("データディレクトリの作成に失敗: %w", err)
	}

	if p.fetcher != nil {
		names := append([]string{}, cfg.ImageArchives...)
		names = append(names, cfg.TestArchive, cfg.MetadataFile, cfg.TestGroundTruth)
		n, err := p.fetcher.FetchMissing(ctx, cfg.DataDir, names)
		if err != nil {
			return nil, fmt.Errorf("入力ファイルの取得に失敗: %w", err)
		}
		log.WithField("fetched", n).Info("入力ファイルを確認しました")
	}

	populated, err := p.alreadyPopulated(scratch, trainRoot, validationRoot)
	if err != nil {
		return nil, err
	}

	extractor := &Extractor{SkipThreshold: cfg.SkipThreshold, DryRun: cfg.DryRun}

	if !populated {
		for _, archive := range cfg.ImageArchives {
			res, err := extractor.Extract(ctx, cfg.Path(archive), scratch)
			if err != nil {
				return nil, err
			}
			summary.Extracted = append(summary.Extracted, res)
		}
	}

	if err := p.prepareTest(ctx, extractor, testRoot, summary); err != nil {
		return nil, err
	}

	labels := ClassLabels()
	if cfg.Binary.Enabled() {
		labels = BinaryLabels()
	}
	if !cfg.DryRun {
		for _, root := range []string{trainRoot, validationRoot} {
			if err := CreateSubFolders(root, labels); err != nil {
				return nil, err
			}
		}
		if err := CreateSubFolders(testRoot, ClassLabels()); err != nil {
			return nil, err
		}
	}

	populator := &Populator{
		Workers:  cfg.MaxCopyWorkers,
		DryRun:   cfg.DryRun,
		MaxWidth: cfg.Image.MaxWidth,
		Quality:  cfg.Image.Quality,
	}

	var entries []manifest.Entry

	if populated {
		log.WithFields(log.Fields{
			"train":      trainRoot,
			"validation": validationRoot,
		}).Info("分割済みのため移動をスキップ")
		summary.Skipped = true
	} else {
		moves, err := p.splitScratch(ctx, scratch, trainRoot, validationRoot, populator, summary)
		if err != nil {
			return nil, err
		}
		entries = append(entries, toEntries(moves)...)

		if !cfg.DryRun {
			if err := RemoveScratch(scratch); err != nil {
				return nil, err
			}
		}
	}

	if cfg.TestGroundTruth != "" {
		moves, err := p.classifyTest(ctx, testRoot, populator, summary)
		if err != nil {
			return nil, err
		}
		entries = append(entries, toEntries(moves)...)
	}

	if p.recorder != nil && len(entries) > 0 && !cfg.DryRun {
		mode := "multiclass"
		if cfg.Binary.Enabled() {
			mode = "binary:" + cfg.Binary.PositiveClass
		}
		run := manifest.NewRun(cfg.Seed, cfg.TrainingRatio, mode)
		if err := p.recorder.Record(ctx, run, entries); err != nil {
			return nil, fmt.Errorf("マニフェストの記録に失敗: %w", err)
		}
		log.WithFields(log.Fields{"run": run.ID, "entries": len(entries)}).Info("マニフェストに記録しました")
	}

	if cfg.TarOutput && !cfg.DryRun {
		tarName := filepath.Join(filepath.Dir(filepath.Clean(cfg.DataDir)), filepath.Base(filepath.Clean(cfg.DataDir))+".tar")
		if err := CreateTarArchive(tarName, cfg.DataDir, []string{cfg.TrainDir, cfg.ValidationDir, cfg.TestDir}); err != nil {
			log.WithError(err).Warn("tarファイルの作成に失敗")
		}
	}

	log.WithField("time_taken", time.Since(start)).Info("データセットの準備が完了しました")
	return summary, nil
}

// alreadyPopulated は一時ディレクトリが消えていて教師/検証のラベルフォルダに画像がある状態かを判定する
func (p *Pipeline) alreadyPopulated(scratch string, roots ...string) (bool, error) {
	if utils.Exists(scratch) {
		return false, nil
	}
	for _, root := range roots {
		if !utils.Exists(root) {
			continue
		}
		labelDirs, err := utils.GetSubDirectories(root)
		if err != nil {
			return false, fmt.Errorf("%s の確認に失敗: %w", root, err)
		}
		for _, labelDir := range labelDirs {
			files, err := utils.ListImageFiles(labelDir)
			if err != nil {
				return false, fmt.Errorf("%s の確認に失敗: %w", labelDir, err)
			}
			if len(files) > 0 {
				return true, nil
			}
		}
	}
	return false, nil
}

// prepareTest はテストアーカイブを展開して整理する
func (p *Pipeline) prepareTest(ctx context.Context, extractor *Extractor, testRoot string, summary *Summary) error {
	cfg := p.cfg
	if cfg.TestArchive == "" {
		return nil
	}

	nested := filepath.Join(testRoot, cfg.TestNestedDir)
	if !utils.Exists(nested) && utils.Exists(testRoot) {
		files, err := utils.GetImageFiles(testRoot)
		if err != nil {
			return err
		}
		if len(files) > 0 {
			log.WithField("dir", testRoot).Info("テスト画像は展開済みのためスキップ")
			return nil
		}
	}

	res, err := extractor.Extract(ctx, cfg.Path(cfg.TestArchive), testRoot)
	if err != nil {
		return err
	}
	summary.Extracted = append(summary.Extracted, res)

	cleaner := NewTestCleaner(cfg.TestNestedDir)
	cleaner.DryRun = cfg.DryRun
	if _, err := cleaner.Clean(testRoot); err != nil {
		return fmt.Errorf("テスト画像の整理に失敗: %w", err)
	}
	return nil
}

// splitScratch はメタデータと結合して教師/検証に移動する
func (p *Pipeline) splitScratch(ctx context.Context, scratch, trainRoot, validationRoot string, populator *Populator, summary *Summary) ([]Move, error) {
	cfg := p.cfg

	index, err := metadata.LoadTable(cfg.Path(cfg.MetadataFile), cfg.Delimiter())
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"layout":  index.Layout,
		"images":  index.Len(),
		"skipped": index.Skipped(),
		"classes": index.Counts(),
	}).Info("メタデータを読み込みました")

	var images []string
	extracted := utils.Exists(scratch)
	if extracted {
		images, err = utils.ListImageFiles(scratch)
	} else if cfg.DryRun {
		// 展開していないのでアーカイブの中身から計画する
		archives := make([]string, 0, len(cfg.ImageArchives))
		for _, archive := range cfg.ImageArchives {
			archives = append(archives, cfg.Path(archive))
		}
		images, err = ListArchiveImages(archives...)
	}
	if err != nil {
		return nil, fmt.Errorf("画像一覧の取得に失敗: %w", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoImages, scratch)
	}

	if cfg.VerifyImages && extracted {
		good, corrupt, err := Quarantine(ctx, scratch, images, cfg.Path(cfg.CorruptDir), cfg.MaxCopyWorkers, cfg.DryRun)
		if err != nil {
			return nil, err
		}
		images = good
		summary.Corrupt = len(corrupt)
	}

	base := Planner{
		SourceDir:      scratch,
		TrainRoot:      trainRoot,
		ValidationRoot: validationRoot,
		Ratio:          cfg.TrainingRatio,
		Seed:           cfg.Seed,
		Index:          index,
	}
	var pl planner = &base
	if cfg.Binary.Enabled() {
		positive, _ := metadata.ParseClass(cfg.Binary.PositiveClass)
		pl = &BinaryPlanner{Planner: base, Positive: positive, Balance: cfg.Binary.Balance}
	}

	plan := pl.Plan(images)
	summary.Unmatched += len(plan.Unmatched)
	summary.Dropped = len(plan.Dropped)
	if len(plan.Unmatched) > 0 {
		log.WithFields(log.Fields{
			"count":   len(plan.Unmatched),
			"example": strings.Join(head(plan.Unmatched, 5), ","),
		}).Warn("メタデータに存在しない画像があります")
	}

	res, err := populator.Populate(ctx, plan.Moves)
	summary.Resized += res.Resized
	if err != nil {
		return nil, err
	}
	summary.add(plan.Moves)

	log.WithFields(log.Fields{
		"moved":   res.Moved,
		"skipped": res.Skipped,
		"resized": res.Resized,
	}).Info("教師/検証データを配置しました")
	return plan.Moves, nil
}

// classifyTest はテスト画像を正解表に従ってクラスフォルダに移す
func (p *Pipeline) classifyTest(ctx context.Context, testRoot string, populator *Populator, summary *Summary) ([]Move, error) {
	cfg := p.cfg

	index, err := metadata.LoadTable(cfg.Path(cfg.TestGroundTruth), cfg.Delimiter())
	if err != nil {
		return nil, err
	}

	images, err := utils.ListImageFiles(testRoot)
	if err != nil {
		if cfg.DryRun && os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	plan := PlanInPlace(testRoot, images, index)
	summary.Unmatched += len(plan.Unmatched)

	res, err := populator.Populate(ctx, plan.Moves)
	summary.Resized += res.Resized
	if err != nil {
		return nil, err
	}
	summary.add(plan.Moves)

	log.WithFields(log.Fields{
		"moved":     res.Moved,
		"unmatched": len(plan.Unmatched),
	}).Info("テスト画像をクラス別に配置しました")
	return plan.Moves, nil
}

func toEntries(moves []Move) []manifest.Entry {
	entries := make([]manifest.Entry, 0, len(moves))
	for _, m := range moves {
		entries = append(entries, manifest.Entry{
			ImageID: metadata.ImageID(m.File),
			File:    m.File,
			Split:   m.Split,
			Label:   m.Label,
			Path:    m.Dst,
		})
	}
	return entries
}

func head(items []string, n int) []string {
	if len(items) < n {
		return items
	}
	return items[:n]
}
