package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"skinlesion-prep/internal/config"
	"skinlesion-prep/internal/manifest"
	"skinlesion-prep/internal/processor"
	"skinlesion-prep/internal/storage"
)

func main() {
	log.SetOutput(os.Stdout)

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.WithError(err).Fatal("データセットの準備に失敗しました")
	}
}

func run(args []string) error {
	// コマンドライン引数の解析
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	// 引数の検証
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("設定エラー: %w", err)
	}

	log.WithFields(log.Fields{
		"data":       cfg.DataDir,
		"train":      fmt.Sprintf("%.2f%%", cfg.TrainingRatio*100),
		"validation": fmt.Sprintf("%.2f%%", cfg.GetValidationRatio()*100),
		"seed":       cfg.Seed,
		"workers":    cfg.GetMaxCopyWorkers(),
		"dry_run":    cfg.DryRun,
	}).Info("データセットの準備を開始します")
	if cfg.Binary.Enabled() {
		log.WithField("positive", cfg.Binary.PositiveClass).Info("二値分類モード")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fetcher processor.Fetcher
	if cfg.S3.Enabled() {
		client, err := storage.New(cfg.S3)
		if err != nil {
			return err
		}
		fetcher = storage.NewFetcher(client, cfg.S3.Prefix, cfg.S3.RequestsPerSecond)
	}

	var recorder processor.Recorder
	if cfg.ManifestPath != "" {
		store, err := manifest.Open(cfg.ManifestPath)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = store
	}

	summary, err := processor.NewPipeline(cfg, fetcher, recorder).Run(ctx)
	if err != nil {
		return err
	}

	printSummary(summary)
	return nil
}

func parseFlags(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("skinlesion-prep", flag.ContinueOnError)
	defaults := config.NewDefaultConfig()

	configPath := fs.String("config", "", "YAML設定ファイルのパス")
	dataDir := fs.String("data", defaults.DataDir, "アーカイブとメタデータが置かれたディレクトリ")
	ratio := fs.Float64("ratio", defaults.TrainingRatio, "教師データの比率 (0.0-1.0)")
	seed := fs.Int64("seed", defaults.Seed, "分割用の乱数シード")
	workers := fs.Int("copy-workers", defaults.MaxCopyWorkers, "ファイル移動の並列数")
	verify := fs.Bool("verify", defaults.VerifyImages, "破損画像をチェックして除外")
	tarOutput := fs.Bool("tar", defaults.TarOutput, "出力をtarファイルに圧縮")
	dryRun := fs.Bool("dry-run", defaults.DryRun, "移動せずに計画のみ表示")
	debug := fs.Bool("debug", defaults.Debug, "デバッグログを出力")
	positive := fs.String("positive", "", "二値分類モードのpositiveクラス (例: mel)")
	balance := fs.Bool("balance", false, "二値分類モードでpositive/negativeの件数を揃える")
	maxWidth := fs.Int("max-width", defaults.Image.MaxWidth, "この幅を超える画像を縮小 (0=縮小しない)")
	manifestPath := fs.String("manifest", defaults.ManifestPath, "分割結果を記録するSQLiteファイル")
	groundTruth := fs.String("test-ground-truth", defaults.TestGroundTruth, "テスト画像の正解表")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// 明示的に指定されたフラグだけ設定ファイルの値を上書きする
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.DataDir = *dataDir
		case "ratio":
			cfg.TrainingRatio = *ratio
		case "seed":
			cfg.Seed = *seed
		case "copy-workers":
			cfg.MaxCopyWorkers = *workers
		case "verify":
			cfg.VerifyImages = *verify
		case "tar":
			cfg.TarOutput = *tarOutput
		case "dry-run":
			cfg.DryRun = *dryRun
		case "debug":
			cfg.Debug = *debug
		case "positive":
			cfg.Binary.PositiveClass = *positive
		case "balance":
			cfg.Binary.Balance = *balance
		case "max-width":
			cfg.Image.MaxWidth = *maxWidth
		case "manifest":
			cfg.ManifestPath = *manifestPath
		case "test-ground-truth":
			cfg.TestGroundTruth = *groundTruth
		}
	})

	// 位置引数もサポート
	rest := fs.Args()
	if len(rest) >= 1 {
		cfg.DataDir = rest[0]
	}
	if len(rest) >= 2 {
		r, err := parseRatio(rest[1])
		if err != nil {
			return nil, fmt.Errorf("比率の解析に失敗 %q: %w", rest[1], err)
		}
		cfg.TrainingRatio = r
	}

	return cfg, nil
}

func parseRatio(ratioStr string) (float64, error) {
	var ratio float64
	_, err := fmt.Sscanf(ratioStr, "%f", &ratio)
	if err != nil {
		return 0, err
	}

	// パーセンテージ表記もサポート
	if strings.HasSuffix(ratioStr, "%") {
		ratio = ratio / 100.0
	}

	return ratio, nil
}

func printSummary(s *processor.Summary) {
	if s.Skipped {
		log.Info("教師/検証データは既に配置済みです")
	}

	splits := make([]string, 0, len(s.Counts))
	for split := range s.Counts {
		splits = append(splits, split)
	}
	sort.Strings(splits)

	for _, split := range splits {
		labels := make([]string, 0, len(s.Counts[split]))
		for label := range s.Counts[split] {
			labels = append(labels, label)
		}
		sort.Strings(labels)

		fields := log.Fields{"split": split}
		total := 0
		for _, label := range labels {
			fields[label] = s.Counts[split][label]
			total += s.Counts[split][label]
		}
		fields["total"] = total
		log.WithFields(fields).Info("配置結果")
	}

	log.WithFields(log.Fields{
		"unmatched": s.Unmatched,
		"corrupt":   s.Corrupt,
		"dropped":   s.Dropped,
		"resized":   s.Resized,
	}).Info("データセットの準備が完了しました！")
}
