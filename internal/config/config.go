package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"skinlesion-prep/internal/metadata"
)

// Config は設定情報を保持
type Config struct {
	DataDir           string   `yaml:"data_dir"`           // アーカイブとメタデータが置かれたディレクトリ
	ImagesDir         string   `yaml:"images_dir"`         // 展開用の一時ディレクトリ名
	TrainDir          string   `yaml:"train_dir"`          // 教師データのディレクトリ名
	ValidationDir     string   `yaml:"validation_dir"`     // 検証データのディレクトリ名
	TestDir           string   `yaml:"test_dir"`           // テストデータのディレクトリ名
	CorruptDir        string   `yaml:"corrupt_dir"`        // 破損画像の退避先
	ImageArchives     []string `yaml:"image_archives"`     // HAM10000 の画像アーカイブ
	TestArchive       string   `yaml:"test_archive"`       // ISIC2018 テスト画像アーカイブ
	TestNestedDir     string   `yaml:"test_nested_dir"`    // テストアーカイブ内の入れ子フォルダ
	MetadataFile      string   `yaml:"metadata_file"`      // HAM10000 メタデータ
	MetadataDelimiter string   `yaml:"metadata_delimiter"` // メタデータの区切り文字
	TestGroundTruth   string   `yaml:"test_ground_truth"`  // テスト画像の正解表 (任意)
	TrainingRatio     float64  `yaml:"training_ratio"`     // 教師データ比率
	Seed              int64    `yaml:"seed"`               // 分割用の乱数シード
	SkipThreshold     int      `yaml:"skip_threshold"`     // この件数以上あれば展開を省略
	MaxCopyWorkers    int      `yaml:"max_copy_workers"`   // 最大移動ワーカー数
	VerifyImages      bool     `yaml:"verify_images"`      // 破損画像チェック
	TarOutput         bool     `yaml:"tar_output"`         // tar出力フラグ
	DryRun            bool     `yaml:"dry_run"`            // 移動せずに計画のみ表示
	Debug             bool     `yaml:"debug"`
	ManifestPath      string   `yaml:"manifest_path"` // 空なら記録しない

	Image  ImageConfig  `yaml:"image"`
	Binary BinaryConfig `yaml:"binary"`
	S3     S3Config     `yaml:"s3"`
}

// ImageConfig は移動時のリサイズ設定
type ImageConfig struct {
	MaxWidth int `yaml:"max_width"` // 0 ならリサイズしない
	Quality  int `yaml:"quality"`
}

// BinaryConfig は二値分類モードの設定
type BinaryConfig struct {
	PositiveClass string `yaml:"positive_class"` // 空なら多クラスモード
	Balance       bool   `yaml:"balance"`        // positive/negative の件数を揃える
}

// Enabled は二値分類モードかどうかを返す
func (b BinaryConfig) Enabled() bool {
	return b.PositiveClass != ""
}

// S3Config はアーカイブ取得元のオブジェクトストレージ設定
type S3Config struct {
	Endpoint          string  `yaml:"endpoint"`
	Region            string  `yaml:"region"`
	Bucket            string  `yaml:"bucket"`
	Prefix            string  `yaml:"prefix"`
	AccessKey         string  `yaml:"access_key"` // ${VAR} 展開に対応
	SecretKey         string  `yaml:"secret_key"` // ${VAR} 展開に対応
	UseSSL            bool    `yaml:"use_ssl"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Enabled はS3からの取得が設定されているかを返す
func (s S3Config) Enabled() bool {
	return s.Bucket != "" && s.Endpoint != ""
}

// NewDefaultConfig はデフォルト設定を返す
func NewDefaultConfig() *Config {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	return &Config{
		DataDir:           "Data",
		ImagesDir:         "Images",
		TrainDir:          "Train",
		ValidationDir:     "Validation",
		TestDir:           "Test",
		CorruptDir:        "Corrupt",
		ImageArchives:     []string{"HAM10000_images_part_1.zip", "HAM10000_images_part_2.zip"},
		TestArchive:       "ISIC2018_Task3_Test_Images.zip",
		TestNestedDir:     "ISIC2018_Task3_Test_Images",
		MetadataFile:      "HAM10000_metadata",
		MetadataDelimiter: ",",
		TrainingRatio:     0.8,
		Seed:              10,
		SkipThreshold:     10000,
		MaxCopyWorkers:    workers,
		Image: ImageConfig{
			Quality: 90,
		},
		S3: S3Config{
			RequestsPerSecond: 5,
		},
	}
}

// Load はYAMLファイルを読み込み、環境変数を展開してデフォルト設定に上書きする
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("設定ファイルが見つかりません: %s", path)
	}

	rawBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	content := os.ExpandEnv(string(rawBytes))
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("YAMLの解析に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性をチェック
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("データディレクトリが指定されていません")
	}
	if c.ImagesDir == "" || c.TrainDir == "" || c.ValidationDir == "" || c.TestDir == "" {
		return fmt.Errorf("分割ディレクトリ名が空です")
	}
	if len(c.ImageArchives) == 0 {
		return fmt.Errorf("画像アーカイブが指定されていません")
	}
	if c.MetadataFile == "" {
		return fmt.Errorf("メタデータファイルが指定されていません")
	}
	if len([]rune(c.MetadataDelimiter)) != 1 {
		return fmt.Errorf("区切り文字は1文字である必要があります: %q", c.MetadataDelimiter)
	}
	if c.TrainingRatio <= 0.0 || c.TrainingRatio >= 1.0 {
		return fmt.Errorf("教師データ比率は0.0より大きく1.0より小さい値である必要があります")
	}
	if c.SkipThreshold < 1 {
		return fmt.Errorf("展開省略のしきい値は1以上である必要があります")
	}
	if c.MaxCopyWorkers < 1 {
		return fmt.Errorf("最大コピーワーカー数は1以上である必要があります")
	}
	if c.Image.MaxWidth < 0 {
		return fmt.Errorf("リサイズ幅は0以上である必要があります")
	}
	if c.Image.MaxWidth > 0 && (c.Image.Quality < 1 || c.Image.Quality > 100) {
		return fmt.Errorf("JPEG品質は1から100の間である必要があります")
	}
	if c.Binary.Enabled() {
		if _, err := metadata.ParseClass(c.Binary.PositiveClass); err != nil {
			return fmt.Errorf("positiveクラスが不正です: %w", err)
		}
	}
	if c.S3.Bucket != "" && c.S3.Endpoint == "" {
		return fmt.Errorf("s3.endpoint が指定されていません")
	}
	if c.S3.Enabled() && c.S3.RequestsPerSecond <= 0 {
		return fmt.Errorf("s3.requests_per_second は0より大きい必要があります")
	}
	return nil
}

// GetValidationRatio は検証データ比率を返す
func (c *Config) GetValidationRatio() float64 {
	return 1.0 - c.TrainingRatio
}

// GetMaxCopyWorkers は最大コピーワーカー数を返す
func (c *Config) GetMaxCopyWorkers() int {
	return c.MaxCopyWorkers
}

// Path はデータディレクトリ配下のパスを返す
func (c *Config) Path(name string) string {
	return filepath.Join(c.DataDir, name)
}

// Delimiter はメタデータの区切り文字をruneで返す
func (c *Config) Delimiter() rune {
	return []rune(c.MetadataDelimiter)[0]
}
