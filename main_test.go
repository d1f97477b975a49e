package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRatio(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"0.8", 0.8, false},
		{"80%", 0.8, false},
		{"75.5%", 0.755, false},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRatio(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "Data", cfg.DataDir)
	assert.Equal(t, 0.8, cfg.TrainingRatio)
	assert.Equal(t, int64(10), cfg.Seed)
	assert.NoError(t, cfg.Validate())
}

func TestParseFlags_PositionalArgs(t *testing.T) {
	cfg, err := parseFlags([]string{"-seed", "3", "-positive", "mel", "-balance", "/data/ham", "75%"})
	require.NoError(t, err)

	assert.Equal(t, "/data/ham", cfg.DataDir)
	assert.InDelta(t, 0.75, cfg.TrainingRatio, 1e-9)
	assert.Equal(t, int64(3), cfg.Seed)
	assert.Equal(t, "mel", cfg.Binary.PositiveClass)
	assert.True(t, cfg.Binary.Balance)

	_, err = parseFlags([]string{"data", "x%"})
	assert.Error(t, err)
}

func TestParseFlags_FlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prep.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 42\ntraining_ratio: 0.5\nverify_images: true\n"), 0644))

	cfg, err := parseFlags([]string{"-config", path, "-ratio", "0.9", "-manifest", "runs.db"})
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 0.9, cfg.TrainingRatio)
	assert.True(t, cfg.VerifyImages)
	assert.Equal(t, "runs.db", cfg.ManifestPath)
}

func TestParseFlags_UnknownFlag(t *testing.T) {
	_, err := parseFlags([]string{"-nope"})
	assert.Error(t, err)
}

func TestRun_HelpIsNotAFailure(t *testing.T) {
	err := run([]string{"-h"})
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestRun_InvalidConfig(t *testing.T) {
	err := run([]string{"-ratio", "1.5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "設定エラー")
}

func TestRun_ReturnsPipelineErrorAfterOpeningManifest(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.db")

	// アーカイブが無いので展開で失敗する
	err := run([]string{"-manifest", manifestPath, filepath.Join(dir, "Data")})
	require.Error(t, err)
	assert.FileExists(t, manifestPath)
}
