package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrUnknownLayout は表のヘッダーが既知の形式に一致しない
var ErrUnknownLayout = errors.New("unknown metadata layout")

// Layout はメタデータ表の形式
type Layout int

const (
	// LongLayout は image_id と dx 列を持つ形式 (HAM10000_metadata)
	LongLayout Layout = iota
	// OneHotLayout は image 列とクラスごとの列を持つ形式 (ISIC2018 正解表)
	OneHotLayout
)

func (l Layout) String() string {
	switch l {
	case LongLayout:
		return "long"
	case OneHotLayout:
		return "one-hot"
	default:
		return "unknown"
	}
}

// Index は画像IDからクラスへの対応表
type Index struct {
	Layout  Layout
	byID    map[string]Class
	skipped int
}

// ImageID はファイル名から最初の "." より前の部分を返す
func ImageID(filename string) string {
	base := filepath.Base(filename)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// LoadTable はファイルからメタデータ表を読み込む
func LoadTable(path string, delimiter rune) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("メタデータを開けません: %w", err)
	}
	defer f.Close()

	idx, err := ReadTable(f, delimiter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return idx, nil
}

// ReadTable はヘッダーから形式を判定して表を読み込む
func ReadTable(r io.Reader, delimiter rune) (*Index, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: 表が空です", ErrUnknownLayout)
	}
	if err != nil {
		return nil, fmt.Errorf("ヘッダーの読み込みに失敗: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	idx := &Index{byID: make(map[string]Class)}

	var parse func(record []string) (string, Class, error)
	if idCol, ok := columns["image_id"]; ok {
		dxCol, ok := columns["dx"]
		if !ok {
			return nil, fmt.Errorf("%w: image_id 列に対応する dx 列がありません", ErrUnknownLayout)
		}
		idx.Layout = LongLayout
		parse = func(record []string) (string, Class, error) {
			if idCol >= len(record) || dxCol >= len(record) {
				return "", "", fmt.Errorf("列数が不足しています")
			}
			c, err := ParseClass(record[dxCol])
			return strings.TrimSpace(record[idCol]), c, err
		}
	} else if idCol, ok := columns["image"]; ok {
		classCols := make(map[Class]int)
		for _, c := range Classes() {
			col, ok := columns[string(c)]
			if !ok {
				return nil, fmt.Errorf("%w: %s 列がありません", ErrUnknownLayout, strings.ToUpper(string(c)))
			}
			classCols[c] = col
		}
		idx.Layout = OneHotLayout
		parse = func(record []string) (string, Class, error) {
			if idCol >= len(record) {
				return "", "", fmt.Errorf("列数が不足しています")
			}
			var found []Class
			for _, c := range Classes() {
				col := classCols[c]
				if col >= len(record) {
					continue
				}
				v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
				if err == nil && v == 1 {
					found = append(found, c)
				}
			}
			if len(found) != 1 {
				return "", "", fmt.Errorf("%w: %d個のクラスに印が付いています", ErrUnknownClass, len(found))
			}
			return strings.TrimSpace(record[idCol]), found[0], nil
		}
	} else {
		return nil, fmt.Errorf("%w: ヘッダー %v", ErrUnknownLayout, header)
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%d行目の読み込みに失敗: %w", line, err)
		}

		id, class, err := parse(record)
		if err != nil {
			log.WithFields(log.Fields{
				"line":  line,
				"error": err,
			}).Warn("メタデータ行をスキップ")
			idx.skipped++
			continue
		}
		if id == "" {
			idx.skipped++
			continue
		}
		if _, exists := idx.byID[id]; exists {
			idx.skipped++
			continue
		}
		idx.byID[id] = class
	}

	return idx, nil
}

// Lookup はファイル名の画像IDでクラスを引く
func (ix *Index) Lookup(filename string) (Class, bool) {
	c, ok := ix.byID[ImageID(filename)]
	return c, ok
}

// Len は登録された画像数を返す
func (ix *Index) Len() int {
	return len(ix.byID)
}

// Skipped は読み飛ばした行数を返す
func (ix *Index) Skipped() int {
	return ix.skipped
}

// Counts はクラスごとの登録数を返す
func (ix *Index) Counts() map[Class]int {
	counts := make(map[Class]int)
	for _, c := range ix.byID {
		counts[c]++
	}
	return counts
}
