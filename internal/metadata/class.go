// Package metadata は病変クラスの定義とメタデータ表の結合を扱う
package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// Class は皮膚病変のクラス
type Class string

const (
	BenignKeratosis  Class = "bkl"
	Nevus            Class = "nv"
	Dermatofibroma   Class = "df"
	Melanoma         Class = "mel"
	Vascular         Class = "vasc"
	BasalCell        Class = "bcc"
	ActinicKeratosis Class = "akiec"
)

// ErrUnknownClass は未知のクラスラベル
var ErrUnknownClass = errors.New("unknown lesion class")

// Classes は全クラスを固定順で返す
func Classes() []Class {
	return []Class{BenignKeratosis, Nevus, Dermatofibroma, Melanoma, Vascular, BasalCell, ActinicKeratosis}
}

// ParseClass はラベル文字列をClassに変換する。大文字小文字は区別しない。
func ParseClass(label string) (Class, error) {
	c := Class(strings.ToLower(strings.TrimSpace(label)))
	for _, known := range Classes() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownClass, label)
}

func (c Class) String() string {
	return string(c)
}
