package processor

import (
	"math/rand"
	"sort"

	log "github.com/sirupsen/logrus"

	"skinlesion-prep/internal/metadata"
)

const (
	PositiveLabel = "positive"
	NegativeLabel = "negative"
)

// BinaryLabels は二値分類モードのフォルダ名を返す
func BinaryLabels() []string {
	return []string{PositiveLabel, NegativeLabel}
}

// BinaryPlanner は positive クラスとそれ以外に分けて移動計画を作る
type BinaryPlanner struct {
	Planner
	Positive metadata.Class
	Balance  bool // 少ない方の件数に揃える
}

// Plan は images を positive/negative に分け、それぞれを教師/検証に分割する
func (p *BinaryPlanner) Plan(images []string) *Plan {
	plan := &Plan{}

	var positives, negatives []string
	for _, name := range images {
		class, ok := p.Index.Lookup(name)
		switch {
		case !ok:
			plan.Unmatched = append(plan.Unmatched, name)
		case class == p.Positive:
			positives = append(positives, name)
		default:
			negatives = append(negatives, name)
		}
	}
	sort.Strings(positives)
	sort.Strings(negatives)

	log.WithFields(log.Fields{
		"positive_class": p.Positive,
		"positive":       len(positives),
		"negative":       len(negatives),
	}).Info("二値分類の件数")

	if p.Balance {
		targetCount := len(positives)
		if len(negatives) < targetCount {
			targetCount = len(negatives)
		}

		rng := rand.New(rand.NewSource(p.Seed))
		rng.Shuffle(len(positives), func(i, j int) {
			positives[i], positives[j] = positives[j], positives[i]
		})
		rng.Shuffle(len(negatives), func(i, j int) {
			negatives[i], negatives[j] = negatives[j], negatives[i]
		})

		plan.Dropped = append(plan.Dropped, positives[targetCount:]...)
		plan.Dropped = append(plan.Dropped, negatives[targetCount:]...)
		sort.Strings(plan.Dropped)
		positives = positives[:targetCount]
		negatives = negatives[:targetCount]

		log.WithFields(log.Fields{
			"per_label": targetCount,
			"dropped":   len(plan.Dropped),
		}).Info("均等化しました")
	}

	for _, group := range []struct {
		label  string
		images []string
	}{
		{PositiveLabel, positives},
		{NegativeLabel, negatives},
	} {
		train, validation := SplitImages(group.images, p.Ratio, p.Seed)
		for _, name := range train {
			plan.Moves = append(plan.Moves, newMove(p.SourceDir, p.TrainRoot, name, group.label))
		}
		for _, name := range validation {
			plan.Moves = append(plan.Moves, newMove(p.SourceDir, p.ValidationRoot, name, group.label))
		}
	}

	return plan
}
