package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"skinlesion-prep/internal/metadata"
)

func binaryFixture(t *testing.T) (*metadata.Index, []string) {
	idx := mustIndex(t, "M1,mel\nM2,mel\nM3,mel\nN1,nv\nN2,nv\nN3,bkl\nN4,df\nN5,nv\nN6,bcc\n")
	images := []string{"M1.jpg", "M2.jpg", "M3.jpg", "N1.jpg", "N2.jpg", "N3.jpg", "N4.jpg", "N5.jpg", "N6.jpg", "X1.jpg"}
	return idx, images
}

func TestBinaryPlanner_Balanced(t *testing.T) {
	idx, images := binaryFixture(t)
	p := &BinaryPlanner{
		Planner: Planner{
			SourceDir: "Images", TrainRoot: "Train", ValidationRoot: "Validation",
			Ratio: 0.67, Seed: 10, Index: idx,
		},
		Positive: metadata.Melanoma,
		Balance:  true,
	}

	plan := p.Plan(images)

	assert.Equal(t, []string{"X1.jpg"}, plan.Unmatched)
	assert.Len(t, plan.Dropped, 3)
	assert.Equal(t, map[string]map[string]int{
		"Train":      {PositiveLabel: 2, NegativeLabel: 2},
		"Validation": {PositiveLabel: 1, NegativeLabel: 1},
	}, countMoves(plan.Moves))

	for _, m := range plan.Moves {
		class, _ := idx.Lookup(m.File)
		if class == metadata.Melanoma {
			assert.Equal(t, PositiveLabel, m.Label)
		} else {
			assert.Equal(t, NegativeLabel, m.Label)
		}
	}
}

func TestBinaryPlanner_Unbalanced(t *testing.T) {
	idx, images := binaryFixture(t)
	p := &BinaryPlanner{
		Planner: Planner{
			SourceDir: "Images", TrainRoot: "Train", ValidationRoot: "Validation",
			Ratio: 0.67, Seed: 10, Index: idx,
		},
		Positive: metadata.Melanoma,
	}

	plan := p.Plan(images)

	assert.Empty(t, plan.Dropped)
	assert.Equal(t, map[string]map[string]int{
		"Train":      {PositiveLabel: 2, NegativeLabel: 4},
		"Validation": {PositiveLabel: 1, NegativeLabel: 2},
	}, countMoves(plan.Moves))
}

func TestBinaryLabels(t *testing.T) {
	assert.Equal(t, []string{"positive", "negative"}, BinaryLabels())
}
