package main

import (
	"time"

	"github.com/Shoebbirader4/Upstockbot/internal/config"
	"github.com/Shoebbirader4/Upstockbot/internal/features"
	"github.com/Shoebbirader4/Upstockbot/internal/labels"
	"github.com/Shoebbirader4/Upstockbot/internal/model"
	"github.com/Shoebbirader4/Upstockbot/internal/walkforward"
)

// collaborators wires the reference feature engineer, labeler and softmax
// model into fresh per-fold instances.
func collaborators(cfg config.Config) walkforward.Collaborators {
	return walkforward.Collaborators{
		NewFeatureEngineer: func() walkforward.FeatureEngineer {
			return features.NewEngineer(cfg.Features)
		},
		NewLabeler: func() walkforward.Labeler {
			return labels.NewLabeler(cfg.Labels)
		},
		NewModel: func(params walkforward.ModelParams) (walkforward.Model, error) {
			m, err := model.FromParams(params)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}

// foldRecorders fans fold observations out to several recorders
type foldRecorders []walkforward.Recorder

func (rs foldRecorders) ObserveFold(status string, d time.Duration) {
	for _, r := range rs {
		r.ObserveFold(status, d)
	}
}
