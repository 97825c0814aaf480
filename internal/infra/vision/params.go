package vision

import (
	"errors"

	"compare/internal/config"
)

// ErrEngineUnavailable is returned by builds without the gocv tag.
var ErrEngineUnavailable = errors.New("gocv build tag is not enabled")

// Params tunes feature matching and differencing.
type Params struct {
	MaxFeatures   int
	Ratio         float64
	MinMatches    int
	DiffThreshold float64
	// MinResponse rejects phase correlation peaks weaker than this.
	MinResponse float64
}

func ParamsFromConfig(c config.CompareConfig) Params {
	return Params{
		MaxFeatures:   c.MaxFeatures,
		Ratio:         c.Ratio,
		MinMatches:    c.MinMatches,
		DiffThreshold: c.DiffThreshold,
		MinResponse:   0.05,
	}
}
