package reconcile

import (
	"errors"
	"strings"
	"time"

	"github.com/bindflow/runledger/internal/platform/env"
)

const externalRunIDPlaceholder = "{external_run_id}"

type Config struct {
	Interval time.Duration
	Batch    int
	// ScoreColumn is the result CSV column whose maximum becomes the primary score.
	ScoreColumn string
	// ScoreKeyTemplate locates the result CSV in the results bucket.
	ScoreKeyTemplate string
}

func ConfigFromEnv() (Config, error) {
	interval, err := env.Duration("RECONCILE_INTERVAL", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	batch, err := env.Int("RECONCILE_BATCH", 50)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Interval:         interval,
		Batch:            batch,
		ScoreColumn:      strings.TrimSpace(env.String("RECONCILE_SCORE_COLUMN", "Average_i_pTM")),
		ScoreKeyTemplate: strings.TrimSpace(env.String("RECONCILE_SCORE_KEY_TEMPLATE", "results/"+externalRunIDPlaceholder+"/ranker/s1_final_design_stats.csv")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("RECONCILE_INTERVAL must be > 0")
	}
	if c.Batch <= 0 {
		return errors.New("RECONCILE_BATCH must be > 0")
	}
	if c.ScoreColumn == "" {
		return errors.New("RECONCILE_SCORE_COLUMN is required")
	}
	if !strings.Contains(c.ScoreKeyTemplate, externalRunIDPlaceholder) {
		return errors.New("RECONCILE_SCORE_KEY_TEMPLATE must contain " + externalRunIDPlaceholder)
	}
	return nil
}

func (c Config) scoreKey(externalRunID string) string {
	return strings.ReplaceAll(c.ScoreKeyTemplate, externalRunIDPlaceholder, externalRunID)
}
