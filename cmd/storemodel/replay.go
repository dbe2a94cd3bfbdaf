package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"storemodel/internal/format"
	"storemodel/internal/journal"
)

var replayCmd = &cobra.Command{
	Use:   "replay <journal>",
	Short: "replays a session journal against a fresh model and reports the first divergence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fc := cfg.Format
		if cfg.Geometry != nil {
			fc = cfg.Geometry.Config()
		}
		if err := applyFormatFlags(cmd.Flags(), &fc); err != nil {
			return err
		}
		f, err := format.New(fc)
		if err != nil {
			return err
		}

		recs, err := journal.Load(args[0], logger)
		if err != nil {
			return err
		}
		m, err := journal.Replay(recs, f)
		if err != nil {
			return err
		}
		capacity := m.Capacity()
		logger.Info("replay matched",
			zap.Int("records", len(recs)),
			zap.Int("entries", m.Len()),
			zap.Int("used", capacity.Used),
			zap.Int("total", capacity.Total))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d records, %d entries, %d/%d words used\n",
			len(recs), m.Len(), capacity.Used, capacity.Total)
		return err
	},
}

func init() {
	addFormatFlags(replayCmd.Flags())
}

// addFormatFlags declares overrides of the configured format, for journals of
// sessions created with their own format.
func addFormatFlags(fl *pflag.FlagSet) {
	fl.Int("word-size", 0, "override word size in bytes")
	fl.Int("total-capacity", 0, "override total capacity in words")
	fl.Int("max-key", 0, "override maximum key")
	fl.Int("max-value-len", 0, "override maximum value length in bytes")
	fl.Int("max-updates", 0, "override maximum updates per transaction")
}

// applyFormatFlags copies the format flags set on the command line into fc.
// Flags left unset keep the configured value; an explicit 0 is applied.
func applyFormatFlags(fl *pflag.FlagSet, fc *format.Config) error {
	for name, dst := range map[string]*int{
		"word-size":      &fc.WordSize,
		"total-capacity": &fc.TotalCapacity,
		"max-key":        &fc.MaxKey,
		"max-value-len":  &fc.MaxValueLen,
		"max-updates":    &fc.MaxUpdates,
	} {
		if !fl.Changed(name) {
			continue
		}
		v, err := fl.GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}
