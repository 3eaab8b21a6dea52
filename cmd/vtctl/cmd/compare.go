package cmd

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/visual-test/internal/compare"
)

// ErrImagesDiffer is returned when the comparison exceeds the allowed failures
var ErrImagesDiffer = errors.New("images differ")

type compareOptions struct {
	DiffPath        string
	Threshold       float64
	AllowedFailures int
	IncludeAA       bool
}

// NewCompareCommand compares two PNG files with the server's comparator
func NewCompareCommand(load configLoader) *cobra.Command {
	opts := &compareOptions{}

	cmd := &cobra.Command{
		Use:   "compare <baseline.png> <candidate.png>",
		Short: "Compare two screenshots",
		Long:  "Compare two PNG screenshots and optionally write the diff image. Thresholds default to the configured values.",
		Example: `  vtctl compare baseline/mac-home.png tmp/mac-home.png
  vtctl compare a.png b.png --diff diff.png --allowed-failures 30`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("threshold") {
				opts.Threshold = cfg.Match.Threshold
			}
			if !flags.Changed("allowed-failures") {
				opts.AllowedFailures = cfg.Match.AllowedFailures
			}
			if !flags.Changed("include-aa") {
				opts.IncludeAA = cfg.Match.IncludeAA
			}
			return runCompare(cmd, args[0], args[1], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.DiffPath, "diff", "", "Write the diff image to this path")
	flags.Float64Var(&opts.Threshold, "threshold", 0.3, "Color distance tolerance between 0 and 1")
	flags.IntVar(&opts.AllowedFailures, "allowed-failures", 0, "Number of differing pixels still considered a match")
	flags.BoolVar(&opts.IncludeAA, "include-aa", true, "Count anti-aliased pixels as differences")

	return cmd
}

func runCompare(cmd *cobra.Command, baselinePath, candidatePath string, opts *compareOptions) error {
	baseline, err := decodeFile(baselinePath)
	if err != nil {
		return err
	}
	candidate, err := decodeFile(candidatePath)
	if err != nil {
		return err
	}

	res, err := compare.Compare(baseline, candidate, compare.DefaultOptions(opts.Threshold, opts.IncludeAA))
	if err != nil {
		return err
	}

	if opts.DiffPath != "" {
		data, err := compare.EncodePNG(res.Diff)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.DiffPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write diff image: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if compare.Passes(res.DiffPixels, opts.AllowedFailures) {
		fmt.Fprintf(out, "SUCCESS: %d pixels differ (%dx%d, allowed %d)\n", res.DiffPixels, res.Width, res.Height, opts.AllowedFailures)
		return nil
	}
	fmt.Fprintf(out, "ERROR: %d pixels differ (%dx%d, allowed %d)\n", res.DiffPixels, res.Width, res.Height, opts.AllowedFailures)
	return fmt.Errorf("%w: %d pixels", ErrImagesDiffer, res.DiffPixels)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	img, err := compare.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
