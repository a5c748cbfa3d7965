package main

import (
	"errors"
	"fmt"
	"os"

	"face-attendance-go/internal/enrollment"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var curateAll bool

var curateCmd = &cobra.Command{
	Use:   "curate [identity]",
	Short: "Remove outlier and weak samples from identity galleries",
	Long: `Runs the curator over one identity (folder, id or name) or, with --all,
over every identity and reloads the profiles once at the end.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if curateAll && len(args) > 0 {
			return errors.New("--all takes no identity argument")
		}
		if !curateAll && len(args) != 1 {
			return errors.New("expected exactly one identity or --all")
		}
		return nil
	},
	RunE: runCurate,
}

func init() {
	curateCmd.Flags().BoolVarP(&curateAll, "all", "a", false, "Curate every identity")
	rootCmd.AddCommand(curateCmd)
}

func runCurate(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if !curateAll {
		res, err := a.enroller.Curate(args[0])
		if err != nil {
			return err
		}
		printCuration(res)
		return nil
	}

	var bar *progressbar.ProgressBar
	results, err := a.enroller.CurateAll(func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Curating galleries"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}
		_ = bar.Set(done)
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}
	for _, res := range results {
		printCuration(res)
	}
	return nil
}

func printCuration(res enrollment.Result) {
	fmt.Printf("%-30s processed=%-3d outliers=%-3d weak=%-3d %s\n",
		res.Identity.Label(), res.Curation.ProcessedCount, res.Curation.RemovedOutlierCount,
		res.Curation.RemovedWeakCount, res.Curation.Message)
	if res.NearestIdentity != "" {
		fmt.Printf("  warning: very close to %s (cosine distance %.3f)\n", res.NearestIdentity, res.NearestDistance)
	}
}
