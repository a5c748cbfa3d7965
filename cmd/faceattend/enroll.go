package main

import (
	"fmt"
	"os"

	"face-attendance-go/internal/enrollment"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <id> <name> <image>...",
	Short: "Enroll an identity from photos",
	Long: `Detects the largest face in every image, stores its embedding and crop in
the gallery folder "<id>_<name>" and curates the identity afterwards.`,
	Args: cobra.MinimumNArgs(3),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	id, name, paths := args[0], args[1], args[2:]
	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Encoding faces"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	captures := make([]enrollment.Capture, 0, len(paths))
	for _, p := range paths {
		emb, jpeg, ok := a.vision.EncodeCaptureFile(p)
		_ = bar.Add(1)
		if !ok {
			log.Warnf("No usable face in %s", p)
			continue
		}
		captures = append(captures, enrollment.Capture{Embedding: emb, Image: jpeg})
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	res, err := a.enroller.Enroll(id, name, captures)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %d of %d capture(s) for %s\n", res.Saved, len(paths), res.Identity.Label())
	printCuration(res)
	return nil
}
