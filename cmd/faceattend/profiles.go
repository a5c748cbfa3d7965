package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Print the enrolled profiles and their thresholds",
	RunE:  runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	set := a.registry.Profiles()
	fmt.Printf("%d profile(s), mode %s, frame skip %d\n\n", set.Len(), a.vision.Mode(), set.AdaptiveFrameSkip())
	fmt.Printf("%-30s %7s %9s %9s %7s %7s  %s\n", "LABEL", "SAMPLES", "TIGHTNESS", "THRESHOLD", "MARGIN", "STDDEV", "NEAREST")
	for _, p := range set.Snapshot() {
		nearest := "-"
		if other, dist, ok := a.registry.NearestOther(p); ok {
			nearest = fmt.Sprintf("%s (%.3f)", other, dist)
		}
		fmt.Printf("%-30s %7d %9.3f %9.3f %7.3f %7.3f  %s\n",
			p.Label, len(p.Gallery), p.Tightness, p.AbsoluteThreshold, p.RelativeMargin, p.StdDev, nearest)
	}
	return nil
}
