package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/batsim/core/battery"
)

var curveSteps int

var curveCmd = &cobra.Command{
	Use:   "curve",
	Short: "Print the open-circuit voltage of each battery over charge and wear",
	RunE:  runCurve,
}

func init() {
	curveCmd.Flags().IntVar(&curveSteps, "steps", 10, "number of charge intervals")
	rootCmd.AddCommand(curveCmd)
}

func runCurve(cmd *cobra.Command, args []string) error {
	if curveSteps < 1 {
		return fmt.Errorf("steps must be at least 1")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, b := range cfg.Batteries {
		if err := writeCurve(out, b.ID, b.Battery, curveSteps); err != nil {
			return err
		}
	}
	return nil
}

var curveWear = []float64{1, 0.75, 0.5, 0.25, 0}

func writeCurve(out io.Writer, id string, cfg battery.Config, steps int) error {
	c, err := battery.NewCurve(cfg.VoltageCurve)
	if err != nil {
		return fmt.Errorf("battery %s: %w", id, err)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\tcharge\t", id)
	for _, wear := range curveWear {
		fmt.Fprintf(w, "life %.0f%%\t", wear*100)
	}
	fmt.Fprintln(w)
	for i := 0; i <= steps; i++ {
		charge := float64(i) / float64(steps)
		fmt.Fprintf(w, "\t%.0f%%\t", charge*100)
		for _, wear := range curveWear {
			fmt.Fprintf(w, "%.2fV\t", battery.OpenCircuitVoltage(cfg, c, charge, wear))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
