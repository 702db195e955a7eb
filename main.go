// Command threadforge generates screw-thread geometry: single male or
// female threads, calibration batches that step the thread tolerances
// across a row of samples, and job scripts that combine both. Geometry is
// built on an sdfx backend and written as binary STL.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), err)
		os.Exit(1)
	}
}
