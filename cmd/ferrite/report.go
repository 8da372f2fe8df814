package main

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/ferrite-lang/ferrite/diag"
)

var (
	SuccessColorFG = pterm.FgLightGreen
	SuccessStyleBG = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	WarnColorFG    = pterm.FgYellow
	WarnStyleBG    = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	ErrorColorFG   = pterm.FgRed
	ErrorStyleBG   = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
)

// printErrorMessage prints a standard Go error to the console.
func printErrorMessage(tag string, err error) {
	ErrorStyleBG.Print(tag)
	ErrorColorFG.Println(" " + err.Error())
}

// printDiagnostic renders one structured diagnostic with its position,
// stage and stable category string.
func printDiagnostic(path string, d *diag.Diagnostic) {
	pos := fmt.Sprintf("%s:%d:%d", path, d.Span.Start.Line, d.Span.Start.Column)
	label := fmt.Sprintf("[%s/%s]", d.Stage, d.Category)
	if d.Severity == diag.Error {
		ErrorStyleBG.Print("Error")
		ErrorColorFG.Printf(" %s %s %s\n", pos, label, d.Message)
	} else {
		WarnStyleBG.Print("Warning")
		WarnColorFG.Printf(" %s %s %s\n", pos, label, d.Message)
	}
}

// printSummary prints the per-run tally.
func printSummary(generated, failed int) {
	if failed > 0 {
		ErrorStyleBG.Print("Failed")
		ErrorColorFG.Printf(" %d function(s) failed, %d generated\n", failed, generated)
		return
	}
	SuccessStyleBG.Print("Done")
	SuccessColorFG.Printf(" %d function(s) generated\n", generated)
}
