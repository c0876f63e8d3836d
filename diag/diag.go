// Package diag renders compile errors for the terminal: a colored header
// line with the source position, the offending source line, and a caret
// under the column. Rendering degrades to the bare message when the source
// file cannot be re-read.
package diag

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/velalang/vela/token"
)

var (
	ErrorColorFG = pterm.FgRed
	ErrorStyleBG = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	InfoColorFG  = pterm.FgCyan

	verbose = false
)

// SetVerbose enables phase progress messages.
func SetVerbose(on bool) {
	verbose = on
}

// Verbosef prints a progress message when verbose output is on.
func Verbosef(format string, args ...any) {
	if !verbose {
		return
	}
	InfoColorFG.Print(" info ")
	fmt.Fprintf(os.Stderr, " "+format+"\n", args...)
}

// PrintError renders one compile error to stderr.
func PrintError(err *token.CompileError) {
	ErrorStyleBG.Print(" error ")
	fmt.Fprintf(os.Stderr, " %s\n", err.Error())

	if err.Token.FileName == "" || err.Token.Line == 0 {
		return
	}
	line, ok := sourceLine(err.Token.FileName, err.Token.Line)
	if !ok {
		return
	}

	num := strconv.Itoa(err.Token.Line)
	InfoColorFG.Print(num)
	fmt.Fprintf(os.Stderr, " |  %s\n", strings.ReplaceAll(line, "\t", "    "))

	col := caretColumn(line, err.Token.Column)
	fmt.Fprint(os.Stderr, strings.Repeat(" ", len(num)), " |  ")
	ErrorColorFG.Println(strings.Repeat(" ", col) + "^")
}

// PrintFatal reports a driver-level failure and exits.
func PrintFatal(msg string) {
	ErrorStyleBG.Print(" error ")
	fmt.Fprintf(os.Stderr, " %s\n", msg)
	os.Exit(1)
}

func sourceLine(path string, line int) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		if n == line {
			return sc.Text(), true
		}
	}
	return "", false
}

// caretColumn converts a 1-based source column to a display column,
// counting each tab before it as four spaces.
func caretColumn(line string, col int) int {
	out := 0
	for i, c := range line {
		if i >= col-1 {
			break
		}
		if c == '\t' {
			out += 4
		} else {
			out++
		}
	}
	return out
}
