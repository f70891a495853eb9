// Command pagemark converts documents to Markdown through a pagemark server.
//
// PDFs are rendered locally and sent page by page to the server's vision
// model; images go as a single page; DOCX files are converted server-side.
//
// Usage:
//
//	pagemark extract report.pdf --pages "1-3,5" --out report.md
//	pagemark config preset gpt-4o --api-key sk-...
//	pagemark probe
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗ %v", err))
		os.Exit(1)
	}
}
