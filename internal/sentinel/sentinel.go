// Package sentinel encodes and decodes the trailing markers the extract
// endpoint appends to its streamed Markdown: a usage marker on success and a
// stream-error marker when the provider stream breaks.
package sentinel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmylchreest/pagemark/internal/models"
)

var (
	usagePattern = regexp.MustCompile(`\n<!--EXTRACT_USAGE:\{"prompt_tokens":(\d+),"completion_tokens":(\d+)\}-->\s*$`)
	errorPattern = regexp.MustCompile(`<!--EXTRACT_STREAM_ERROR:(.+?)-->\s*$`)
)

// Result is the decoded tail of a streamed page.
type Result struct {
	Markdown    string
	Usage       *models.Usage
	StreamError string
}

// Failed reports whether the stream ended with an error marker.
func (r Result) Failed() bool {
	return r.StreamError != ""
}

// Parse inspects the end of raw. The error marker wins over the usage marker;
// when it is present Markdown is empty because the partial text is unusable.
// Markers not anchored at the end of the text are left untouched.
func Parse(raw string) Result {
	if m := errorPattern.FindStringSubmatch(raw); m != nil {
		return Result{StreamError: m[1]}
	}
	return ParseUsage(raw)
}

// ParseUsage strips a trailing usage marker and returns the usage it carried.
func ParseUsage(raw string) Result {
	loc := usagePattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return Result{Markdown: raw}
	}
	prompt, err1 := strconv.Atoi(raw[loc[2]:loc[3]])
	completion, err2 := strconv.Atoi(raw[loc[4]:loc[5]])
	if err1 != nil || err2 != nil {
		return Result{Markdown: raw}
	}
	return Result{
		Markdown: raw[:loc[0]],
		Usage:    &models.Usage{PromptTokens: prompt, CompletionTokens: completion},
	}
}

// FormatUsage renders the usage marker written after a successful stream.
func FormatUsage(u models.Usage) string {
	return fmt.Sprintf("\n<!--EXTRACT_USAGE:{\"prompt_tokens\":%d,\"completion_tokens\":%d}-->", u.PromptTokens, u.CompletionTokens)
}

// FormatStreamError renders the error marker written when the stream breaks.
// Line breaks and the marker terminator are flattened so Parse can match it.
func FormatStreamError(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	msg = strings.ReplaceAll(msg, "-->", "- ->")
	if msg == "" {
		msg = "stream interrupted"
	}
	return "\n\n<!--EXTRACT_STREAM_ERROR:" + msg + "-->"
}
