package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/namelens/guildrest/internal/output"
)

// outputSink is where a command's rendered report goes: stdout or a file.
type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

var stdoutSink = func() *outputSink {
	return &outputSink{writer: os.Stdout, close: func() error { return nil }, path: "-"}
}

func (s *outputSink) write(rendered string) error {
	if !strings.HasSuffix(rendered, "\n") {
		rendered += "\n"
	}
	_, err := io.WriteString(s.writer, rendered)
	return err
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

// sanitizeFilename turns a report name such as a route name or bucket key
// into a safe file stem.
func sanitizeFilename(value string) string {
	clean := nonFilename.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	if clean = strings.Trim(clean, "-."); clean == "" {
		return "output"
	}
	return clean
}

func addOutputFlags(cmd *cobra.Command) {
	names := make([]string, 0, len(output.Formats))
	for _, f := range output.Formats {
		names = append(names, string(f))
	}
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: "+strings.Join(names, "|"))
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to <dir>/<name>.<ext>")
}

// openOutput resolves the output flags. name is the file stem used with
// --out-dir. Callers must close the returned sink.
func openOutput(cmd *cobra.Command, name string) (output.Format, *outputSink, error) {
	value, _ := cmd.Flags().GetString("output-format")
	format, err := output.ParseFormat(value)
	if err != nil {
		return "", nil, err
	}

	outPath, _ := cmd.Flags().GetString("out")
	outDir, _ := cmd.Flags().GetString("out-dir")
	outPath, outDir = strings.TrimSpace(outPath), strings.TrimSpace(outDir)

	switch {
	case outPath != "" && outDir != "":
		return "", nil, errors.New("--out and --out-dir are mutually exclusive")
	case outDir != "":
		outPath = filepath.Join(outDir, sanitizeFilename(name)+"."+format.Extension())
	case outPath == "" || outPath == "-":
		return format, stdoutSink(), nil
	}

	// #nosec G301 -- report directories are user-chosen
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(outPath)
	if err != nil {
		return "", nil, err
	}
	return format, &outputSink{writer: file, close: file.Close, path: outPath}, nil
}
