package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-narrator/internal/prosody"
	"github.com/loqalabs/loqa-narrator/internal/segment"
)

var segmentJSON bool

var segmentCmd = &cobra.Command{
	Use:   "segment [file]",
	Short: "Show how text is split into sentences and which prosody each gets",
	Long: `segment reads text from the given file, or stdin when the file is omitted
or "-", and prints one line per sentence with its delivery profile.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSegment,
}

func init() {
	segmentCmd.Flags().BoolVar(&segmentJSON, "json", false, "Print sentences as JSON")
	rootCmd.AddCommand(segmentCmd)
}

type segmentLine struct {
	segment.Sentence
	Profile prosody.Profile `json:"profile"`
}

func runSegment(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	sentences := segment.Split(text)
	lines := make([]segmentLine, 0, len(sentences))
	for _, s := range sentences {
		lines = append(lines, segmentLine{Sentence: s, Profile: prosody.Classify(s.Text)})
	}

	out := cmd.OutOrStdout()
	if segmentJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(lines)
	}
	for _, l := range lines {
		fmt.Fprintf(out, "%3d  %-52s %s\n", l.Index, l.Text, l.Profile)
	}
	return nil
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}
