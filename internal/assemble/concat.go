package assemble

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteConcatList writes an ffmpeg concat demuxer list, one quoted path per
// line, in the given order.
func WriteConcatList(w io.Writer, paths []string) error {
	bw := bufio.NewWriter(w)
	for _, path := range paths {
		if strings.ContainsAny(path, "\n\r") {
			return fmt.Errorf("concat path contains a line break: %q", path)
		}
		if _, err := fmt.Fprintf(bw, "file '%s'\n", quoteConcatPath(path)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// quoteConcatPath escapes single quotes for the concat demuxer's quoting rules.
func quoteConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}
