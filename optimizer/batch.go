package optimizer

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/teatak/latseg/segmenter"
	"github.com/teatak/latseg/util"
)

// BatchSegment re-segments every line of inputPath with seg and writes the
// units separated by spaces to outputPath, leaving punctuation out. Lines
// are decoded batchSize at a time.
func BatchSegment(seg *segmenter.Segmenter, inputPath, outputPath string, batchSize int) error {
	lines, err := readLines(inputPath)
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", outputPath)
	}
	defer outFile.Close()
	writer := bufio.NewWriter(outFile)

	written := 0
	for start := 0; start < len(lines); start += batchSize {
		end := start + batchSize
		if end > len(lines) {
			end = len(lines)
		}
		cuts, err := seg.CutBatch(lines[start:end])
		if err != nil {
			return errors.WithMessagef(err, "segmenting lines %d-%d of %q", start+1, end, inputPath)
		}
		for _, parts := range cuts {
			var filtered []string
			for _, p := range parts {
				if !util.IsPunctuation(p) {
					filtered = append(filtered, p)
				}
			}
			if len(filtered) > 0 {
				writer.WriteString(strings.Join(filtered, " "))
				writer.WriteByte('\n')
				written++
			}
		}
	}
	if err := writer.Flush(); err != nil {
		return errors.Wrapf(err, "writing %q", outputPath)
	}
	klog.V(1).Infof("[segment] wrote %d of %d lines to %s", written, len(lines), outputPath)
	return nil
}

// readLines returns the non-blank lines of path, trimmed.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		if t := strings.TrimSpace(scanner.Text()); t != "" {
			lines = append(lines, t)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", path)
	}
	return lines, nil
}
