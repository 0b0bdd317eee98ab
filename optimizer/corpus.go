package optimizer

import (
	"io"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// Corpus is a memory-mapped text file read front to back.
type Corpus struct {
	*io.SectionReader
	reader *mmap.ReaderAt
}

// OpenCorpus maps path into memory.
func OpenCorpus(path string) (*Corpus, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %s", path)
	}
	return &Corpus{SectionReader: io.NewSectionReader(reader, 0, int64(reader.Len())), reader: reader}, nil
}

// Close unmaps the file.
func (c *Corpus) Close() error {
	return c.reader.Close()
}
