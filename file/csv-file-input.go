package file

import (
	"compress/gzip"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// CSVFileInput reads records from a CSV file, transparently decompressing .gz files.
type CSVFileInput struct {
	Header []string
	file   *os.File
	gz     *gzip.Reader
	reader *csv.Reader
}

// OpenCSVFileInput opens fileName. If hasHeader is true the first record is read into Header.
func OpenCSVFileInput(fileName string, delimiter rune, hasHeader bool) (*CSVFileInput, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open CSV file %v", fileName)
	}
	in := &CSVFileInput{file: f}
	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(fileName), ".gz") {
		if in.gz, err = gzip.NewReader(f); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "unable to read gzip file %v", fileName)
		}
		r = in.gz
	}
	in.reader = csv.NewReader(r)
	if delimiter != 0 {
		in.reader.Comma = delimiter
	}
	if hasHeader {
		if in.Header, err = in.reader.Read(); err != nil {
			_ = in.Close()
			if err == io.EOF {
				return nil, errors.Errorf("CSV file %v has no header", fileName)
			}
			return nil, err
		}
	}
	return in, nil
}

// Next returns the next record or io.EOF.
func (in *CSVFileInput) Next() ([]string, error) {
	return in.reader.Read()
}

func (in *CSVFileInput) Close() error {
	if in.gz != nil {
		_ = in.gz.Close()
	}
	return in.file.Close()
}
