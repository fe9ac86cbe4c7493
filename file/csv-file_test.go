package file

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/relloyd/etl-engine/logger"
	"github.com/stretchr/testify/require"
)

var header = []string{"col1", "col2"}

var data = [][]string{
	{"Line1", "Hello Readers of"},
	{"Line2", "golangcode.com"},
	{"Line3", "reeslloyd.com"},
	{"Line4", "reeslloyd4.com"}}

func readAll(t *testing.T, fileName string) [][]string {
	in, err := OpenCSVFileInput(fileName, 0, true)
	require.NoError(t, err)
	defer in.Close()
	require.Equal(t, header, in.Header)
	var retval [][]string
	for {
		r, err := in.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		retval = append(retval, r)
	}
	return retval
}

func TestCSVFileRotation(t *testing.T) {
	log := logger.NewLogger("csv test", "error", false)
	dir := t.TempDir()
	out, err := NewCSVFileOutput(log, dir, "test", "csv", 3, 0, false)
	require.NoError(t, err)
	out.SetHeader(header)
	var fileNames []string
	for _, value := range data {
		fileName, err := out.WriteRecord(value)
		require.NoError(t, err)
		if fileName != "" {
			fileNames = append(fileNames, fileName)
		}
	}
	require.NoError(t, out.Close())
	require.Equal(t, []string{filepath.Join(dir, "test_000001.csv"), filepath.Join(dir, "test_000002.csv")}, fileNames)
	require.Equal(t, out.ListOfOutputFiles, fileNames)
	require.Equal(t, data[:3], readAll(t, fileNames[0]))
	require.Equal(t, data[3:], readAll(t, fileNames[1]))
	require.Equal(t, 4, out.TotalRows())
}

func TestCSVFileGzip(t *testing.T) {
	log := logger.NewLogger("csv test", "error", false)
	dir := t.TempDir()
	out, err := NewCSVFileOutput(log, dir, "test", "csv", 0, 0, true)
	require.NoError(t, err)
	out.SetHeader(header)
	for _, value := range data {
		_, err = out.WriteRecord(value)
		require.NoError(t, err)
	}
	require.NoError(t, out.Close())
	require.Equal(t, []string{filepath.Join(dir, "test.csv.gz")}, out.ListOfOutputFiles)
	require.Equal(t, data, readAll(t, out.ListOfOutputFiles[0]))
}
