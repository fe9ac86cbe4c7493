package connector

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/dataset"
	"github.com/relloyd/etl-engine/driver"
	"github.com/relloyd/etl-engine/file"
	h "github.com/relloyd/etl-engine/helper"
)

const (
	CsvParamFile      = "file"
	CsvParamDelimiter = "delimiter"
	CsvParamHeader    = "header"
	CsvParamMaxRows   = "maxFileRows"
	CsvParamGzip      = "gzip"
)

// CsvConnector reads a dataset from a CSV file or writes one to CSV files.
// The file name comes from the "file" option, else the object name.
type CsvConnector struct {
	out    *file.CSVFileOutput
	fields []string
}

func (c *CsvConnector) GetDataSetConnectorParams() []string {
	return []string{CsvParamFile, CsvParamDelimiter, CsvParamHeader, CsvParamMaxRows, CsvParamGzip}
}

func csvFileName(p *Params) (string, error) {
	fileName := p.Option(CsvParamFile, p.ObjectName)
	if fileName == "" {
		return "", errors.New("csv connector needs a file name")
	}
	return fileName, nil
}

func csvDelimiter(p *Params) (rune, error) {
	d := p.Option(CsvParamDelimiter, ",")
	if d == `\t` {
		return '\t', nil
	}
	if len([]rune(d)) != 1 {
		return 0, fmt.Errorf("csv delimiter %q must be one character", d)
	}
	return []rune(d)[0], nil
}

func (c *CsvConnector) Populate(ctx context.Context, p *Params, ds *dataset.DataSet, _ driver.Driver, before BeforeFunc, add AddRecordFunc) error {
	fileName, err := csvFileName(p)
	if err != nil {
		return err
	}
	delimiter, err := csvDelimiter(p)
	if err != nil {
		return err
	}
	hasHeader := h.GetTrueFalseStringAsBool(p.Option(CsvParamHeader, "true"))
	in, err := file.OpenCSVFileInput(fileName, delimiter, hasHeader)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()
	var names []string
	first, err := in.Next()
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "error reading CSV file %v", fileName)
	}
	if hasHeader { // if the file names its columns...
		names = in.Header
	} else { // else name them by position...
		for idx := range first {
			names = append(names, "COL"+strconv.Itoa(idx+1))
		}
	}
	fields := make([]dataset.Field, len(names))
	for idx, n := range names {
		fields[idx] = dataset.Field{Name: strings.TrimSpace(n), Type: dataset.TypeString, Nullable: true}
		names[idx] = fields[idx].Name
	}
	ds.SetFields(fields)
	if before != nil {
		if err = before(ds); err != nil {
			return err
		}
	}
	line := first
	for line != nil {
		if err = ctx.Err(); err != nil {
			return err
		}
		values := make([]interface{}, len(line))
		for idx, v := range line {
			values[idx] = v
		}
		rec, err := dataset.NewRecordFromValues(names, values)
		if err != nil {
			return errors.Wrapf(err, "bad row in CSV file %v", fileName)
		}
		if err = addRow(ds, rec, add); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
		line, err = in.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return errors.Wrapf(err, "error reading CSV file %v", fileName)
		}
	}
	return nil
}

func (c *CsvConnector) PrePersist(_ context.Context, p *Params, ds *dataset.DataSet, _ driver.Driver) error {
	fileName, err := csvFileName(p)
	if err != nil {
		return err
	}
	maxRows, err := strconv.Atoi(p.Option(CsvParamMaxRows, "0"))
	if err != nil {
		return errors.Wrap(err, "bad value for csv option maxFileRows")
	}
	useGzip := h.GetTrueFalseStringAsBool(p.Option(CsvParamGzip, "false"))
	dir, base := filepath.Split(fileName)
	if strings.EqualFold(filepath.Ext(base), ".gz") { // if the file name asks for gzip...
		useGzip = true
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	if ext == "" {
		ext = "csv"
	}
	if dir == "" {
		dir = "."
	}
	c.out, err = file.NewCSVFileOutput(p.Log, dir, strings.TrimSuffix(base, filepath.Ext(base)), ext, maxRows, 0, useGzip)
	if err != nil {
		return err
	}
	c.fields = ds.FieldNames()
	if h.GetTrueFalseStringAsBool(p.Option(CsvParamHeader, "true")) {
		c.out.SetHeader(c.fields)
	}
	return nil
}

func (c *CsvConnector) InlinePersist(_ context.Context, _ *Params, _ *dataset.DataSet, _ driver.Driver, rec dataset.Record) error {
	if c.out == nil {
		return errors.New("csv connector was not prepared for writing")
	}
	line := make([]string, len(c.fields))
	for idx, f := range c.fields {
		line[idx] = rec.GetDataAsString(f)
	}
	_, err := c.out.WriteRecord(line)
	return err
}

func (c *CsvConnector) PostPersist(_ context.Context, p *Params, _ *dataset.DataSet, _ driver.Driver) error {
	if c.out == nil {
		return nil
	}
	p.Log.Debug(p.BlockName, " wrote ", c.out.TotalRows(), " CSV rows")
	err := c.out.Close()
	c.out = nil
	return err
}

func (c *CsvConnector) CleanUp(context.Context, *Params, *dataset.DataSet, driver.Driver) error {
	if c.out != nil {
		err := c.out.Close()
		c.out = nil
		return err
	}
	return nil
}
