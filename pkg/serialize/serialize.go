// Copyright © 2018 One Concern

package serialize

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/repobuf/pkg/errors"
)

// Supported output formats
const (
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
	FormatCSV    = "csv"
)

// ErrUnsupportedFormat is returned when looking up an unknown format
var ErrUnsupportedFormat = errors.New("unsupported output format")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is a key/value mapping produced by an ingestion actor
type Record map[string]interface{}

// Serializer transforms a sequence of records into lines
type Serializer func([]Record) ([][]byte, error)

// Lookup resolves output formats to serializers
type Lookup map[string]Serializer

// Default lookup with all built-in formats
func Default() Lookup {
	return Lookup{
		FormatJSON:   JSONLines,
		FormatNDJSON: JSONLines,
		FormatCSV:    CSV,
	}
}

// Get a serializer for some format
func (l Lookup) Get(format string) (Serializer, error) {
	s, ok := l[format]
	if !ok || s == nil {
		return nil, ErrUnsupportedFormat.Wrapf("format %q, expected one of %v", format, l.Formats())
	}
	return s, nil
}

// Formats enumerates the supported formats, sorted
func (l Lookup) Formats() []string {
	formats := make([]string, 0, len(l))
	for k := range l {
		formats = append(formats, k)
	}
	sort.Strings(formats)
	return formats
}

// JSONLines renders one JSON object per line, with sorted keys
func JSONLines(records []Record) ([][]byte, error) {
	lines := make([][]byte, 0, len(records))
	for _, record := range records {
		b, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("json serialization: %w", err)
		}
		lines = append(lines, append(b, '\n'))
	}
	return lines, nil
}

// CSV renders a header line with the sorted union of all record keys, then one line per record
func CSV(records []Record) ([][]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}
	columns := make(map[string]struct{})
	for _, record := range records {
		for k := range record {
			columns[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(columns))
	for k := range columns {
		header = append(header, k)
	}
	sort.Strings(header)

	lines := make([][]byte, 0, len(records)+1)
	line, err := csvLine(header)
	if err != nil {
		return nil, err
	}
	lines = append(lines, line)

	values := make([]string, len(header))
	for _, record := range records {
		for i, k := range header {
			v, ok := record[k]
			if !ok || v == nil {
				values[i] = ""
				continue
			}
			values[i] = fmt.Sprint(v)
		}
		if line, err = csvLine(values); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func csvLine(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("csv serialization: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv serialization: %w", err)
	}
	return buf.Bytes(), nil
}
