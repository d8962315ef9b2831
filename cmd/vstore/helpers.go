package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/andreyvit/vstore"
)

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// parseRecord decodes a JSON object given inline, or read from stdin when
// arg is "-".
func parseRecord(arg string, stdin io.Reader) (vstore.Record, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	}
	var rec vstore.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("parse record: expected a JSON object")
	}
	return rec, nil
}

// parseRecords accepts either one JSON object or an array of them.
func parseRecords(arg string, stdin io.Reader) ([]vstore.Record, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	}
	var list []vstore.Record
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	rec, err := parseRecord(string(data), nil)
	if err != nil {
		return nil, err
	}
	return []vstore.Record{rec}, nil
}

func openFileArg(name string, create bool) (*os.File, error) {
	if create {
		return os.Create(name)
	}
	return os.Open(name)
}
