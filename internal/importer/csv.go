package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/drstein77/groceryweb/internal/models"
)

var (
	ErrEmptyFile     = errors.New("file is empty")
	ErrMissingColumn = errors.New("missing required column")
)

const bom = "\ufeff"

// RowError points at a CSV row that was skipped.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Result holds the rows that passed validation and the ones that did not.
type Result struct {
	Products []models.Product
	Errors   []RowError
}

type columns struct {
	name, category, price, quantity int
	width                           int
}

// Parse reads a CSV document with a header row. Only name and price
// columns are required; unknown columns are ignored.
func Parse(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				res.Errors = append(res.Errors, RowError{Line: parseErr.StartLine, Reason: parseErr.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}

		line, _ := cr.FieldPos(0)
		if len(record) != cols.width {
			res.Errors = append(res.Errors, RowError{
				Line:   line,
				Reason: fmt.Sprintf("expected %d fields, got %d", cols.width, len(record)),
			})
			continue
		}

		product, err := ValidateInput(models.ProductInput{
			Name:     field(record, cols.name),
			Category: field(record, cols.category),
			Price:    field(record, cols.price),
			Quantity: field(record, cols.quantity),
		})
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Reason: err.Error()})
			continue
		}
		res.Products = append(res.Products, product)
	}

	return res, nil
}

func mapColumns(header []string) (columns, error) {
	cols := columns{name: -1, category: -1, price: -1, quantity: -1, width: len(header)}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, bom)
		}
		var idx *int
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			idx = &cols.name
		case "category":
			idx = &cols.category
		case "price":
			idx = &cols.price
		case "quantity":
			idx = &cols.quantity
		}
		if idx != nil && *idx == -1 {
			*idx = i
		}
	}

	if cols.name == -1 {
		return cols, fmt.Errorf("%w: name", ErrMissingColumn)
	}
	if cols.price == -1 {
		return cols, fmt.Errorf("%w: price", ErrMissingColumn)
	}
	return cols, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}
