// Package loader implements the bulk JSON ingestion front door of
// SPEC_FULL.md §6: a JSONPath selector picks record nodes out of an external
// JSON document, each node is mapped onto a collection's schema and encoded
// via internal/document, then handed to Collection.MultiInsert in batches.
package loader

import (
	"encoding/base64"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/embeddb/embeddb/internal/collection"
	"github.com/embeddb/embeddb/internal/dberr"
	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/document"
)

// Load parses data as JSON, selects record nodes with the JSONPath
// expression pathExpr, encodes each against schema, and inserts them into c
// in batches of batchSize. Returns the total number of documents inserted.
func Load(c *collection.Collection, schema *docschema.Schema, data []byte, pathExpr string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 256
	}

	root, err := oj.Parse(data)
	if err != nil {
		return 0, dberr.Wrap(dberr.InvalidArgument, "parse JSON document", err)
	}

	expr, err := jp.ParseString(pathExpr)
	if err != nil {
		return 0, dberr.Wrap(dberr.InvalidArgument, "parse JSONPath expression "+pathExpr, err)
	}

	nodes := expr.Get(root)
	total := 0
	batch := make([][]byte, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := c.MultiInsert(batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, node := range nodes {
		record, ok := node.(map[string]interface{})
		if !ok {
			return total, dberr.Newf(dberr.SchemaMismatch, "JSONPath %q selected a non-object node (%T)", pathExpr, node)
		}
		buf, err := encodeRecord(schema, record)
		if err != nil {
			return total, err
		}
		batch = append(batch, buf)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// encodeRecord builds one schema-encoded document buffer from a JSON object,
// recursing into SUBDOCUMENT fields.
func encodeRecord(schema *docschema.Schema, record map[string]interface{}) ([]byte, error) {
	b := document.NewBuilder(schema)
	for _, f := range schema.Fields {
		raw, present := record[f.Name]
		if !present || raw == nil {
			if f.Required {
				return nil, dberr.Newf(dberr.SchemaMismatch, "required field %q missing from JSON record", f.Name)
			}
			continue
		}

		var err error
		switch {
		case f.Kind.IsInteger():
			err = setInt(b, f, raw)
		case f.Kind.IsFloat():
			err = setFloat(b, f, raw)
		case f.Kind == docschema.String:
			err = setString(b, f, raw)
		case f.Kind == docschema.Blob:
			err = setBlob(b, f, raw)
		case f.Kind == docschema.Subdocument:
			err = setSubdocument(b, f, raw)
		}
		if err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func setInt(b *document.Builder, f docschema.Field, raw interface{}) error {
	n, ok := raw.(float64)
	if !ok {
		return dberr.Newf(dberr.TypeMismatch, "field %q expected a JSON number, got %T", f.Name, raw)
	}
	return b.SetInt64(f.Name, int64(n))
}

func setFloat(b *document.Builder, f docschema.Field, raw interface{}) error {
	n, ok := raw.(float64)
	if !ok {
		return dberr.Newf(dberr.TypeMismatch, "field %q expected a JSON number, got %T", f.Name, raw)
	}
	return b.SetFloat64(f.Name, n)
}

func setString(b *document.Builder, f docschema.Field, raw interface{}) error {
	s, ok := raw.(string)
	if !ok {
		return dberr.Newf(dberr.TypeMismatch, "field %q expected a JSON string, got %T", f.Name, raw)
	}
	return b.SetString(f.Name, []byte(s))
}

// setBlob decodes a base64-encoded JSON string into raw bytes: JSON has no
// native binary type, so a blob field's textual representation is base64,
// the same convention the JSON-over-HTTP pack repos use for byte fields.
func setBlob(b *document.Builder, f docschema.Field, raw interface{}) error {
	s, ok := raw.(string)
	if !ok {
		return dberr.Newf(dberr.TypeMismatch, "field %q expected a base64 JSON string, got %T", f.Name, raw)
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return dberr.Wrap(dberr.SchemaMismatch, "decode base64 for field "+f.Name, err)
	}
	return b.SetString(f.Name, decoded)
}

func setSubdocument(b *document.Builder, f docschema.Field, raw interface{}) error {
	nested, ok := raw.(map[string]interface{})
	if !ok {
		return dberr.Newf(dberr.TypeMismatch, "field %q expected a JSON object, got %T", f.Name, raw)
	}
	if f.Nested == nil {
		return dberr.Newf(dberr.SchemaMismatch, "field %q declared SUBDOCUMENT with no nested schema", f.Name)
	}
	buf, err := encodeRecord(f.Nested, nested)
	if err != nil {
		return err
	}
	return b.SetSubdocument(f.Name, buf)
}
