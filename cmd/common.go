package cmd

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/embeddb/embeddb/internal/collection"
	"github.com/embeddb/embeddb/internal/dberr"
	"github.com/embeddb/embeddb/internal/dbconfig"
	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/index"
)

func loadConfig() (dbconfig.Config, error) {
	if configPath == "" {
		return dbconfig.Default(), nil
	}
	return dbconfig.Load(configPath)
}

func loadSchema() (*docschema.Schema, error) {
	if schemaPath == "" {
		return nil, fmt.Errorf("--schema is required")
	}
	return docschema.Load(schemaPath)
}

// parseIndexFlag parses one "name:kind:column[:asc]" declaration.
func parseIndexFlag(s string) (collection.IndexDeclaration, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return collection.IndexDeclaration{}, fmt.Errorf("malformed --index %q, want name:kind:column[:asc]", s)
	}
	var kind index.Kind
	switch strings.ToLower(parts[1]) {
	case "equality":
		kind = index.Equality
	case "ordered":
		kind = index.Ordered
	case "vector":
		kind = index.Vector
	default:
		return collection.IndexDeclaration{}, fmt.Errorf("unknown index kind %q in --index %q", parts[1], s)
	}
	ascending := true
	if len(parts) >= 4 {
		v, err := strconv.ParseBool(parts[3])
		if err != nil {
			return collection.IndexDeclaration{}, fmt.Errorf("malformed ascending flag in --index %q: %w", s, err)
		}
		ascending = v
	}
	return collection.IndexDeclaration{Name: parts[0], Kind: kind, ColumnPath: parts[2], Ascending: ascending}, nil
}

func parseIndexFlags() ([]collection.IndexDeclaration, error) {
	decls := make([]collection.IndexDeclaration, 0, len(indexFlags))
	for _, s := range indexFlags {
		d, err := parseIndexFlag(s)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, nil
}

// openCollection wires a schema and index declarations into a Collection
// rooted at dbDir, named name. On an IndexCorrupted fault the process
// terminates here per SPEC_FULL.md §7 — the core itself only ever returns
// the typed error.
func openCollection(name string) (*collection.Collection, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}
	decls, err := parseIndexFlags()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	c, err := collection.Open(dbDir, name, schema, decls, cfg.MaxMappedRegions, cfg.DatafileMaxBytes, cfg.BlobBatchSize)
	if err != nil {
		if dberr.Is(err, dberr.IndexCorrupted) {
			log.Fatalf("embeddb: collection %q is corrupted: %v", name, err)
		}
		return nil, err
	}
	return c, nil
}
