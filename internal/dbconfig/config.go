// Package dbconfig implements the configuration struct of spec.md §6:
// { max_mapped_regions, datafile_max_bytes, blob_batch_size,
// sqlite_busy_retries, sqlite_busy_backoff_ms }, loadable from an HCL file.
package dbconfig

import (
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/embeddb/embeddb/internal/dberr"
)

// Config is the no-environment-variables configuration struct spec.md §6
// requires: "Configuration is a struct".
type Config struct {
	MaxMappedRegions    int   `hcl:"max_mapped_regions,optional"`
	DatafileMaxBytes    int64 `hcl:"datafile_max_bytes,optional"`
	BlobBatchSize       int   `hcl:"blob_batch_size,optional"`
	SQLiteBusyRetries   int   `hcl:"sqlite_busy_retries,optional"`
	SQLiteBusyBackoffMs int   `hcl:"sqlite_busy_backoff_ms,optional"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		MaxMappedRegions:    64,
		DatafileMaxBytes:    64 << 20,
		BlobBatchSize:       256,
		SQLiteBusyRetries:   5,
		SQLiteBusyBackoffMs: 50,
	}
}

func (c Config) withDefaults() Config {
	d := Default()
	if c.MaxMappedRegions <= 0 {
		c.MaxMappedRegions = d.MaxMappedRegions
	}
	if c.DatafileMaxBytes <= 0 {
		c.DatafileMaxBytes = d.DatafileMaxBytes
	}
	if c.BlobBatchSize <= 0 {
		c.BlobBatchSize = d.BlobBatchSize
	}
	if c.SQLiteBusyRetries <= 0 {
		c.SQLiteBusyRetries = d.SQLiteBusyRetries
	}
	if c.SQLiteBusyBackoffMs <= 0 {
		c.SQLiteBusyBackoffMs = d.SQLiteBusyBackoffMs
	}
	return c
}

// Load parses an HCL configuration file at path, filling any field left
// unset in the file with its default value.
func Load(path string) (Config, error) {
	var c Config
	if err := hclsimple.DecodeFile(path, nil, &c); err != nil {
		return Config{}, dberr.Wrap(dberr.MissingDatabaseFile, "load config file "+path, err)
	}
	return c.withDefaults(), nil
}

// Parse decodes HCL source bytes directly, used by tests that don't want to
// touch the filesystem.
func Parse(src []byte, filename string) (Config, error) {
	var c Config
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, dberr.Newf(dberr.SchemaMismatch, "parse config: %s", diags.Error())
	}
	if diags := gohcl.DecodeBody(file.Body, nil, &c); diags.HasErrors() {
		return Config{}, dberr.Newf(dberr.SchemaMismatch, "decode config: %s", diags.Error())
	}
	return c.withDefaults(), nil
}
