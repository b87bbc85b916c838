// Package collection implements the document collection of spec.md §4.6:
// the orchestrator that ties identifier allocation, the id→blob-handle map,
// the schema, the index manager, and the blob store together, and exposes
// the public boundary the query adapter calls.
package collection

import (
	"sync"
	"sync/atomic"

	"github.com/embeddb/embeddb/internal/bitmap"
	"github.com/embeddb/embeddb/internal/blobstore"
	"github.com/embeddb/embeddb/internal/dberr"
	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/document"
	"github.com/embeddb/embeddb/internal/index"
)

// IndexDeclaration describes one index to register at construction time,
// the collection-level counterpart of spec.md §4.5's register(column_path,
// index_info, field_kind) — field_kind is derived from the schema rather
// than passed explicitly, since the schema already declares it.
type IndexDeclaration struct {
	Name       string
	Kind       index.Kind
	ColumnPath string
	Ascending  bool
}

// Collection is the per-name orchestrator of spec.md §3/§4.6.
type Collection struct {
	name   string
	schema *docschema.Schema
	dir    string

	idGen *IDGenerator
	store *blobstore.Store
	mgr   *index.Manager

	mu         sync.RWMutex
	idToHandle []blobstore.Handle

	poisoned uint32 // atomic bool; set once on an IndexCorrupted fault
}

// Open constructs a collection rooted at dir, registering decls against
// schema and replaying any existing data files to reconstruct identifiers
// and index state (spec.md §3 Lifecycle). An empty/missing directory yields
// a fresh, empty collection.
func Open(dir, name string, schema *docschema.Schema, decls []IndexDeclaration, maxMappedRegions int, datafileMaxBytes int64, blobBatchSize int) (*Collection, error) {
	if name == "" {
		return nil, dberr.New(dberr.InvalidArgument, "collection name must not be empty")
	}
	if blobBatchSize <= 0 {
		blobBatchSize = 256
	}

	store, err := blobstore.Open(dir, name, maxMappedRegions, datafileMaxBytes)
	if err != nil {
		return nil, err
	}

	mgr := index.NewManager()
	for _, d := range decls {
		fieldKind, err := document.LeafKind(schema, d.ColumnPath)
		if err != nil {
			return nil, err
		}
		info := index.Info{Name: d.Name, Kind: d.Kind, ColumnPath: d.ColumnPath, Ascending: d.Ascending}
		if err := mgr.Register(info, fieldKind); err != nil {
			return nil, err
		}
	}

	c := &Collection{
		name:   name,
		schema: schema,
		dir:    dir,
		idGen:  NewIDGenerator(0),
		store:  store,
		mgr:    mgr,
	}

	if err := c.replay(blobBatchSize); err != nil {
		return nil, err
	}
	return c, nil
}

// replay reconstructs id_to_handle and every indexer by iterating existing
// data files in fixed-size batches (spec.md §4.2/§9), indexing each batch of
// documents together so identifiers are still assigned in file order (I4)
// while amortizing per-call overhead across the batch. It trusts
// already-persisted payloads: a corrupt record here is a genuine storage
// fault, surfaced as CorruptBlob rather than silently skipped.
func (c *Collection) replay(batchSize int) error {
	it, err := blobstore.NewIterator(c.dir, c.name)
	if err != nil {
		return err
	}
	batch := make([]blobstore.Record, batchSize)
	docs := make([]*document.Document, batchSize)
	for {
		n, err := it.NextBatch(batch)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}

		for i := 0; i < n; i++ {
			doc := document.Allocate(c.schema)
			if err := doc.Reset(batch[i].Payload); err != nil {
				return err
			}
			docs[i] = doc
		}
		if _, err := c.mgr.IndexDocuments(c.idGen, docs[:n]); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			c.idToHandle = append(c.idToHandle, batch[i].Handle)
		}
	}
	return nil
}

func (c *Collection) checkNotPoisoned() error {
	if atomic.LoadUint32(&c.poisoned) != 0 {
		return dberr.New(dberr.IndexCorrupted, "collection is poisoned after a prior ingestion fault")
	}
	return nil
}

func (c *Collection) poison() {
	atomic.StoreUint32(&c.poisoned, 1)
}

// Insert ingests a single encoded document buffer, returning its identifier.
func (c *Collection) Insert(buf []byte) (uint64, error) {
	start, err := c.MultiInsert([][]byte{buf})
	return start, err
}

// MultiInsert implements spec.md §4.6's five-step ingestion sequence:
// decode under schema, validate_for_indexing, index_documents, put_many,
// append handles. Step 4 failing after step 3 succeeded poisons the
// collection (IndexCorrupted, fatal per spec.md §7) — the only recovery is
// process restart from the durable blobs.
func (c *Collection) MultiInsert(buffers [][]byte) (uint64, error) {
	if err := c.checkNotPoisoned(); err != nil {
		return 0, err
	}
	if len(buffers) == 0 {
		return c.idGen.Current(), nil
	}

	docs := make([]*document.Document, len(buffers))
	for i, buf := range buffers {
		doc := document.Allocate(c.schema)
		if err := doc.Reset(buf); err != nil {
			return 0, err
		}
		docs[i] = doc
	}

	if err := c.mgr.ValidateForIndexing(docs); err != nil {
		return 0, err
	}

	start, err := c.mgr.IndexDocuments(c.idGen, docs)
	if err != nil {
		// IndexDocuments itself only fails on a contract violation (validate
		// said ok, insert didn't) and already wraps it as IndexCorrupted.
		c.poison()
		return start, err
	}

	handles, err := c.store.PutMany(buffers)
	if err != nil {
		c.poison()
		return start, dberr.Wrap(dberr.IndexCorrupted, "blob append failed after indexes were committed", err)
	}

	c.mu.Lock()
	c.idToHandle = append(c.idToHandle, handles...)
	c.mu.Unlock()

	return start, nil
}

// Filter returns index_manager.filter(constraints) if any constraint is
// given, else the full identifier range [0, id_generator) (spec.md §4.6).
func (c *Collection) Filter(constraints []index.Constraint) (*bitmap.Bitmap, error) {
	if err := c.checkNotPoisoned(); err != nil {
		return nil, err
	}
	if len(constraints) == 0 {
		return bitmap.Range(0, c.idGen.Current()), nil
	}
	return c.mgr.Filter(constraints)
}

func (c *Collection) handleFor(id uint64) (blobstore.Handle, error) {
	if id >= c.idGen.Current() {
		return blobstore.Handle{}, dberr.Newf(dberr.MissingDocument, "document %d does not exist", id)
	}
	c.mu.RLock()
	h := c.idToHandle[id]
	c.mu.RUnlock()
	return h, nil
}

func (c *Collection) decodeAt(id uint64) (*document.Document, error) {
	h, err := c.handleFor(id)
	if err != nil {
		return nil, err
	}
	buf, err := c.store.Get(h)
	if err != nil {
		return nil, err
	}
	doc := document.Allocate(c.schema)
	if err := doc.Reset(buf); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetFieldAsInt reads column at id as int64: the index fast path first, a
// blob decode + path walk on miss.
func (c *Collection) GetFieldAsInt(id uint64, column, path string) (int64, error) {
	if id >= c.idGen.Current() {
		return 0, dberr.Newf(dberr.MissingDocument, "document %d does not exist", id)
	}
	if v, ok := c.mgr.TryGetIntegerValue(id, column); ok {
		return v, nil
	}
	doc, err := c.decodeAt(id)
	if err != nil {
		return 0, err
	}
	return doc.GetInt64Path(path)
}

// GetFieldAsDouble is the float64 counterpart of GetFieldAsInt.
func (c *Collection) GetFieldAsDouble(id uint64, column, path string) (float64, error) {
	if id >= c.idGen.Current() {
		return 0, dberr.Newf(dberr.MissingDocument, "document %d does not exist", id)
	}
	if v, ok := c.mgr.TryGetDoubleValue(id, column); ok {
		return v, nil
	}
	doc, err := c.decodeAt(id)
	if err != nil {
		return 0, err
	}
	return doc.GetF64Path(path)
}

// GetFieldAsString is the string counterpart of GetFieldAsInt. The returned
// bytes are a private copy, safe to retain past the call.
func (c *Collection) GetFieldAsString(id uint64, column, path string) ([]byte, error) {
	if id >= c.idGen.Current() {
		return nil, dberr.Newf(dberr.MissingDocument, "document %d does not exist", id)
	}
	if v, ok := c.mgr.TryGetStringValue(id, column); ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	doc, err := c.decodeAt(id)
	if err != nil {
		return nil, err
	}
	v, err := doc.GetStringPath(path)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// GetFieldsAsIntVector is the batched counterpart of GetFieldAsInt.
func (c *Collection) GetFieldsAsIntVector(ids []uint64, column, path string) ([]int64, error) {
	if vals, ok := c.mgr.TryGetIntegerVector(ids, column); ok {
		return vals, nil
	}
	out := make([]int64, len(ids))
	for i, id := range ids {
		v, err := c.GetFieldAsInt(id, column, path)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// GetFieldsAsDoubleVector is the batched counterpart of GetFieldAsDouble.
func (c *Collection) GetFieldsAsDoubleVector(ids []uint64, column, path string) ([]float64, error) {
	if vals, ok := c.mgr.TryGetDoubleVector(ids, column); ok {
		return vals, nil
	}
	out := make([]float64, len(ids))
	for i, id := range ids {
		v, err := c.GetFieldAsDouble(id, column, path)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Name returns the collection's unique name.
func (c *Collection) Name() string { return c.name }

// Schema returns the collection's immutable schema.
func (c *Collection) Schema() *docschema.Schema { return c.schema }

// Len returns the current id_generator value: the number of documents ever
// inserted (identifiers are never reused or reordered).
func (c *Collection) Len() uint64 { return c.idGen.Current() }

// TryGetBestIndex exposes the index manager's selection for the query
// adapter's best_index callback.
func (c *Collection) TryGetBestIndex(column string, op index.Operator) (index.Stat, bool) {
	return c.mgr.TryGetBestIndex(column, op)
}

// UnmapLRU forwards an explicit cache-pressure hint to the blob store.
func (c *Collection) UnmapLRU(n int) { c.store.UnmapLRU(n) }

// Compact forwards to the blob store's archival compaction.
func (c *Collection) Compact(fileID uint32) error { return c.store.Compact(fileID) }

// Close releases the collection's blob store resources.
func (c *Collection) Close() error { return c.store.Close() }
