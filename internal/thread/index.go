package thread

// Index is the read-only graph view over a batch: identifier lookups and the
// parent-to-children adjacency, both keyed by record position in the batch.
// It is rebuilt for every batch and never stored on the records themselves.
type Index struct {
	records  []Record
	byID     map[string]int
	children map[string][]int
}

// NewIndex builds the lookups in a single pass. Records without an id are
// left out; when an id repeats, the first occurrence wins the lookup while
// every occurrence is still listed as a child of its parent.
func NewIndex(records []Record) *Index {
	ix := &Index{
		records:  records,
		byID:     make(map[string]int, len(records)),
		children: make(map[string][]int),
	}

	for i, rec := range records {
		if !rec.HasID() {
			continue
		}
		if _, dup := ix.byID[rec.ID]; !dup {
			ix.byID[rec.ID] = i
		}
		if rec.ParentID != "" {
			ix.children[rec.ParentID] = append(ix.children[rec.ParentID], i)
		}
	}

	return ix
}

// Lookup returns the record registered under id.
func (ix *Index) Lookup(id string) (Record, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return Record{}, false
	}
	return ix.records[i], true
}

// Children returns the positions of id's children in input order.
func (ix *Index) Children(id string) []int {
	return ix.children[id]
}

// Len is the number of distinct identifiers indexed.
func (ix *Index) Len() int {
	return len(ix.byID)
}

// Roots returns the positions of every record with an id and no parent
// reference, in input order. Root order decides output order when a batch
// holds several independent trees.
func Roots(records []Record) []int {
	var roots []int
	for i, rec := range records {
		if rec.IsRoot() {
			roots = append(roots, i)
		}
	}
	return roots
}
