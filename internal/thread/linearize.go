package thread

// DiagnosticKind classifies why a record did not make it into the
// linearized sequence.
type DiagnosticKind string

const (
	// DiagMalformed: the entry was not an object or carried no id.
	DiagMalformed DiagnosticKind = "malformed"
	// DiagDanglingParent: parent_id names no record in the batch, or is
	// present with a non-string value.
	DiagDanglingParent DiagnosticKind = "dangling_parent"
	// DiagUnreachable: the parent exists but no root leads here (cycles,
	// descendants of a dangling record).
	DiagUnreachable DiagnosticKind = "unreachable"
	// DiagDuplicateID: another record with the same id was visited first.
	DiagDuplicateID DiagnosticKind = "duplicate_id"
)

// Diagnostic describes one record left out of the traversal.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Position int            `json:"position"`
	RecordID string         `json:"record_id,omitempty"`
	ParentID string         `json:"parent_id,omitempty"`
}

// Structural reports whether the diagnostic points at a broken tree rather
// than at an entry that was never a message record. Strict mode only fails on
// structural diagnostics.
func (d Diagnostic) Structural() bool {
	return d.Kind != DiagMalformed
}

// Linearize flattens every tree in the batch into one depth-first pre-order
// sequence. Roots are walked in input order and children in the order they
// appear in the batch. Each id is visited at most once, so repeated ids and
// cycles terminate. Records that were not emitted are returned as diagnostics
// in input order.
func Linearize(records []Record) ([]Record, []Diagnostic) {
	ix := NewIndex(records)

	ordered := make([]Record, 0, len(records))
	emitted := make([]bool, len(records))
	visited := make(map[string]struct{}, ix.Len())

	var stack []int
	for _, root := range Roots(records) {
		stack = append(stack[:0], root)
		for len(stack) > 0 {
			pos := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			rec := records[pos]
			if _, seen := visited[rec.ID]; seen {
				continue
			}
			visited[rec.ID] = struct{}{}
			emitted[pos] = true
			ordered = append(ordered, rec)

			// Push in reverse so the first child is popped first.
			kids := ix.Children(rec.ID)
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, kids[i])
			}
		}
	}

	var diags []Diagnostic
	for i, rec := range records {
		if emitted[i] {
			continue
		}
		d := Diagnostic{Position: i, RecordID: rec.ID, ParentID: rec.ParentID}
		switch {
		case rec.Malformed || !rec.HasID():
			d.Kind = DiagMalformed
		case isVisited(visited, rec.ID):
			d.Kind = DiagDuplicateID
		case !hasRecord(ix, rec.ParentID):
			d.Kind = DiagDanglingParent
		default:
			d.Kind = DiagUnreachable
		}
		diags = append(diags, d)
	}

	return ordered, diags
}

func isVisited(visited map[string]struct{}, id string) bool {
	_, ok := visited[id]
	return ok
}

func hasRecord(ix *Index, id string) bool {
	_, ok := ix.Lookup(id)
	return ok
}
