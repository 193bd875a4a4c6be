// Package toolcall defines the data model for batched tool invocations.
//
// Invariants:
// - Exactly one call record exists per id within a batch; ids are unique.
// - A record's state only moves forward through the transition graph.
// - Live output is append-only while executing and frozen once terminal.
// - A batch is complete exactly when every record is terminal.
//
// Usage:
//
//	batch, err := toolcall.NewBatch([]toolcall.Request{
//		{ID: "call-1", Tool: "read_file", Args: map[string]interface{}{"path": "go.mod"}},
//	})
//	if err != nil {
//		return err
//	}
//	rec, _ := batch.Record("call-1")
//	fmt.Println(rec.State())
package toolcall
