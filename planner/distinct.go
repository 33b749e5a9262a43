package planner

import (
	"github.com/jpl-au/slate/catalog"
	"github.com/jpl-au/slate/engine"
	"github.com/jpl-au/slate/expr"
)

// PlanDistinct builds a plan for extracting every unique value of field,
// optionally restricted by filter. When filter is absent and field is
// itself indexed, the scan is covered: it reads index entries directly
// rather than the records behind them, skipping the record-read
// entirely.
func PlanDistinct(h *engine.Handle, indexes []*catalog.IndexConfig, field string, filter expr.Node) (Node, error) {
	if filter == nil {
		for _, idx := range indexes {
			if idx.Field == field {
				scan := IndexScan{Field: field, Range: engine.Range{Kind: engine.RangeFull}, Covered: true}
				return Distinct{Field: field, Input: scan}, nil
			}
		}
	}
	node, err := Build(h, indexes, Options{Filter: filter})
	if err != nil {
		return nil, err
	}
	return Distinct{Field: field, Input: node}, nil
}
