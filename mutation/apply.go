// Package mutation implements applying a parsed mutation document to a
// BSON document: $set, $unset, $inc, $rename, $push, $lpush, $pop, plus
// bare fields as implicit $set. Since bson.Raw is an immutable wire
// encoding, the result is rebuilt from scratch via bsoncore's document
// builder rather than mutated in place — the same "resolved stack of
// document builders" shape as a recursive descent, one frame of
// bsoncore.AppendDocumentStart/End per nesting level touched by the
// mutation, sharing untouched subtrees byte-for-byte from the original.
package mutation

import (
	"errors"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncore"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// ErrConflictingOps is returned when two different operators target the
// exact same field path.
var ErrConflictingOps = errors.New("mutation: conflicting operators on the same path")

type opKind int

const (
	opNone opKind = iota
	opSet
	opUnset
	opInc
	opPush
	opLPush
	opPop
)

type patchNode struct {
	op       opKind
	value    bson.RawValue
	children map[string]*patchNode
}

func newPatchNode() *patchNode { return &patchNode{children: map[string]*patchNode{}} }

func descend(root *patchNode, path string) (*patchNode, string) {
	segs := strings.Split(path, ".")
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := cur.children[seg]
		if !ok {
			child = newPatchNode()
			cur.children[seg] = child
		}
		cur = child
	}
	return cur, segs[len(segs)-1]
}

func insertValueOps(root *patchNode, op opKind, mapping map[string]bson.RawValue) error {
	for path, val := range mapping {
		parent, leafSeg := descend(root, path)
		leaf, ok := parent.children[leafSeg]
		if !ok {
			leaf = newPatchNode()
			parent.children[leafSeg] = leaf
		}
		if leaf.op != opNone {
			return ErrConflictingOps
		}
		leaf.op = op
		leaf.value = val
	}
	return nil
}

func insertFlagOps(root *patchNode, op opKind, mapping map[string]bool) error {
	for path := range mapping {
		parent, leafSeg := descend(root, path)
		leaf, ok := parent.children[leafSeg]
		if !ok {
			leaf = newPatchNode()
			parent.children[leafSeg] = leaf
		}
		if leaf.op != opNone {
			return ErrConflictingOps
		}
		leaf.op = op
	}
	return nil
}

// Apply transforms doc per spec, returning the new document and whether
// anything actually changed. A document with no matching net effect
// (every operator resolves to a no-op) returns modified=false and the
// original bytes.
func Apply(doc bson.Raw, spec *Spec) (bson.Raw, bool, error) {
	sets := make(map[string]bson.RawValue, len(spec.sets))
	for k, v := range spec.sets {
		sets[k] = v
	}
	unsets := make(map[string]bool, len(spec.unsets))
	for k := range spec.unsets {
		unsets[k] = true
	}
	for oldPath, newName := range spec.renames {
		if oldPath == newName {
			continue
		}
		rv, err := doc.LookupErr(strings.Split(oldPath, ".")...)
		if err != nil {
			continue // source absent: rename is a no-op
		}
		sets[newName] = rv
		unsets[oldPath] = true
	}

	root := newPatchNode()
	if err := insertValueOps(root, opSet, sets); err != nil {
		return nil, false, err
	}
	if err := insertValueOps(root, opInc, spec.incs); err != nil {
		return nil, false, err
	}
	if err := insertValueOps(root, opPush, spec.pushes); err != nil {
		return nil, false, err
	}
	if err := insertValueOps(root, opLPush, spec.lpushes); err != nil {
		return nil, false, err
	}
	if err := insertFlagOps(root, opUnset, unsets); err != nil {
		return nil, false, err
	}
	if err := insertFlagOps(root, opPop, spec.pops); err != nil {
		return nil, false, err
	}

	buf, modified, err := applyNode(root, doc)
	if err != nil {
		return nil, false, err
	}
	if !modified {
		return doc, false, nil
	}
	return bson.Raw(buf), true, nil
}

func applyNode(node *patchNode, orig bson.Raw) (bsoncore.Document, bool, error) {
	idx, buf := bsoncore.AppendDocumentStart(nil)
	modified := false
	consumed := make(map[string]bool, len(node.children))

	var elems []bson.RawElement
	if len(orig) > 0 {
		var err error
		elems, err = orig.Elements()
		if err != nil {
			return nil, false, err
		}
	}

	for _, elem := range elems {
		key, err := elem.KeyErr()
		if err != nil {
			return nil, false, err
		}
		val, err := elem.ValueErr()
		if err != nil {
			return nil, false, err
		}
		child, has := node.children[key]
		if !has {
			buf = bsoncore.AppendValueElement(buf, key, bsoncore.Value{Type: val.Type, Data: val.Value})
			continue
		}
		consumed[key] = true

		if len(child.children) == 0 {
			newVal, drop, changed, err := applyLeaf(child, &val)
			if err != nil {
				return nil, false, err
			}
			if changed {
				modified = true
			}
			if drop {
				continue
			}
			buf = bsoncore.AppendValueElement(buf, key, bsoncore.Value{Type: newVal.Type, Data: newVal.Value})
			continue
		}

		if val.Type == bsontype.EmbeddedDocument {
			sub, err := val.Document()
			if err != nil {
				return nil, false, err
			}
			subBuf, subModified, err := applyNode(child, sub)
			if err != nil {
				return nil, false, err
			}
			if subModified {
				modified = true
			}
			buf = bsoncore.AppendDocumentElement(buf, key, subBuf)
			continue
		}
		if !nodeAllCreating(child) {
			return nil, false, ErrNonDocumentIntermediate
		}
		subBuf, _, err := applyNode(child, nil)
		if err != nil {
			return nil, false, err
		}
		modified = true
		buf = bsoncore.AppendDocumentElement(buf, key, subBuf)
	}

	var remaining []string
	for key := range node.children {
		if !consumed[key] {
			remaining = append(remaining, key)
		}
	}
	sort.Strings(remaining)
	for _, key := range remaining {
		child := node.children[key]
		if len(child.children) == 0 {
			newVal, drop, changed, err := applyLeaf(child, nil)
			if err != nil {
				return nil, false, err
			}
			if drop {
				continue
			}
			if changed {
				modified = true
			}
			buf = bsoncore.AppendValueElement(buf, key, bsoncore.Value{Type: newVal.Type, Data: newVal.Value})
			continue
		}
		subBuf, subModified, err := applyNode(child, nil)
		if err != nil {
			return nil, false, err
		}
		if !subModified {
			continue // non-creating ops on a wholly absent path are a no-op
		}
		modified = true
		buf = bsoncore.AppendDocumentElement(buf, key, subBuf)
	}

	return bsoncore.AppendDocumentEnd(buf, idx)
}

func applyLeaf(node *patchNode, existing *bson.RawValue) (newVal bson.RawValue, drop, changed bool, err error) {
	switch node.op {
	case opSet:
		if existing != nil && rawEqual(*existing, node.value) {
			return *existing, false, false, nil
		}
		return node.value, false, true, nil
	case opUnset:
		if existing == nil {
			return bson.RawValue{}, true, false, nil
		}
		return bson.RawValue{}, true, true, nil
	case opInc:
		sum, err := incValue(existing, node.value)
		if err != nil {
			return bson.RawValue{}, false, false, err
		}
		return sum, false, true, nil
	case opPush:
		arr, err := arrayPush(existing, node.value, false)
		if err != nil {
			return bson.RawValue{}, false, false, err
		}
		return arr, false, true, nil
	case opLPush:
		arr, err := arrayPush(existing, node.value, true)
		if err != nil {
			return bson.RawValue{}, false, false, err
		}
		return arr, false, true, nil
	case opPop:
		if existing == nil {
			return bson.RawValue{}, true, false, nil
		}
		arr, changed, err := arrayPop(*existing)
		if err != nil {
			return bson.RawValue{}, false, false, err
		}
		return arr, false, changed, nil
	default:
		if existing != nil {
			return *existing, false, false, nil
		}
		return bson.RawValue{}, true, false, nil
	}
}

func nodeAllCreating(node *patchNode) bool {
	if len(node.children) == 0 {
		switch node.op {
		case opSet, opInc, opPush, opLPush:
			return true
		default:
			return false
		}
	}
	for _, c := range node.children {
		if !nodeAllCreating(c) {
			return false
		}
	}
	return true
}

func rawEqual(a, b bson.RawValue) bool {
	if a.Type != b.Type {
		return false
	}
	if len(a.Value) != len(b.Value) {
		return false
	}
	for i := range a.Value {
		if a.Value[i] != b.Value[i] {
			return false
		}
	}
	return true
}
