package bsonvalue

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// node is one step of a pre-built dot-path tree. A node is either a leaf
// (a requested path terminates here) or a branch with further field and/or
// array-expansion children. A leaf always wins over any children built
// past it — "if both a and a.b are requested, the shorter path wins".
type node struct {
	leaf      bool
	path      string
	fields    map[string]*node
	arrayNext *node
}

// Tree is a pre-built set of dot-notation paths, ready to be walked against
// many documents without re-parsing the paths each time.
type Tree struct {
	root *node
}

// BuildTree compiles a set of dot-notation paths (e.g. "a.b", "tags.[]",
// "a.[].name") into a reusable walk tree.
func BuildTree(paths []string) *Tree {
	root := &node{fields: map[string]*node{}}
	for _, p := range paths {
		insert(root, p)
	}
	return &Tree{root: root}
}

func insert(root *node, path string) {
	segs := splitPath(path)
	cur := root
	for _, seg := range segs {
		if cur.leaf {
			// A shorter path already claimed this node; per spec the
			// shorter path wins, so deeper insertions are moot.
			return
		}
		if seg == "[]" {
			if cur.arrayNext == nil {
				cur.arrayNext = &node{fields: map[string]*node{}}
			}
			cur = cur.arrayNext
		} else {
			child, ok := cur.fields[seg]
			if !ok {
				child = &node{fields: map[string]*node{}}
				cur.fields[seg] = child
			}
			cur = child
		}
	}
	cur.leaf = true
	cur.path = path
	// Leaf overrides any branch already built past this point.
	cur.fields = map[string]*node{}
	cur.arrayNext = nil
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	return segs
}

// Visit is invoked once per matched leaf value. Path is the original
// requested dot-path (not an instantiated array index), so repeated array
// elements report the same path string once per element.
type Visit func(path string, rv bson.RawValue)

// Walk traverses doc once, invoking visit at every path in the tree that
// resolves to a value. Arrays expand element-wise; a sub-path requested
// under a non-document (or array request under a non-array) field yields
// no visit.
func Walk(tree *Tree, doc bson.Raw, visit Visit) error {
	return walkFields(tree.root, doc, visit)
}

func walkFields(n *node, doc bson.Raw, visit Visit) error {
	for key, child := range n.fields {
		rv, err := doc.LookupErr(key)
		if err != nil {
			continue // field absent: no visit for this branch
		}
		if err := walkNode(child, rv, visit); err != nil {
			return err
		}
	}
	return nil
}

func walkNode(n *node, rv bson.RawValue, visit Visit) error {
	if n.leaf {
		visit(n.path, rv)
		return nil
	}
	if n.arrayNext != nil {
		if rv.Type == bsontype.Array {
			arr, err := rv.Array()
			if err == nil {
				values, err := arr.Values()
				if err == nil {
					for _, elem := range values {
						if err := walkNode(n.arrayNext, elem, visit); err != nil {
							return err
						}
					}
				}
			}
		}
		// non-array value under a "[]" request: no visit.
	}
	if len(n.fields) > 0 {
		if rv.Type == bsontype.EmbeddedDocument {
			sub, err := rv.Document()
			if err == nil {
				if err := walkFields(n, sub, visit); err != nil {
					return err
				}
			}
		}
		// non-document value under a field sub-path request: no visit.
	}
	return nil
}
