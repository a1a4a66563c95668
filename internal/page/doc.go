// Package page holds the document being read: a parsed HTML (or markdown)
// tree whose text nodes carry stable identifiers, plus a terminal layout
// that maps (node, offset) pairs to screen cells.
//
// Node identifiers are never reused. A node that is removed, or that belongs
// to a document swapped out by Replace, stops resolving through Lookup, which
// is how word references recorded earlier are detected as stale.
package page
