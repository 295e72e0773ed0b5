// Package buckettree implements an immutable, two-level on-disk index
// that maps a virtual address in a contiguous [start, end) range to a
// fixed-size entry describing how that region is materialized.
//
// A tree is built offline by some other tool and is opened read-only via
// Initialize. Point lookups are performed through a Visitor, which also
// supports bidirectional movement between adjacent entries and a
// look-ahead scan used to batch reads of physically contiguous regions.
package buckettree
