// Package rpadata implements the low-level, on-disk pieces of the RPA
// format: header parsing/emission, the zlib codec used for the index
// block, and the index codec that sits on top of zlib and the pickle
// package to translate between the canonical Index map and its on-disk,
// possibly XOR-masked, form.
package rpadata
