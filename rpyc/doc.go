// Package rpyc classifies the compiled-script byte format of an
// extracted archive member. It is a small, tightly-coupled sibling of
// the archive codec: it shares the same zlib-probing discipline as
// rpadata, but never drives archive reading or writing itself, and
// it never decompiles anything -- decompilation is an external
// collaborator's job, not this package's.
package rpyc
