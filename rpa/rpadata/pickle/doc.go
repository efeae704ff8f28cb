// Package pickle implements just enough of Python's pickle wire format to
// round-trip the value lattice an RPA index needs: None, booleans, signed
// integers, floats, unicode and byte strings, tuples, lists, string-keyed
// mappings, and sets.
//
// The reader supports pickle protocols 0 through 5, including memoization
// (PUT/GET/BINPUT/.../MEMOIZE) and the protocol-4 FRAME opcode. It is
// read-only: there is no reflection-based unpickling of arbitrary Python
// objects. Class/global references (GLOBAL, STACK_GLOBAL) are kept as
// opaque Global values; the exceptions are collections.OrderedDict,
// which some archivers wrap the index in, and the builtin dict
// constructor, both of which are unwrapped into a plain ordered Dict so
// downstream code never has to special-case them.
//
// The writer targets protocol 2 by default (4 when requested) and emits
// only the opcode subset required to represent a map of string to a
// sequence of small tuples -- it does not attempt general-purpose object
// graph serialization.
package pickle
