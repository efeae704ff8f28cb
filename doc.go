// Package rpx reads and writes RPA container archives, the asset-bundling
// format used by a family of interactive-fiction runtimes.
//
// An archive concatenates many logical files ("members") into one stream,
// plus a compressed index mapping each member's logical path to its byte
// range. Several header families exist:
//
//   - RPA-1.0: no header line; the index lives in a sidecar ".rpi" file.
//   - RPA-2.0: header carries a hex index offset; index is embedded.
//   - RPA-3.0 / RPA-3.2: header also carries a 32-bit XOR key that masks
//     the stored offset/length of every index segment.
//   - RPA-4.0: same wire layout as RPA-3.0, distinguished by its tag and
//     its default pickle protocol/key.
//
// The index itself is a zlib-deflated, pickle-serialized mapping from path
// to a sequence of (offset, length, prefix?) segments. Package
// rpa/rpadata/pickle implements just enough of the pickle wire format
// (protocols 0-5 on read, 2 and 4 on write) to round-trip that mapping;
// package rpa/rpadata composes it with zlib and the header codec. Package
// rpa exposes the archive-level Reader and the WriteArchive function.
// Package rpyc inspects an
// extracted compiled-script file to classify its RPC1/RPC2 byte format.
//
// This package does not implement script decompilation, terminal UI, or
// any cryptographic authentication: the XOR key is an obfuscation mask,
// not a cipher.
package rpx
