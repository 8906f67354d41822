// Package unitypack decodes Unity asset bundles into named entries and
// resolves typed object references across the serialized files they hold.
//
// A Decoder memory-maps a source file, sniffs its type and unwraps gzip
// wrappers. It then decodes UnityFS, UnityWeb and UnityRaw archives, both
// the modern block layout and the legacy streaming layout, and
// UnityWebData containers. Blocks are decompressed with LZMA, LZ4/LZ4HC or
// zstd into a unified region that spills to disk once it outgrows memory.
// Entries are carved out of that region in directory order.
//
// Inspect returns an archive's layout without decompressing it and caches
// the result per file revision. ReadEntry decodes only the blocks that
// overlap one entry. An Extractor writes many archives to disk
// concurrently and writes each shared entry only once.
//
// Cross-file references are PPtr values. They resolve through a Registry
// of loaded SerializedFiles, which caches name lookups, including misses,
// until the set of loaded files changes.
package unitypack
