// Package mmap provides read-only memory-mapped file access for local blobs.
//
//	m, err := mmap.Open("data/0001.frag")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes() // zero-copy, valid until Close
package mmap
