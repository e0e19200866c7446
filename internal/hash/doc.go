// Package hash provides the CRC32-Castagnoli checksums of snapshot
// sections and S3 uploads.
package hash
