package protocol

import "errors"

// ErrShortPayload is returned by DecodeFileBinaryResponse when a chunk
// payload is too small to contain both hash fields.
var ErrShortPayload = errors.New("protocol: file binary response payload shorter than two SHA-256 hashes")
