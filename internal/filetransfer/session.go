// Package filetransfer implements FileTransferSession: a single type
// covering two flavors of file transfer, platform-upload (chunked) and
// URL-download. Exactly one flavor is active per session, decided by
// which constructor built it, and every status transition funnels
// through one choke point so callers observe a consistent sequence of
// terminal states.
package filetransfer

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/wolkabout/filelink-go/internal/commandbuffer"
	"github.com/wolkabout/filelink-go/internal/protocol"
	"github.com/wolkabout/filelink-go/internal/urlfetch"
)

// maxRetryCount is the retry ceiling before a platform transfer gives
// up terminally.
const maxRetryCount = 3

// Chunk is one piece of a platform upload, collected in arrival order.
type Chunk struct {
	PreviousHash []byte
	Data         []byte
	CurrentHash  []byte
}

// StatusCallback is invoked on every terminal status/error transition.
type StatusCallback func(status protocol.TransferStatus, err protocol.TransferError)

// Session is a single file transfer, either a platform upload or a URL
// download. Exactly one of the two flavors is active, decided by which
// constructor built it.
type Session struct {
	deviceKey string
	name      string
	url       string

	// Platform-upload state.
	expectedSize uint64
	expectedHash string // hex MD5
	chunks       []Chunk
	collected    uint64
	retryCount   uint64

	// URL-download state.
	downloader urlfetch.Downloader

	done bool

	mu       sync.Mutex
	status   protocol.TransferStatus
	err      protocol.TransferError
	callback StatusCallback
	buffer   *commandbuffer.Buffer
}

// NewPlatformSession constructs a chunked platform-upload session from
// {name, expected_size, expected_md5_hex}, with initial status
// FILE_TRANSFER.
func NewPlatformSession(deviceKey, name string, expectedSize uint64, expectedHashHex string, callback StatusCallback, buffer *commandbuffer.Buffer) *Session {
	return &Session{
		deviceKey:    deviceKey,
		name:         name,
		expectedSize: expectedSize,
		expectedHash: expectedHashHex,
		status:       protocol.StatusFileTransfer,
		err:          protocol.TransferErrorNone,
		callback:     callback,
		buffer:       buffer,
	}
}

// NewURLDownloadSession constructs a URL-download session from {url}
// plus a downloader.
func NewURLDownloadSession(deviceKey, url string, downloader urlfetch.Downloader, callback StatusCallback, buffer *commandbuffer.Buffer) *Session {
	return &Session{
		deviceKey:  deviceKey,
		url:        url,
		downloader: downloader,
		status:     protocol.StatusFileTransfer,
		err:        protocol.TransferErrorNone,
		callback:   callback,
		buffer:     buffer,
	}
}

// IsPlatformTransfer reports whether this session is the chunked
// platform-upload flavor.
func (s *Session) IsPlatformTransfer() bool { return s.downloader == nil }

// IsUrlDownload reports whether this session is the URL-download flavor.
func (s *Session) IsUrlDownload() bool { return s.downloader != nil }

// IsDone reports whether the session has reached a terminal status.
func (s *Session) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// DeviceKey returns the device this session belongs to.
func (s *Session) DeviceKey() string { return s.deviceKey }

// Name returns the file's name. For a URL download this may be empty
// until the downloader assigns one.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// URL returns the download URL, empty for platform-upload sessions.
func (s *Session) URL() string { return s.url }

// Status returns the session's current status.
func (s *Session) Status() protocol.TransferStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Error returns the session's current error (NONE if none).
func (s *Session) Error() protocol.TransferError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Chunks returns the chunks collected so far, in arrival order.
func (s *Session) Chunks() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Chunk(nil), s.chunks...)
}

// Bytes concatenates every collected chunk's data, in arrival order.
// Valid for a platform-upload session once FILE_READY.
func (s *Session) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, 0, s.collected)
	for _, c := range s.chunks {
		out = append(out, c.Data...)
	}
	return out
}

// Data returns the transferred bytes regardless of flavor: collected
// chunks for a platform upload, or the downloader's buffer for a URL
// download. Valid once the session is FILE_READY.
func (s *Session) Data() []byte {
	if s.downloader != nil {
		return s.downloader.Bytes()
	}
	return s.Bytes()
}

// changeStatusAndError is the single choke point for every status
// transition: it updates state under the lock and enqueues exactly one
// callback invocation on the command buffer.
func (s *Session) changeStatusAndError(status protocol.TransferStatus, err protocol.TransferError) {
	s.mu.Lock()
	s.status = status
	s.err = err
	if status == protocol.StatusFileReady || status == protocol.StatusErrorTransfer || status == protocol.StatusAborted {
		s.done = true
	}
	cb := s.callback
	s.mu.Unlock()

	if cb == nil {
		return
	}
	// Enqueued on the command buffer so the caller observes it off
	// whatever goroutine drove the mutation; run synchronously when
	// no buffer is configured (unit tests).
	if s.buffer == nil {
		cb(status, err)
		return
	}
	s.buffer.Push(func(_ context.Context) {
		cb(status, err)
	})
}

// Abort clears any collected chunks and transitions to ABORTED.
// Idempotent and safe in any state.
func (s *Session) Abort() {
	if s.downloader != nil {
		s.downloader.Abort()
	}
	s.mu.Lock()
	alreadyDone := s.done
	s.chunks = nil
	s.collected = 0
	s.mu.Unlock()
	if alreadyDone {
		return
	}
	s.changeStatusAndError(protocol.StatusAborted, protocol.TransferErrorNone)
}

// TriggerDownload invokes the downloader for a URL-download session on
// a dedicated background goroutine. The downloader's status callback
// runs on that goroutine and updates the session's name and
// status/error directly, under the session lock; it is not routed
// through the command buffer. Only the resulting terminal user
// callback is posted through the buffer (by changeStatusAndError).
// Returns false if called on a platform-upload session.
func (s *Session) TriggerDownload() bool {
	if s.downloader == nil {
		return false
	}
	go s.downloader.Download(context.Background(), s.url, func(status protocol.TransferStatus, err protocol.TransferError, filename string) {
		s.mu.Lock()
		if filename != "" {
			s.name = filename
		}
		s.mu.Unlock()
		s.changeStatusAndError(status, err)
	})
	return true
}

// NextChunkRequest returns the next FileBinaryRequest to send, or the
// sentinel empty request if the session is done or already has every
// byte it expects.
func (s *Session) NextChunkRequest() protocol.FileBinaryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.collected >= s.expectedSize {
		return protocol.FileBinaryRequest{}
	}
	return protocol.FileBinaryRequest{Name: s.name, Index: uint64(len(s.chunks))}
}

// PushChunk applies one FileBinaryResponse to a platform-upload
// session, following the ordering and validation rules exactly.
func (s *Session) PushChunk(msg protocol.FileBinaryResponse) protocol.TransferError {
	s.mu.Lock()

	// Rule 1: URL-download or already-done sessions reject/ignore.
	if s.downloader != nil {
		s.mu.Unlock()
		return protocol.TransferErrorProtocolDisabled
	}
	if s.done {
		s.mu.Unlock()
		return protocol.TransferErrorNone
	}

	// Rule 2: already collected every expected byte.
	if s.collected >= s.expectedSize {
		s.mu.Unlock()
		return protocol.TransferErrorUnsupportedFileSize
	}

	// Rule 3: previous-hash continuity against the last chunk.
	if len(s.chunks) > 0 {
		last := s.chunks[len(s.chunks)-1]
		if !bytesEqual(msg.PreviousHash, last.CurrentHash) {
			return s.retryOrFail(protocol.TransferErrorFileHashMismatch)
		}
	}

	// Rule 4: current-chunk hash must match sha256(data).
	sum := sha256.Sum256(msg.Data)
	if !bytesEqual(sum[:], msg.CurrentHash) {
		return s.retryOrFail(protocol.TransferErrorFileHashMismatch)
	}

	// Rule 5: append chunk, update collected size.
	s.chunks = append(s.chunks, Chunk{
		PreviousHash: append([]byte(nil), msg.PreviousHash...),
		Data:         append([]byte(nil), msg.Data...),
		CurrentHash:  append([]byte(nil), msg.CurrentHash...),
	})
	s.collected += uint64(len(msg.Data))

	// Rule 6: whole-file verification once every byte is in.
	if s.collected >= s.expectedSize {
		whole := make([]byte, 0, s.collected)
		for _, c := range s.chunks {
			whole = append(whole, c.Data...)
		}
		sum := md5.Sum(whole)
		actualHex := hex.EncodeToString(sum[:])
		s.mu.Unlock()
		if actualHex == s.expectedHash {
			s.changeStatusAndError(protocol.StatusFileReady, protocol.TransferErrorNone)
		} else {
			s.changeStatusAndError(protocol.StatusErrorTransfer, protocol.TransferErrorFileHashMismatch)
		}
		return protocol.TransferErrorNone
	}

	s.mu.Unlock()
	return protocol.TransferErrorNone
}

// retryOrFail applies the shared retry-count rule used by rules 3 and 4:
// increment retryCount; past maxRetryCount, fail the transfer terminally
// with RETRY_COUNT_EXCEEDED; otherwise report the mismatch and let the
// caller retry the same chunk index. Must be called with s.mu held; it
// releases the lock before returning.
func (s *Session) retryOrFail(transient protocol.TransferError) protocol.TransferError {
	s.retryCount++
	exceeded := s.retryCount > maxRetryCount
	s.mu.Unlock()
	if exceeded {
		s.changeStatusAndError(protocol.StatusErrorTransfer, protocol.TransferErrorRetryCountExceeded)
		return protocol.TransferErrorRetryCountExceeded
	}
	return transient
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
