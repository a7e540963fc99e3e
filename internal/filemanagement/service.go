// Package filemanagement implements FileManagementService: it
// dispatches inbound protocol messages to the right
// filetransfer.Session, creates and destroys sessions, commits
// completed transfers to the repository and store, and emits outbound
// protocol messages.
package filemanagement

import (
	"context"
	"sync"

	"github.com/wolkabout/filelink-go/internal/commandbuffer"
	"github.com/wolkabout/filelink-go/internal/ferrors"
	"github.com/wolkabout/filelink-go/internal/filestore"
	"github.com/wolkabout/filelink-go/internal/filetransfer"
	"github.com/wolkabout/filelink-go/internal/hashutil"
	"github.com/wolkabout/filelink-go/internal/logging"
	"github.com/wolkabout/filelink-go/internal/protocol"
	"github.com/wolkabout/filelink-go/internal/repository"
	"github.com/wolkabout/filelink-go/internal/urlfetch"
)

// Outbound is the single method the external connectivity collaborator
// must supply; the wire transport itself is out of scope here.
type Outbound interface {
	Publish(deviceKey string, msg any) error
}

// DownloaderFactory builds a fresh urlfetch.Downloader for a URL
// download session. A factory, not a shared instance, since every
// session needs its own Downloader state machine.
type DownloaderFactory func() urlfetch.Downloader

type registryKey struct {
	DeviceKey string
	Name      string
}

// Service is FileManagementService.
type Service struct {
	repo   *repository.Repository
	store  *filestore.Store
	out    Outbound
	buffer *commandbuffer.Buffer
	log    *logging.Logger
	newDL  DownloaderFactory

	maxFileSize          uint64
	maxSessionsPerDevice int

	mu         sync.Mutex
	sessions   map[registryKey]*filetransfer.Session
	byDevice   map[string]int
	committing map[registryKey]bool
}

// Config holds the tunables left to configuration.
type Config struct {
	MaxFileSize          uint64
	MaxSessionsPerDevice int
}

// New builds a Service.
func New(repo *repository.Repository, store *filestore.Store, out Outbound, buffer *commandbuffer.Buffer, log *logging.Logger, newDL DownloaderFactory, cfg Config) *Service {
	maxSessions := cfg.MaxSessionsPerDevice
	if maxSessions <= 0 {
		maxSessions = 1
	}
	return &Service{
		repo:                 repo,
		store:                store,
		out:                  out,
		buffer:               buffer,
		log:                  log,
		newDL:                newDL,
		maxFileSize:          cfg.MaxFileSize,
		maxSessionsPerDevice: maxSessions,
		sessions:             make(map[registryKey]*filetransfer.Session),
		byDevice:             make(map[string]int),
		committing:           make(map[registryKey]bool),
	}
}

func (s *Service) publish(deviceKey string, msg any) {
	if err := s.out.Publish(deviceKey, msg); err != nil {
		s.log.Errorf("filemanagement: publish to %s failed: %v", deviceKey, err)
	}
}

// HandleFileUploadInitiate starts a platform-upload session.
func (s *Service) HandleFileUploadInitiate(deviceKey string, msg protocol.FileUploadInitiate) {
	if msg.Size > s.maxFileSize && s.maxFileSize > 0 {
		s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusErrorTransfer, Error: protocol.TransferErrorUnsupportedFileSize})
		return
	}

	key := registryKey{DeviceKey: deviceKey, Name: msg.Name}
	s.mu.Lock()
	if _, exists := s.sessions[key]; exists {
		s.mu.Unlock()
		s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusErrorTransfer, Error: protocol.TransferErrorProtocolDisabled})
		return
	}
	if s.byDevice[deviceKey] >= s.maxSessionsPerDevice {
		s.mu.Unlock()
		s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusErrorTransfer, Error: protocol.TransferErrorProtocolDisabled})
		return
	}

	session := filetransfer.NewPlatformSession(deviceKey, msg.Name, msg.Size, msg.Hash, s.statusCallback(deviceKey, key), s.buffer)
	s.sessions[key] = session
	s.byDevice[deviceKey]++
	s.mu.Unlock()

	s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusFileTransfer, Error: protocol.TransferErrorNone})
	s.publish(deviceKey, session.NextChunkRequest())
}

// HandleFileBinaryResponse routes one chunk to its session. Terminal
// transitions (FILE_READY, any file-scope error) are left to the
// session's registered callback, which runs through the command
// buffer — this handler only reacts to the two non-terminal outcomes
// so a terminal FILE_READY is committed before anything is announced.
func (s *Service) HandleFileBinaryResponse(deviceKey, name string, payload []byte) {
	key := registryKey{DeviceKey: deviceKey, Name: name}
	session := s.lookup(key)
	if session == nil {
		s.log.Warnf("filemanagement: binary response for unknown session %s/%s", deviceKey, name)
		return
	}

	msg, err := protocol.DecodeFileBinaryResponse(payload)
	if err != nil {
		s.log.Warnf("filemanagement: malformed binary response for %s/%s: %v", deviceKey, name, err)
		return
	}

	terr := session.PushChunk(msg)
	if session.IsDone() {
		return
	}
	if terr == protocol.TransferErrorNone {
		s.publish(deviceKey, session.NextChunkRequest())
		return
	}
	// Chunk-scope mismatch: report it but keep the session alive so the
	// device can retry the same index; this is distinct from a terminal
	// file-scope FILE_HASH_MISMATCH.
	s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusFileTransfer, Error: terr})
}

// commit writes a completed transfer's bytes to the store and records
// it in the repository. Runs on the command buffer's
// goroutine via the session's terminal callback, for both flavors.
func (s *Service) commit(deviceKey string, key registryKey, session *filetransfer.Session) {
	s.mu.Lock()
	s.committing[key] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.committing, key)
		s.mu.Unlock()
	}()

	data := session.Data()
	path, err := s.store.CreateBinary(context.Background(), session.Name(), data)
	if err != nil {
		s.log.Errorf("filemanagement: commit %s/%s failed: %s", deviceKey, session.Name(), ferrors.Path(s.store.Path(session.Name()), err).Message)
		s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusErrorTransfer, Error: protocol.TransferErrorFileSystemError})
		s.remove(key)
		return
	}

	info := repository.FileInfo{Name: session.Name(), Hash: hashutil.MD5Hex(data), Path: path}
	if err := s.repo.Store(context.Background(), info); err != nil {
		s.log.Errorf("filemanagement: repository store %s/%s failed: %s", deviceKey, session.Name(), ferrors.Database(err).Message)
		s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusErrorTransfer, Error: protocol.TransferErrorFileSystemError})
		s.remove(key)
		return
	}

	s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusFileReady, Error: protocol.TransferErrorNone})
	s.remove(key)
}

// HandleFileUploadAbort cancels the named platform upload. The
// resulting ABORTED transition is announced by the session's callback.
func (s *Service) HandleFileUploadAbort(deviceKey, name string) {
	key := registryKey{DeviceKey: deviceKey, Name: name}
	session := s.lookup(key)
	if session == nil {
		return
	}
	session.Abort()
}

// HandleFileURLDownloadInitiate starts a URL-download session.
func (s *Service) HandleFileURLDownloadInitiate(deviceKey string, msg protocol.FileURLDownloadInitiate) {
	key := registryKey{DeviceKey: deviceKey, Name: ""}
	dl := s.newDL()
	session := filetransfer.NewURLDownloadSession(deviceKey, msg.URL, dl, s.statusCallback(deviceKey, key), s.buffer)

	s.mu.Lock()
	s.sessions[key] = session
	s.byDevice[deviceKey]++
	s.mu.Unlock()

	s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusFileTransfer, Error: protocol.TransferErrorNone})
	session.TriggerDownload()
}

// HandleFileURLDownloadAbort aborts the device's active URL session.
// The resulting ABORTED transition is announced by the session's
// callback.
func (s *Service) HandleFileURLDownloadAbort(deviceKey string) {
	key := registryKey{DeviceKey: deviceKey, Name: ""}
	session := s.lookup(key)
	if session == nil {
		return
	}
	session.Abort()
}

// HandleFileListRequest answers with every name currently stored.
func (s *Service) HandleFileListRequest(ctx context.Context, deviceKey string) {
	if s.hasCommittingSession(deviceKey) {
		s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusAwaitingDevice, Error: protocol.TransferErrorNone})
		return
	}
	names, err := s.repo.ListNames(ctx)
	if err != nil {
		s.log.Errorf("filemanagement: list names failed: %s", ferrors.Database(err).Message)
		return
	}
	s.publish(deviceKey, protocol.FileListResponse{Names: names})
}

// HandleFileDelete removes one file from the repository and store.
func (s *Service) HandleFileDelete(ctx context.Context, deviceKey, name string) {
	if s.hasCommittingSession(deviceKey) {
		s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusAwaitingDevice, Error: protocol.TransferErrorNone})
		return
	}
	if err := s.store.Remove(name); err != nil {
		s.log.Errorf("filemanagement: delete %s failed: %s", name, ferrors.Path(s.store.Path(name), err).Message)
		return
	}
	if err := s.repo.Remove(ctx, name); err != nil {
		s.log.Errorf("filemanagement: repository remove %s failed: %s", name, ferrors.Database(err).Message)
		return
	}
	s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusFileReady, Error: protocol.TransferErrorNone})
}

// HandleFilePurge removes every file from the repository and store.
func (s *Service) HandleFilePurge(ctx context.Context, deviceKey string) {
	if s.hasCommittingSession(deviceKey) {
		s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusAwaitingDevice, Error: protocol.TransferErrorNone})
		return
	}
	if err := s.store.RemoveAll(); err != nil {
		s.log.Errorf("filemanagement: purge store failed: %s", ferrors.Path(s.store.Path(""), err).Message)
		return
	}
	if err := s.repo.RemoveAll(ctx); err != nil {
		s.log.Errorf("filemanagement: purge repository failed: %s", ferrors.Database(err).Message)
		return
	}
	s.publish(deviceKey, protocol.FileUploadStatus{Status: protocol.StatusFileReady, Error: protocol.TransferErrorNone})
}

// statusCallback is the single path through which every terminal
// transition of a session (both flavors) is announced: FILE_READY
// commits before announcing; any other terminal status is announced
// and the session destroyed.
func (s *Service) statusCallback(deviceKey string, key registryKey) filetransfer.StatusCallback {
	return func(status protocol.TransferStatus, err protocol.TransferError) {
		session := s.lookup(key)
		if session == nil {
			return
		}
		if status == protocol.StatusFileReady {
			s.commit(deviceKey, key, session)
			return
		}
		s.publish(deviceKey, protocol.FileUploadStatus{Status: status, Error: err})
		s.remove(key)
	}
}

func (s *Service) lookup(key registryKey) *filetransfer.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[key]
}

func (s *Service) hasCommittingSession(deviceKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, committing := range s.committing {
		if committing && key.DeviceKey == deviceKey {
			return true
		}
	}
	return false
}

func (s *Service) remove(key registryKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; ok {
		delete(s.sessions, key)
		if s.byDevice[key.DeviceKey] > 0 {
			s.byDevice[key.DeviceKey]--
		}
	}
}
