package filemanagement

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolkabout/filelink-go/internal/filestore"
	"github.com/wolkabout/filelink-go/internal/logging"
	"github.com/wolkabout/filelink-go/internal/protocol"
	"github.com/wolkabout/filelink-go/internal/repository"
	"github.com/wolkabout/filelink-go/internal/urlfetch"
)

type fakeOutbound struct {
	mu       sync.Mutex
	messages []any
}

func (f *fakeOutbound) Publish(deviceKey string, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeOutbound) last() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

func newTestService(t *testing.T) (*Service, *fakeOutbound) {
	t.Helper()
	dir := t.TempDir()
	repo, err := repository.Open(filepath.Join(dir, "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	store, err := filestore.New(filepath.Join(dir, "store"))
	require.NoError(t, err)

	out := &fakeOutbound{}
	log := logging.New("error", false)
	svc := New(repo, store, out, nil, log, func() urlfetch.Downloader { return urlfetch.NewMockDownloader() }, Config{MaxFileSize: 1 << 20, MaxSessionsPerDevice: 2})
	return svc, out
}

func zeroHash() []byte { return make([]byte, 32) }

func TestUploadInitiateEmitsFileTransferAndFirstChunkRequest(t *testing.T) {
	svc, out := newTestService(t)
	svc.HandleFileUploadInitiate("dev1", protocol.FileUploadInitiate{Name: "a.bin", Size: 10, Hash: "h"})

	req, ok := out.last().(protocol.FileBinaryRequest)
	require.True(t, ok)
	require.Equal(t, "a.bin", req.Name)
	require.Equal(t, uint64(0), req.Index)
}

func TestUploadInitiateRejectsOversizedFile(t *testing.T) {
	svc, out := newTestService(t)
	svc.HandleFileUploadInitiate("dev1", protocol.FileUploadInitiate{Name: "big.bin", Size: 1 << 30, Hash: "h"})

	status, ok := out.last().(protocol.FileUploadStatus)
	require.True(t, ok)
	require.Equal(t, protocol.StatusErrorTransfer, status.Status)
	require.Equal(t, protocol.TransferErrorUnsupportedFileSize, status.Error)
}

func TestUploadInitiateRejectsDuplicateActiveSession(t *testing.T) {
	svc, out := newTestService(t)
	svc.HandleFileUploadInitiate("dev1", protocol.FileUploadInitiate{Name: "a.bin", Size: 10, Hash: "h"})
	svc.HandleFileUploadInitiate("dev1", protocol.FileUploadInitiate{Name: "a.bin", Size: 10, Hash: "h"})

	status, ok := out.last().(protocol.FileUploadStatus)
	require.True(t, ok)
	require.Equal(t, protocol.TransferErrorProtocolDisabled, status.Error)
}

func TestSingleChunkUploadCommitsToRepositoryAndStore(t *testing.T) {
	svc, out := newTestService(t)
	data := bytes.Repeat([]byte{0x41}, 100)
	sum := md5.Sum(data)
	hashHex := hex.EncodeToString(sum[:])

	svc.HandleFileUploadInitiate("dev1", protocol.FileUploadInitiate{Name: "t.file", Size: uint64(len(data)), Hash: hashHex})

	curSum := sha256.Sum256(data)
	payload := append(append(zeroHash(), data...), curSum[:]...)
	svc.HandleFileBinaryResponse("dev1", "t.file", payload)

	status, ok := out.last().(protocol.FileUploadStatus)
	require.True(t, ok)
	require.Equal(t, protocol.StatusFileReady, status.Status)

	info, found, err := svc.repo.GetInfo(context.Background(), "t.file")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "t.file", info.Name)
}

func TestUploadAbortRemovesSessionAndAllowsReinitiate(t *testing.T) {
	svc, out := newTestService(t)
	svc.HandleFileUploadInitiate("dev1", protocol.FileUploadInitiate{Name: "a.bin", Size: 10, Hash: "h"})
	svc.HandleFileUploadAbort("dev1", "a.bin")

	status, ok := out.last().(protocol.FileUploadStatus)
	require.True(t, ok)
	require.Equal(t, protocol.StatusAborted, status.Status)

	// Session destroyed: re-initiating the same name now succeeds.
	svc.HandleFileUploadInitiate("dev1", protocol.FileUploadInitiate{Name: "a.bin", Size: 10, Hash: "h"})
	req, ok := out.last().(protocol.FileBinaryRequest)
	require.True(t, ok)
	require.Equal(t, "a.bin", req.Name)
}

func TestFileListRequestReturnsStoredNames(t *testing.T) {
	svc, out := newTestService(t)
	require.NoError(t, svc.repo.Store(context.Background(), repository.FileInfo{Name: "x", Hash: "h", Path: "/p"}))

	svc.HandleFileListRequest(context.Background(), "dev1")
	resp, ok := out.last().(protocol.FileListResponse)
	require.True(t, ok)
	require.Contains(t, resp.Names, "x")
}

func TestFileDeleteRemovesFromRepositoryAndStore(t *testing.T) {
	svc, out := newTestService(t)
	path, err := svc.store.CreateBinary(context.Background(), "x", []byte("data"))
	require.NoError(t, err)
	require.NoError(t, svc.repo.Store(context.Background(), repository.FileInfo{Name: "x", Hash: "h", Path: path}))

	svc.HandleFileDelete(context.Background(), "dev1", "x")

	_, found, err := svc.repo.GetInfo(context.Background(), "x")
	require.NoError(t, err)
	require.False(t, found)

	status, ok := out.last().(protocol.FileUploadStatus)
	require.True(t, ok)
	require.Equal(t, protocol.StatusFileReady, status.Status)
}

func TestFilePurgeEmptiesRepositoryAndStore(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.store.CreateBinary(context.Background(), "a", []byte("1"))
	require.NoError(t, err)
	require.NoError(t, svc.repo.Store(context.Background(), repository.FileInfo{Name: "a", Hash: "h", Path: "/p"}))

	svc.HandleFilePurge(context.Background(), "dev1")

	names, err := svc.repo.ListNames(context.Background())
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestURLDownloadInitiateCommitsOnSuccess(t *testing.T) {
	dir := t.TempDir()
	repo, err := repository.Open(filepath.Join(dir, "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	store, err := filestore.New(filepath.Join(dir, "store"))
	require.NoError(t, err)

	out := &fakeOutbound{}
	log := logging.New("error", false)
	mock := urlfetch.NewMockDownloader()
	mock.ResultName = "file.bin"
	mock.ResultData = []byte("downloaded bytes")
	svc := New(repo, store, out, nil, log, func() urlfetch.Downloader { return mock }, Config{MaxFileSize: 1 << 20, MaxSessionsPerDevice: 1})

	svc.HandleFileURLDownloadInitiate("dev1", protocol.FileURLDownloadInitiate{URL: "https://example.com/file.bin"})

	require.Eventually(t, func() bool {
		status, ok := out.last().(protocol.FileUploadStatus)
		return ok && status.Status == protocol.StatusFileReady
	}, time.Second, time.Millisecond)

	info, found, err := repo.GetInfo(context.Background(), "file.bin")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "file.bin", info.Name)
}
