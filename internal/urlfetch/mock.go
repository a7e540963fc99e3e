package urlfetch

import (
	"context"

	"github.com/wolkabout/filelink-go/internal/protocol"
)

// MockDownloader is a scriptable Downloader for internal/filetransfer's
// tests: no network I/O, just canned results.
type MockDownloader struct {
	status protocol.TransferStatus
	name   string
	data   []byte

	// ResultStatus/ResultError/ResultName/ResultData are returned by
	// Download as if they had been fetched from the network.
	ResultStatus protocol.TransferStatus
	ResultError  protocol.TransferError
	ResultName   string
	ResultData   []byte

	Aborted    bool
	Downloaded bool
	LastURL    string
}

// NewMockDownloader returns a MockDownloader that succeeds by default.
func NewMockDownloader() *MockDownloader {
	return &MockDownloader{
		status:       protocol.StatusFileTransfer,
		ResultStatus: protocol.StatusFileReady,
		ResultError:  protocol.TransferErrorNone,
	}
}

func (m *MockDownloader) Status() protocol.TransferStatus { return m.status }
func (m *MockDownloader) Name() string                    { return m.name }
func (m *MockDownloader) Bytes() []byte                   { return m.data }

func (m *MockDownloader) Abort() {
	m.Aborted = true
	if m.status != protocol.StatusFileReady {
		m.status = protocol.StatusAborted
	}
}

func (m *MockDownloader) Download(ctx context.Context, url string, onStatus StatusFunc) {
	m.Downloaded = true
	m.LastURL = url
	if m.Aborted {
		return
	}
	m.status = m.ResultStatus
	if m.status == protocol.StatusFileReady {
		m.name = m.ResultName
		m.data = m.ResultData
	}
	onStatus(m.status, m.ResultError, m.name)
}
