package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wolkabout/filelink-go/internal/commandbuffer"
	"github.com/wolkabout/filelink-go/internal/demoscript"
	"github.com/wolkabout/filelink-go/internal/filemanagement"
	"github.com/wolkabout/filelink-go/internal/firmware"
	"github.com/wolkabout/filelink-go/internal/hashutil"
	"github.com/wolkabout/filelink-go/internal/logging"
	"github.com/wolkabout/filelink-go/internal/protocol"
	"github.com/wolkabout/filelink-go/internal/urlfetch"
)

func handleServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	scriptPath := fs.String("script", "", "scripted transfer file (defaults to a small built-in demo)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := loadDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	script := demoscript.Default()
	if *scriptPath != "" {
		script, err = demoscript.Load(*scriptPath)
		if err != nil {
			return err
		}
	}

	buffer := commandbuffer.New(ctx)
	defer buffer.Close()

	sessionID := uuid.NewString()
	d.log.Infof("serve: session %s starting, %d step(s)", sessionID, len(script.Steps))

	transport := newLoopbackTransport(d.log, d.cfg.General.MaxChunkSizeBytes)

	newDL := func() urlfetch.Downloader {
		return urlfetch.NewHTTPDownloader(urlfetch.ClientOptions{
			Timeout:      d.cfg.Network.NetworkTimeout(),
			UserAgent:    d.cfg.Network.UserAgent,
			TLSVerify:    d.cfg.Network.TLSVerify,
			MaxRedirects: d.cfg.Network.MaxRedirects,
			Log:          d.log,
		})
	}
	fm := filemanagement.New(d.repo, d.store, transport, buffer, d.log, newDL, filemanagement.Config{
		MaxFileSize:          d.cfg.General.MaxFileSizeBytes,
		MaxSessionsPerDevice: d.cfg.General.MaxSessionsPerDevice,
	})
	transport.fm = fm

	installer := firmware.ProcessInstaller{Path: d.cfg.Firmware.InstallerPath}
	fw := firmware.New(d.repo, transport, d.log, installer, d.cfg.Firmware.MarkerPath, d.cfg.Firmware.CurrentVersion)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runScript(fm, fw, transport, script, d.log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		d.log.Infof("serve: shutting down")
		return nil
	})

	return g.Wait()
}

func runScript(fm *filemanagement.Service, fw *firmware.Service, transport *loopbackTransport, script *demoscript.Script, log *logging.Logger) {
	for _, step := range script.Steps {
		switch step.Action {
		case demoscript.ActionUpload:
			content := []byte(step.Content)
			sum := hashutil.MD5Hex(content)
			transport.setContent(step.Device, step.Name, content)
			log.Infof("serve: uploading %s (%s) from %s", step.Name, humanize.Bytes(uint64(len(content))), step.Device)
			fm.HandleFileUploadInitiate(step.Device, protocol.FileUploadInitiate{
				Name: step.Name,
				Size: uint64(len(content)),
				Hash: sum,
			})
		case demoscript.ActionURLDownload:
			log.Infof("serve: downloading %s for %s", logging.SanitizeURL(step.URL), step.Device)
			fm.HandleFileURLDownloadInitiate(step.Device, protocol.FileURLDownloadInitiate{URL: step.URL})
		case demoscript.ActionInstall:
			log.Infof("serve: installing %s for %s", step.FileName, step.Device)
			fw.HandleInstall(context.Background(), protocol.FirmwareInstall{DeviceKeys: []string{step.Device}, FileName: step.FileName})
		}
		// The command buffer drains asynchronously; give each scripted
		// step a moment to settle before starting the next so log output
		// reads in the order the script describes.
		time.Sleep(50 * time.Millisecond)
	}
}

// loopbackTransport stands in for a real platform connection (the
// transport itself is out of scope here): it logs every outbound
// message and, for FileBinaryRequest, drives the chunked upload back
// into the file management service by slicing a step's literal content
// — the role a real device's chunk-reader would play.
type loopbackTransport struct {
	log       *logging.Logger
	chunkSize uint64
	fm        *filemanagement.Service

	mu      sync.Mutex
	content map[string][]byte
}

func newLoopbackTransport(log *logging.Logger, chunkSize uint64) *loopbackTransport {
	if chunkSize == 0 {
		chunkSize = 1 << 16
	}
	return &loopbackTransport{log: log, chunkSize: chunkSize, content: make(map[string][]byte)}
}

func (t *loopbackTransport) setContent(device, name string, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.content[device+"\x00"+name] = data
}

func (t *loopbackTransport) getContent(device, name string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, ok := t.content[device+"\x00"+name]
	return data, ok
}

func (t *loopbackTransport) Publish(deviceKey string, msg any) error {
	switch m := msg.(type) {
	case protocol.FileBinaryRequest:
		if m.Name == "" {
			return nil
		}
		go t.respondChunk(deviceKey, m)
	case protocol.FileUploadStatus:
		t.log.Infof("device %s: upload status=%s error=%s", deviceKey, m.Status, m.Error)
	case protocol.FileListResponse:
		t.log.Infof("device %s: files=%v", deviceKey, m.Names)
	case protocol.FirmwareUpdateStatus:
		t.log.Infof("firmware %v: status=%s error=%s", m.DeviceKeys, m.Status, m.Error)
	case protocol.FirmwareVersion:
		t.log.Infof("device %s: firmware version=%s", deviceKey, m.Version)
	default:
		t.log.Debugf("device %s: published %T", deviceKey, msg)
	}
	return nil
}

func (t *loopbackTransport) respondChunk(deviceKey string, req protocol.FileBinaryRequest) {
	content, ok := t.getContent(deviceKey, req.Name)
	if !ok {
		return
	}
	start := req.Index * t.chunkSize
	if start >= uint64(len(content)) {
		return
	}
	end := start + t.chunkSize
	if end > uint64(len(content)) {
		end = uint64(len(content))
	}
	chunk := content[start:end]

	var prevHash [32]byte
	if req.Index > 0 {
		prevStart := (req.Index - 1) * t.chunkSize
		prevHash = sha256.Sum256(content[prevStart:start])
	}
	curHash := sha256.Sum256(chunk)

	payload := make([]byte, 0, 64+len(chunk))
	payload = append(payload, prevHash[:]...)
	payload = append(payload, chunk...)
	payload = append(payload, curHash[:]...)

	t.fm.HandleFileBinaryResponse(deviceKey, req.Name, payload)
}
