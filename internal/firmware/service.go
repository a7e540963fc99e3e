// Package firmware implements FirmwareUpdateService: accepts
// install/abort commands, invokes the external installer, and
// reconciles the outcome across a reboot via a version marker file
// written before handoff and read back once on the next boot.
package firmware

import (
	"context"
	"os"
	"strings"

	"github.com/wolkabout/filelink-go/internal/logging"
	"github.com/wolkabout/filelink-go/internal/protocol"
	"github.com/wolkabout/filelink-go/internal/repository"
)

// Installer is the single capability this service requires: a
// synchronous install call that may not return, if it replaces the
// running process in place.
type Installer interface {
	Install(absoluteFilePath string) bool
}

// Outbound is the single method the external connectivity collaborator
// must supply.
type Outbound interface {
	Publish(deviceKey string, msg any) error
}

// Service is FirmwareUpdateService.
type Service struct {
	repo       *repository.Repository
	out        Outbound
	log        *logging.Logger
	installer  Installer
	markerPath string
	version    string
}

// New builds a Service. markerPath is the well-known marker file
// location; version is this build's firmware version.
func New(repo *repository.Repository, out Outbound, log *logging.Logger, installer Installer, markerPath, version string) *Service {
	return &Service{repo: repo, out: out, log: log, installer: installer, markerPath: markerPath, version: version}
}

func (s *Service) publish(deviceKeys []string, status protocol.FirmwareStatus, err protocol.FirmwareError) {
	msg := protocol.FirmwareUpdateStatus{DeviceKeys: deviceKeys, Status: status, Error: err}
	for _, key := range deviceKeys {
		if pubErr := s.out.Publish(key, msg); pubErr != nil {
			s.log.Errorf("firmware: publish to %s failed: %v", key, pubErr)
		}
	}
}

// HandleInstall validates the requested file, writes the pre-install
// marker, announces installation, and hands off to the installer.
func (s *Service) HandleInstall(ctx context.Context, msg protocol.FirmwareInstall) {
	// Empty name or missing repository entry both mean FILE_NOT_PRESENT.
	if strings.TrimSpace(msg.FileName) == "" {
		s.publish(msg.DeviceKeys, protocol.FirmwareStatusError, protocol.FirmwareErrorFileNotPresent)
		return
	}
	info, found, err := s.repo.GetInfo(ctx, msg.FileName)
	if err != nil {
		s.log.Errorf("firmware: repository lookup for %s failed: %v", msg.FileName, err)
		s.publish(msg.DeviceKeys, protocol.FirmwareStatusError, protocol.FirmwareErrorFileSystemError)
		return
	}
	if !found {
		s.publish(msg.DeviceKeys, protocol.FirmwareStatusError, protocol.FirmwareErrorFileNotPresent)
		return
	}

	// Write the marker before handing off to the installer.
	if err := s.writeMarker(); err != nil {
		s.log.Errorf("firmware: marker write failed: %v", err)
		s.publish(msg.DeviceKeys, protocol.FirmwareStatusError, protocol.FirmwareErrorFileSystemError)
		return
	}

	s.publish(msg.DeviceKeys, protocol.FirmwareStatusInstallation, protocol.FirmwareErrorNone)

	// Fire-and-forget: a successful in-place replacement never returns;
	// only a rejection is observed here.
	if !s.installer.Install(info.Path) {
		s.publish(msg.DeviceKeys, protocol.FirmwareStatusError, protocol.FirmwareErrorInstallationFail)
	}
}

// HandleAbort forwards an abort request as-is.
func (s *Service) HandleAbort(msg protocol.FirmwareAbort) {
	s.publish(msg.DeviceKeys, protocol.FirmwareStatusAborted, protocol.FirmwareErrorNone)
}

// ReportBootResult reconciles the outcome of an installer handoff
// against the version now running.
func (s *Service) ReportBootResult(deviceKeys []string) {
	marker, err := os.ReadFile(s.markerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		s.log.Errorf("firmware: marker read failed: %v", err)
		return
	}

	preInstallVersion := strings.TrimSpace(string(marker))
	if preInstallVersion != s.version {
		s.publish(deviceKeys, protocol.FirmwareStatusCompleted, protocol.FirmwareErrorNone)
	} else {
		s.publish(deviceKeys, protocol.FirmwareStatusError, protocol.FirmwareErrorInstallationFail)
	}

	if err := os.Remove(s.markerPath); err != nil && !os.IsNotExist(err) {
		s.log.Errorf("firmware: marker removal failed: %v", err)
	}
}

// PublishFirmwareVersion announces the running version at steady
// state.
func (s *Service) PublishFirmwareVersion(deviceKey string) {
	if err := s.out.Publish(deviceKey, protocol.FirmwareVersion{DeviceKey: deviceKey, Version: s.version}); err != nil {
		s.log.Errorf("firmware: publish version to %s failed: %v", deviceKey, err)
	}
}

func (s *Service) writeMarker() error {
	return os.WriteFile(s.markerPath, []byte(s.version+"\n"), 0o644)
}
