package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/wolkabout/filelink-go/internal/filemanagement"
	"github.com/wolkabout/filelink-go/internal/firmware"
	"github.com/wolkabout/filelink-go/internal/protocol"
	"github.com/wolkabout/filelink-go/internal/urlfetch"
)

func newFileManagementService(d *deps) *filemanagement.Service {
	newDL := func() urlfetch.Downloader {
		return urlfetch.NewHTTPDownloader(urlfetch.ClientOptions{
			Timeout:      d.cfg.Network.NetworkTimeout(),
			UserAgent:    d.cfg.Network.UserAgent,
			TLSVerify:    d.cfg.Network.TLSVerify,
			MaxRedirects: d.cfg.Network.MaxRedirects,
			Log:          d.log,
		})
	}
	return filemanagement.New(d.repo, d.store, stdoutOutbound{}, nil, d.log, newDL, filemanagement.Config{
		MaxFileSize:          d.cfg.General.MaxFileSizeBytes,
		MaxSessionsPerDevice: d.cfg.General.MaxSessionsPerDevice,
	})
}

func newFirmwareService(d *deps) *firmware.Service {
	installer := firmware.ProcessInstaller{Path: d.cfg.Firmware.InstallerPath}
	return firmware.New(d.repo, stdoutOutbound{}, d.log, installer, d.cfg.Firmware.MarkerPath, d.cfg.Firmware.CurrentVersion)
}

func handleList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	device := fs.String("device", "", "device key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := loadDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	newFileManagementService(d).HandleFileListRequest(ctx, *device)
	return nil
}

func handleDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	device := fs.String("device", "", "device key")
	name := fs.String("name", "", "file name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	d, err := loadDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	newFileManagementService(d).HandleFileDelete(ctx, *device, *name)
	return nil
}

func handlePurge(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	device := fs.String("device", "", "device key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := loadDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	newFileManagementService(d).HandleFilePurge(ctx, *device)
	return nil
}

func handleInstall(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	device := fs.String("device", "", "device key")
	name := fs.String("name", "", "file name already present in the repository")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	d, err := loadDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	newFirmwareService(d).HandleInstall(ctx, protocol.FirmwareInstall{DeviceKeys: []string{*device}, FileName: *name})
	return nil
}

func handleReportBoot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report-boot", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	device := fs.String("device", "", "device key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := loadDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	newFirmwareService(d).ReportBootResult([]string{*device})
	return nil
}
