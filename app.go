// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"fmt"
	"strings"
)

const (
	// AppName is the name the Nostr app reports on the device.
	AppName = "Ledgstr"
	// DashboardAppName is reported while no app is running.
	DashboardAppName = "BOLOS"
)

// AppDescriptor describes the application currently resident on the device.
type AppDescriptor struct {
	Name         string
	Version      string
	VersionMajor int
	VersionMinor int
	VersionPatch int
	Flags        []byte
}

func (a *AppDescriptor) String() string {
	return fmt.Sprintf("%s v%s", a.Name, a.Version)
}

// GetCurrentApp asks the dashboard which app is running.
//
// Reply layout: format(1) | nameLen(1) | name | versionLen(1) | version | flagsLen(1) | flags
func GetCurrentApp(s *Session) (*AppDescriptor, error) {
	reply, err := s.Send(Command{CLA: claDashboard, INS: insGetAppAndVersion})
	if err != nil {
		return nil, err
	}
	return parseAppDescriptor(reply[:len(reply)-2])
}

func parseAppDescriptor(data []byte) (*AppDescriptor, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty reply", ErrInvalidAppFormat)
	}
	if data[0] != 1 {
		return nil, fmt.Errorf("%w: format %d", ErrInvalidAppFormat, data[0])
	}

	rest := data[1:]
	field := func(name string) ([]byte, error) {
		if len(rest) < 1 {
			return nil, fmt.Errorf("%w: missing %s length", ErrInvalidAppFormat, name)
		}
		n := int(rest[0])
		if len(rest) < 1+n {
			return nil, fmt.Errorf("%w: %s truncated", ErrInvalidAppFormat, name)
		}
		value := rest[1 : 1+n]
		rest = rest[1+n:]
		return value, nil
	}

	name, err := field("name")
	if err != nil {
		return nil, err
	}
	version, err := field("version")
	if err != nil {
		return nil, err
	}
	flags, err := field("flags")
	if err != nil {
		return nil, err
	}

	app := &AppDescriptor{
		Name:    string(name),
		Version: string(version),
		Flags:   append([]byte{}, flags...),
	}
	app.VersionMajor, app.VersionMinor, app.VersionPatch = parseVersion(app.Version)
	return app, nil
}

// parseVersion reads "1.2.3". A version without dots is read one digit per
// component, so "123" is 1.2.3. Missing or non-numeric components are 0.
func parseVersion(version string) (major, minor, patch int) {
	parts := strings.Split(version, ".")
	if len(parts) == 1 {
		parts = strings.Split(version, "")
	}

	var out [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		out[i] = leadingInt(parts[i])
	}
	return out[0], out[1], out[2]
}

func leadingInt(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// OpenApp asks the dashboard to launch the named app.
func OpenApp(s *Session, name string) error {
	_, err := s.Send(Command{CLA: claNostr, INS: insOpenApp, Data: []byte(name)})
	return err
}

// QuitApp leaves the resident app and returns to the dashboard.
func QuitApp(s *Session) error {
	_, err := s.Send(Command{CLA: claDashboard, INS: insQuitApp})
	return err
}

// ensureApp makes sure the Nostr app is running and returns its descriptor.
func ensureApp(s *Session) (*AppDescriptor, error) {
	app, err := GetCurrentApp(s)
	if err != nil {
		return nil, err
	}
	log.Debugf("resident app: %s", app)

	if app.Name == AppName {
		return app, nil
	}

	if app.Name != DashboardAppName {
		log.Debugf("quitting %s", app.Name)
		if err := QuitApp(s); err != nil {
			return nil, fmt.Errorf("quit %s: %w", app.Name, err)
		}
	}

	log.Debugf("launching %s", AppName)
	if err := OpenApp(s, AppName); err != nil {
		return nil, fmt.Errorf("open %s: %w", AppName, err)
	}

	return GetCurrentApp(s)
}
