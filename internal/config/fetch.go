// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter/v2"
)

// ErrFetchConfig is returned when a configuration URL cannot be retrieved.
var ErrFetchConfig = errors.New("failed to get config file")

const (
	goGetterPathSeparator = "//"
	goGetterRefSeparator  = "?"
	minimumGetterParts    = 3 // scheme, host and path
)

// FromURL fetches a configuration with go-getter and parses it. Local paths behave like Load.
func FromURL(ctx context.Context, url string) (*Config, error) {
	if url == "" {
		return Default(), nil
	}

	data, err := Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Resolve builds the effective configuration: the file at url (or the defaults), then
// FANOUT_* overrides from the process environment and the .env file at envFile.
func Resolve(ctx context.Context, url, envFile string) (*Config, error) {
	cfg, err := FromURL(ctx, url)
	if err != nil {
		return nil, err
	}

	dotenv := map[string]string{}

	if envFile != "" {
		if dotenv, err = ReadDotEnv(envFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(Environment(dotenv)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Fetch retrieves a single file using go-getter syntax, e.g. a local path or
// "git::https://example.com/repo.git//fanout.yaml?ref=main". Remote URLs must separate the
// file from its source with "//".
func Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, ErrFetchConfig
	}

	tmpDir, err := os.MkdirTemp("", "fanout-getter-*")
	if err != nil {
		return nil, errors.Join(ErrFetchConfig, err)
	}

	defer os.RemoveAll(tmpDir) //nolint:errcheck

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Join(ErrFetchConfig, err)
	}

	client := getter.Client{
		DisableSymlinks: true,
	}

	req := &getter.Request{
		Src:     url,
		Dst:     filepath.Join(tmpDir, "g"),
		Pwd:     wd,
		GetMode: getter.ModeDir,
	}

	var fileName string

	// Remote sources are fetched as a directory and the file is read from it.
	// https://github.com/hashicorp/go-getter/issues/98
	if ok, err := getter.Detect(req, &getter.FileGetter{}); !ok || err != nil {
		if err != nil {
			return nil, errors.Join(ErrFetchConfig, err)
		}

		var newURL string

		newURL, fileName = splitFileNameFromGetterURL(url)
		if newURL == "" || fileName == "" {
			return nil, fmt.Errorf("%w: invalid URL format: %s", ErrFetchConfig, url)
		}

		req.Src = newURL
	}

	if fileName == "" {
		req.Src = filepath.Dir(url)
		fileName = filepath.Base(url)
	}

	res, err := client.Get(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrFetchConfig, err)
	}

	data, err := os.ReadFile(filepath.Join(res.Dst, fileName))
	if err != nil {
		return nil, errors.Join(ErrFetchConfig, err)
	}

	return data, nil
}

// splitFileNameFromGetterURL returns the getter URL of the directory holding the file, with
// any ref query kept, and the file name.
func splitFileNameFromGetterURL(url string) (string, string) {
	var ref string

	parts := strings.Split(url, goGetterPathSeparator)
	if len(parts) < minimumGetterParts {
		return "", ""
	}

	last := parts[len(parts)-1]

	if before, after, ok := strings.Cut(last, goGetterRefSeparator); ok {
		ref = after
		last = before
	}

	if filepath.Clean(last) == filepath.Dir(last) {
		return "", ""
	}

	fileName := filepath.Base(last)
	dir := filepath.Dir(last)

	if dir == "." {
		parts = parts[:len(parts)-1]
	} else {
		parts[len(parts)-1] = dir
	}

	newURL := strings.Join(parts, goGetterPathSeparator)

	if ref != "" {
		newURL += goGetterRefSeparator + ref
	}

	return newURL, fileName
}
