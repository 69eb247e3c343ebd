// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/woozymasta/pathrules"
	"gopkg.in/yaml.v3"

	"github.com/woozymasta/pak"
)

// packConfig is the pack configuration accepted by "repak pack --config".
// Files ending in .json or .jsonc are JSON with comments; anything else is YAML.
//
//	mount_point: ../../../
//	version: V3
//	compression: zstd
//	min_compress_size: 512
//	encrypt_index: true
//	compress:
//	  case_insensitive: true
//	  rules:
//	    - include: "*.uasset"
//	    - exclude: "Movies/**"
type packConfig struct {
	MountPoint      string         `json:"mount_point" yaml:"mount_point"`
	Version         string         `json:"version" yaml:"version"`
	Compression     string         `json:"compression" yaml:"compression"`
	Compress        compressConfig `json:"compress" yaml:"compress"`
	MinCompressSize int64          `json:"min_compress_size" yaml:"min_compress_size"`
	MaxCompressSize int64          `json:"max_compress_size" yaml:"max_compress_size"`
	EncryptIndex    bool           `json:"encrypt_index" yaml:"encrypt_index"`
	EncryptEntries  bool           `json:"encrypt_entries" yaml:"encrypt_entries"`
	NoContentHash   bool           `json:"no_content_hash" yaml:"no_content_hash"`
}

// compressConfig lists ordered compression path rules.
type compressConfig struct {
	Rules           []ruleConfig `json:"rules" yaml:"rules"`
	CaseInsensitive *bool        `json:"case_insensitive" yaml:"case_insensitive"`
}

// ruleConfig is one rule; exactly one of Include or Exclude is set.
type ruleConfig struct {
	Include string `json:"include" yaml:"include"`
	Exclude string `json:"exclude" yaml:"exclude"`
}

// loadPackConfig reads and strictly decodes a pack config file.
func loadPackConfig(path string) (*packConfig, error) {
	var cfg packConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer func() { _ = f.Close() }()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return &cfg, nil
}

// apply merges config values into opts. Zero values leave opts untouched.
func (cfg *packConfig) apply(opts *pak.PackOptions) error {
	if cfg.MountPoint != "" {
		opts.Writer.MountPoint = cfg.MountPoint
	}

	if cfg.Version != "" {
		v, err := pak.ParseVersion(cfg.Version)
		if err != nil {
			return err
		}

		opts.Writer.Version = v
	}

	if cfg.Compression != "" {
		c, err := pak.ParseCompression(cfg.Compression)
		if err != nil {
			return err
		}

		opts.Compression = c
	}

	rules, err := cfg.Compress.rules()
	if err != nil {
		return err
	}

	if len(rules) > 0 {
		opts.Compress = rules
		opts.CompressMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: cfg.Compress.CaseInsensitive == nil || *cfg.Compress.CaseInsensitive,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if cfg.MinCompressSize > 0 {
		opts.MinCompressSize = cfg.MinCompressSize
	}

	if cfg.MaxCompressSize > 0 {
		opts.MaxCompressSize = cfg.MaxCompressSize
	}

	opts.Writer.EncryptIndex = opts.Writer.EncryptIndex || cfg.EncryptIndex
	opts.EncryptEntries = opts.EncryptEntries || cfg.EncryptEntries
	opts.Writer.NoContentHash = opts.Writer.NoContentHash || cfg.NoContentHash
	return nil
}

// rules converts config rules to pathrules in declared order.
func (c compressConfig) rules() ([]pathrules.Rule, error) {
	out := make([]pathrules.Rule, 0, len(c.Rules))
	for i, r := range c.Rules {
		include := strings.TrimSpace(r.Include)
		exclude := strings.TrimSpace(r.Exclude)

		switch {
		case include != "" && exclude == "":
			out = append(out, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: include})
		case exclude != "" && include == "":
			out = append(out, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: exclude})
		default:
			return nil, fmt.Errorf("%w: rule %d must set exactly one of include or exclude", pak.ErrInvalidCompressPattern, i)
		}
	}

	return out, nil
}
