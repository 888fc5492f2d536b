/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package config is the "external options component" spec.md §6 treats as
// a read-only collaborator of the core: a plain struct tree the core
// consumes, unmarshaled from a YAML file via gopkg.in/yaml.v2 (matching the
// teacher's go.mod) by cmd/xmppd.
package config

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// ResourceConflictPolicy selects what happens when a bind request names a
// resource already bound to the same bare JID (spec.md §4.6's resource
// generation rule, enriched per SPEC_FULL.md §4 with the teacher's three
// policies).
type ResourceConflictPolicy string

const (
	// Reject answers the new request with <conflict/>, leaving the
	// existing binding untouched — the only policy spec.md's own scenario
	// 5 describes.
	Reject ResourceConflictPolicy = "reject"
	// Override lets the new request in under a server-generated resource
	// instead of the one it asked for.
	Override ResourceConflictPolicy = "override"
	// Replace disconnects the previously bound stream and hands the
	// requested resource to the new one.
	Replace ResourceConflictPolicy = "replace"
)

// TLSConfig carries the certificate/key pair location (spec.md §6).
type TLSConfig struct {
	Enabled          bool   `yaml:"ssl_enabled"`
	CertificatePath  string `yaml:"ssl_certificate_path"`
	PrivateKeyPath   string `yaml:"ssl_private_key_path"`
}

// WebSocketConfig is the SPEC_FULL.md §3 WebSocket transport addition.
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"listen_addr"`
	Port    int    `yaml:"listen_port"`
	Path    string `yaml:"path"`
}

// ModulesConfig toggles optional components, the way the teacher's
// cfg.Modules.Enabled map does for xep0077/xep0199/etc. Here it only needs
// to gate the MUC glue component.
type ModulesConfig struct {
	Enabled map[string]struct{} `yaml:"enabled"`
}

// Config is the root configuration tree.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	ListenPort int    `yaml:"listen_port"`
	ServerName string `yaml:"server_name"`

	TLS TLSConfig `yaml:",inline"`

	BufferSize       int                     `yaml:"buffer_size"`
	MaxStanzaSize    int                     `yaml:"max_stanza_size"`
	ConnectTimeout   int                     `yaml:"connect_timeout"`
	SASL             []string                `yaml:"sasl"`
	ResourceConflict ResourceConflictPolicy  `yaml:"resource_conflict"`
	WebSocket        WebSocketConfig         `yaml:"websocket"`
	Modules          ModulesConfig           `yaml:"modules"`
}

// Default returns a Config with the same defaults jackal-family servers
// ship: PLAIN SASL, a 64KiB per-connection buffer, reject-on-conflict
// resource binding.
func Default() *Config {
	return &Config{
		ListenAddr:       "0.0.0.0",
		ListenPort:       5222,
		ServerName:       "localhost",
		BufferSize:       65536,
		MaxStanzaSize:    131072,
		ConnectTimeout:   5,
		SASL:             []string{"plain"},
		ResourceConflict: Reject,
	}
}

// Load reads and unmarshals a YAML configuration file.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "config: parsing %s", path)
	}
	return cfg, nil
}
