/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package server

import (
	"testing"

	"github.com/ortuman/xmppd/config"
	"github.com/stretchr/testify/require"
)

func TestLoadTLSConfig_DisabledReturnsNil(t *testing.T) {
	cfg := &config.TLSConfig{Enabled: false}
	tlsCfg, err := LoadTLSConfig(cfg)
	require.NoError(t, err)
	require.Nil(t, tlsCfg)
}

func TestLoadTLSConfig_MissingCertificateFails(t *testing.T) {
	cfg := &config.TLSConfig{
		Enabled:         true,
		CertificatePath: "/nonexistent/cert.pem",
		PrivateKeyPath:  "/nonexistent/key.pem",
	}
	_, err := LoadTLSConfig(cfg)
	require.Error(t, err)
}
