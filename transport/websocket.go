/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package transport

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"

	"github.com/gorilla/websocket"
	"github.com/ortuman/xmppd/xml"
)

// wsTransport adapts a gorilla/websocket connection to the Transport
// surface. RFC 7395 frames each XMPP document (open, stanza, close) as an
// independent WebSocket text message rather than one continuous byte
// stream; Read stitches inbound messages into the io.Reader Parser expects
// by handing back one message's bytes at a time.
type wsTransport struct {
	conn   *websocket.Conn
	pend   *bytes.Reader
	secure bool
}

// NewWebSocketTransport wraps an upgraded *websocket.Conn. secure reports
// whether the underlying HTTP connection was already TLS-terminated (the
// XMPP-over-WebSocket binding has no in-band STARTTLS of its own — TLS, if
// any, is negotiated once at the HTTP layer).
func NewWebSocketTransport(conn *websocket.Conn, secure bool) Transport {
	return &wsTransport{conn: conn, secure: secure}
}

func (t *wsTransport) Type() Type { return WebSocket }

func (t *wsTransport) Read(p []byte) (int, error) {
	for t.pend == nil || t.pend.Len() == 0 {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		t.pend = bytes.NewReader(data)
	}
	return t.pend.Read(p)
}

func (t *wsTransport) Write(p []byte) (int, error) {
	if err := t.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// StartTLS is unreachable: the stream state machine offers STARTTLS only
// over Socket transports and marks every WebSocket stream as secured (see
// c2s.New), but the Transport interface requires the method.
func (t *wsTransport) StartTLS(cfg *tls.Config) error {
	return errors.New("transport: STARTTLS is not valid over a websocket transport")
}

func (t *wsTransport) WriteElement(e xml.XElement, includeClosing bool) error {
	_, err := t.Write([]byte(serialize(e, includeClosing)))
	return err
}

func (t *wsTransport) WriteString(s string) error {
	_, err := t.Write([]byte(s))
	return err
}

var _ io.Reader = (*wsTransport)(nil)
