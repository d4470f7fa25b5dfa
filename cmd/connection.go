// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/portcullis/internal/config"
)

// Connection provides a common interface for reading/writing bytes from serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket
// connection. It matches io.EOF so the link reports the partner as gone.
var ErrConnectionClosed = fmt.Errorf("websocket connection closed: %w", io.EOF)

// WebSocketConnection wraps a WebSocket connection for byte-level reading
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool // Track if connection has failed/closed

	writeMu sync.Mutex
	onClose func() error
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// Return immediately if connection is known to be closed
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, fmt.Errorf("%w (%v)", ErrConnectionClosed, err)
		}

		// The link only carries binary messages
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	err := w.conn.Close()
	if w.onClose != nil {
		err = multierr.Append(err, w.onClose())
	}
	return err
}

// serialParity maps the configured parity name
func serialParity(name string) (serial.Parity, error) {
	switch name {
	case "", "even":
		return serial.EvenParity, nil
	case "odd":
		return serial.OddParity, nil
	case "none":
		return serial.NoParity, nil
	default:
		return serial.NoParity, fmt.Errorf("unsupported parity %q", name)
	}
}

// OpenSerialConnection opens a serial port connection with 8 data bits and
// one stop bit
func OpenSerialConnection(portName string, baudRate int, parity string) (Connection, error) {
	p, err := serialParity(parity)
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   p,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// ServeWebSocketConnection serves on ln and returns the first authenticated
// WebSocket peer. Later peers are refused while it is open. Closing the
// connection stops the server.
func ServeWebSocketConnection(ctx context.Context, ln net.Listener, username, password string, logger *zap.Logger) (Connection, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64,
		WriteBufferSize: 64,
	}
	accepted := make(chan *websocket.Conn, 1)
	var (
		mu    sync.Mutex
		taken bool
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if username != "" && !checkBasicAuth(r, username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="portcullis"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			logger.Warn("rejected link peer", zap.String("remote", r.RemoteAddr))
			return
		}
		mu.Lock()
		busy := taken
		taken = true
		mu.Unlock()
		if busy {
			http.Error(w, "link already in use", http.StatusConflict)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			mu.Lock()
			taken = false
			mu.Unlock()
			return
		}
		logger.Info("link peer connected", zap.String("remote", r.RemoteAddr))
		accepted <- conn
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("link server stopped", zap.Error(err))
		}
	}()

	select {
	case conn := <-accepted:
		return &WebSocketConnection{conn: conn, onClose: srv.Close}, nil
	case <-ctx.Done():
		return nil, multierr.Append(ctx.Err(), srv.Close())
	}
}

func checkBasicAuth(r *http.Request, username, password string) bool {
	u, p, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(u), []byte(username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(p), []byte(password)) == 1
	return userOK && passOK
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("PORTCULLIS_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

func linkPassword(username string) (string, error) {
	if username == "" {
		return "", nil
	}
	return GetPassword()
}

// OpenHMIConnection opens the HMI side of the link: a dialed WebSocket or a
// serial port
func OpenHMIConnection(cfg config.LinkConfig) (Connection, string, error) {
	if cfg.URL != "" {
		password, err := linkPassword(cfg.Username)
		if err != nil {
			return nil, "", err
		}
		conn, err := OpenWebSocketConnection(cfg.URL, cfg.Username, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cfg.URL), nil
	}
	return openSerial(cfg)
}

// OpenControlConnection opens the Control side of the link: a served
// WebSocket or a serial port
func OpenControlConnection(ctx context.Context, cfg config.LinkConfig, logger *zap.Logger) (Connection, string, error) {
	if cfg.Listen != "" {
		password, err := linkPassword(cfg.Username)
		if err != nil {
			return nil, "", err
		}
		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return nil, "", fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
		}
		logger.Info("waiting for HMI", zap.String("listen", ln.Addr().String()))
		conn, err := ServeWebSocketConnection(ctx, ln, cfg.Username, password, logger)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket server: %s", cfg.Listen), nil
	}
	return openSerial(cfg)
}

// OpenMonitorConnection opens a passive connection for observing a link
func OpenMonitorConnection(cfg config.LinkConfig) (Connection, string, error) {
	return OpenHMIConnection(cfg)
}

func openSerial(cfg config.LinkConfig) (Connection, string, error) {
	if cfg.Port == "" {
		return nil, "", fmt.Errorf("either --port or a WebSocket address must be specified")
	}
	conn, err := OpenSerialConnection(cfg.Port, cfg.Baud, cfg.Parity)
	if err != nil {
		return nil, "", err
	}
	return conn, fmt.Sprintf("Serial: %s @ %d baud (8%c1)", cfg.Port, cfg.Baud, parityLetter(cfg.Parity)), nil
}

func parityLetter(name string) rune {
	switch name {
	case "odd":
		return 'O'
	case "none":
		return 'N'
	default:
		return 'E'
	}
}
