package auditlog

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"

	"github.com/admitd/admitd/internal/common/uuid"
)

const compressedExt = ".zalog"

// isSnappyFramed checks for the standard Snappy framed stream header.
func isSnappyFramed(data []byte) bool {
	return len(data) >= 10 && bytes.HasPrefix(data, []byte{0xff, 0x06, 0x00, 0x00, 's', 'N', 'a', 'P', 'p', 'Y'})
}

// EncodeLogFile reads an event's audit log, plain or compressed, and returns
// it base64 encoded for transfer.
func (l *Log) EncodeLogFile(eventID uuid.UUID) (string, error) {
	basePath := l.LogPath(eventID)
	paths := []string{basePath[:len(basePath)-len(logExt)] + compressedExt, basePath}

	var logFilePath string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			logFilePath = p
			break
		}
	}
	if logFilePath == "" {
		return "", fmt.Errorf("audit log not found for event %s", eventID)
	}

	f, err := os.Open(logFilePath)
	if err != nil {
		return "", fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	b64Encoder := base64.NewEncoder(base64.StdEncoding, &buf)
	if _, err := io.Copy(b64Encoder, f); err != nil {
		return "", fmt.Errorf("encoding failed: %w", err)
	}
	if err := b64Encoder.Close(); err != nil {
		return "", fmt.Errorf("base64 close failed: %w", err)
	}
	return buf.String(), nil
}

// CompressAndEncodeLogFile compresses an audit log file with Snappy and
// base64-encodes the result.
func CompressAndEncodeLogFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	b64Encoder := base64.NewEncoder(base64.StdEncoding, &buf)
	snappyWriter := snappy.NewBufferedWriter(b64Encoder)

	if _, err := io.Copy(snappyWriter, f); err != nil {
		return "", fmt.Errorf("compression failed: %w", err)
	}
	if err := snappyWriter.Close(); err != nil {
		return "", fmt.Errorf("snappy close failed: %w", err)
	}
	if err := b64Encoder.Close(); err != nil {
		return "", fmt.Errorf("base64 close failed: %w", err)
	}
	return buf.String(), nil
}

// WriteEncodedLogFile decodes a base64-encoded audit log received from another
// node and writes it next to the locally produced logs, choosing the extension
// by sniffing for Snappy framing.
func (l *Log) WriteEncodedLogFile(eventID uuid.UUID, encoded string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}
	if len(decoded) == 0 {
		return "", errors.New("audit log is empty after base64 decode")
	}

	path := l.LogPath(eventID)
	if isSnappyFramed(decoded) {
		path = path[:len(path)-len(logExt)] + compressedExt
	}
	if err := os.WriteFile(path, decoded, 0600); err != nil {
		return "", fmt.Errorf("failed to write audit log: %w", err)
	}
	return path, nil
}

// DecompressLogFile expands a Snappy-compressed audit log back to its plain
// chain form so it can be verified.
func DecompressLogFile(compressedPath, outPath string) error {
	f, err := os.Open(compressedPath)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	tmpPath := outPath + ".tmp"
	outFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, snappy.NewReader(f)); err != nil {
		return fmt.Errorf("decompression failed: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("rename to final path failed: %w", err)
	}
	return nil
}
