// Package auditlog records admission activity in tamper-evident per-event log
// files. Each entry carries the hash of its predecessor and an ed25519
// signature over the whole entry, so a verifier holding the service public key
// can detect any edit, reorder, or truncation in the middle of the chain.
package auditlog

import (
	"bufio"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sync"

	jsonitor "github.com/json-iterator/go"
)

var json = jsonitor.ConfigCompatibleWithStandardLibrary

// ChainedEntry is a single signed entry in an audit chain.
type ChainedEntry struct {
	Payload   map[string]any `json:"payload"`   // audit record data
	PrevHash  string         `json:"prevHash"`  // hash of previous entry
	Hash      string         `json:"hash"`      // hash of this entry
	Signature string         `json:"signature"` // ed25519 signature over the entry
}

// chainLink is the portion of an entry covered by the hash.
type chainLink struct {
	Payload  map[string]any `json:"payload"`
	PrevHash string         `json:"prevHash"`
}

// signedLink is the portion of an entry covered by the signature.
type signedLink struct {
	Payload  map[string]any `json:"payload"`
	PrevHash string         `json:"prevHash"`
	Hash     string         `json:"hash"`
}

// ChainWriter appends signed entries to an audit log file. Entries are
// buffered and flushed every flushInterval entries or on Flush/Close.
type ChainWriter struct {
	file          *os.File
	path          string
	flushInterval int
	mu            sync.Mutex
	buffer        []ChainedEntry
	prevHash      string
	privKey       ed25519.PrivateKey
	closed        bool
}

// NewChainWriter opens (or creates) the audit log at path for appending.
func NewChainWriter(path string, flushInterval int, privKey ed25519.PrivateKey) (*ChainWriter, error) {
	if len(privKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key: must be %d bytes, got %d", ed25519.PrivateKeySize, len(privKey))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	w := &ChainWriter{
		file:          f,
		path:          path,
		flushInterval: flushInterval,
		buffer:        make([]ChainedEntry, 0, flushInterval),
		privKey:       privKey,
	}
	if err := w.seedPrevHash(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// seedPrevHash resumes the chain from the last entry already in the file, so
// reopening a log after a restart does not break verification.
func (w *ChainWriter) seedPrevHash() error {
	f, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEntrySize)
	var lastHash string
	for scanner.Scan() {
		var entry ChainedEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("existing log is corrupt: %w", err)
		}
		lastHash = entry.Hash
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	w.prevHash = lastHash
	return nil
}

// AddEntry links, signs, and buffers a new entry.
func (w *ChainWriter) AddEntry(payload map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("audit log %s is closed", w.path)
	}

	cloned := make(map[string]any, len(payload))
	for k, v := range payload {
		cloned[k] = v
	}

	entry := ChainedEntry{
		Payload:  cloned,
		PrevHash: w.prevHash,
	}

	hashInput, err := json.Marshal(chainLink{Payload: entry.Payload, PrevHash: entry.PrevHash})
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	hash := sha256.Sum256(hashInput)
	entry.Hash = fmt.Sprintf("%x", hash[:])
	w.prevHash = entry.Hash

	signInput, err := json.Marshal(signedLink{Payload: entry.Payload, PrevHash: entry.PrevHash, Hash: entry.Hash})
	if err != nil {
		return fmt.Errorf("failed to marshal sign input: %w", err)
	}
	entry.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(w.privKey, signInput))

	w.buffer = append(w.buffer, entry)
	if len(w.buffer) >= w.flushInterval {
		return w.flushLocked()
	}
	return nil
}

func (w *ChainWriter) flushLocked() error {
	for _, entry := range w.buffer {
		b, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		if _, err := w.file.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}
	w.buffer = w.buffer[:0]
	return nil
}

// Flush writes all buffered entries to the file.
func (w *ChainWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.flushLocked()
}

// Close flushes remaining entries and closes the file.
func (w *ChainWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	err := w.file.Close()
	w.closed = true
	return err
}

// maxEntrySize bounds a single log line during verification.
const maxEntrySize = 1024 * 1024

// VerifyChain checks every entry's hash, chain linkage, and signature.
// Returns nil only if the entire stream verifies against pubKey.
func VerifyChain(r io.Reader, pubKey ed25519.PublicKey) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid ed25519 public key size: got %d", len(pubKey))
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEntrySize)

	lineNum := 0
	expectedPrevHash := ""

	for scanner.Scan() {
		lineNum++

		var entry ChainedEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}

		hashInput, err := json.Marshal(chainLink{Payload: entry.Payload, PrevHash: entry.PrevHash})
		if err != nil {
			return fmt.Errorf("line %d: failed to marshal hash input: %w", lineNum, err)
		}
		if entry.Hash != fmt.Sprintf("%x", sha256.Sum256(hashInput)) {
			return fmt.Errorf("line %d: hash mismatch", lineNum)
		}
		if entry.PrevHash != expectedPrevHash {
			return fmt.Errorf("line %d: prevHash mismatch", lineNum)
		}

		signInput, err := json.Marshal(signedLink{Payload: entry.Payload, PrevHash: entry.PrevHash, Hash: entry.Hash})
		if err != nil {
			return fmt.Errorf("line %d: failed to marshal signature input: %w", lineNum, err)
		}
		signature, err := base64.StdEncoding.DecodeString(entry.Signature)
		if err != nil {
			return fmt.Errorf("line %d: invalid base64 signature: %w", lineNum, err)
		}
		if !ed25519.Verify(pubKey, signInput, signature) {
			return fmt.Errorf("line %d: signature verification failed", lineNum)
		}

		expectedPrevHash = entry.Hash
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return nil
}
