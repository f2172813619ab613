// Package sealbox stores files encrypted under a master secret. Each stored
// artifact is a ciphertext blob plus an envelope record describing it; the
// streaming engine in pkg/crypt guarantees that nothing unauthenticated is
// ever handed back to a caller.
package sealbox

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/sealbox/sealbox/internal/blobStore"
	"github.com/sealbox/sealbox/internal/metaStore"
	"github.com/sealbox/sealbox/pkg/crypt"
	"github.com/sealbox/sealbox/pkg/envelope"
	"github.com/sealbox/sealbox/pkg/keymat"
	"github.com/sealbox/sealbox/pkg/workerPool"
)

var (
	ErrNotStarted = errors.New("sealbox: not started")
	ErrClosed     = errors.New("sealbox: closed")
	ErrNotFound   = errors.New("sealbox: file not found")
)

// StoreOptions carries the caller-supplied metadata for one encrypt
// operation.
type StoreOptions struct {
	OriginalName string
	ContentType  string
	// Compress runs the plaintext through zstd before encryption. The
	// envelope records it so decrypt can undo it after verification.
	Compress bool
}

// VerifyResult is the outcome of one file's integrity check.
type VerifyResult struct {
	ID  string `json:"id"`
	OK  bool   `json:"ok"`
	Err string `json:"error,omitempty"`
}

// Sealbox is the service handle. It owns the blob store, the envelope store,
// and the verify worker pool.
type Sealbox struct {
	log    *slog.Logger
	config Config

	meta  *metaStore.MetaStore
	blobs *blobStore.BlobStore
	pool  *workerPool.WorkerPool

	started   atomic.Bool
	closed    atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New constructs a handle. New does not perform I/O or start goroutines;
// call Start to initialize subsystems.
func New(conf Config) (*Sealbox, error) {
	if len(conf.Paths) == 0 {
		return nil, fmt.Errorf("sealbox: at least one path must be provided in config")
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	return &Sealbox{
		log:    conf.Logger,
		config: conf,
	}, nil
}

// Start initializes the stores and marks the handle ready. Safe to call more
// than once; only the first call has effect.
func (s *Sealbox) Start(ctx context.Context) error {
	var startErr error
	s.startOnce.Do(func() {
		dataRoot := s.config.Paths[0]
		if err := os.MkdirAll(dataRoot, 0o700); err != nil {
			startErr = fmt.Errorf("sealbox: mkdir %s: %w", dataRoot, err)
			return
		}

		blobs, err := blobStore.New(filepath.Join(dataRoot, "blobs"), s.config.MinimumFreeGB, s.log)
		if err != nil {
			startErr = fmt.Errorf("sealbox: init blob store: %w", err)
			return
		}

		meta, err := metaStore.New(metaStore.StoreConfig{
			Path: filepath.Join(dataRoot, "meta"),
		})
		if err != nil {
			startErr = fmt.Errorf("sealbox: init meta store: %w", err)
			return
		}

		s.blobs = blobs
		s.meta = meta
		s.pool = workerPool.New(workerPool.Config{WorkerCount: s.config.VerifyWorkers})
		s.started.Store(true)

		s.log.Info("sealbox started", "dataPath", dataRoot)
	})
	return startErr
}

// Close shuts the stores down. Safe to call more than once.
func (s *Sealbox) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.pool != nil {
			s.pool.Close()
		}
		if s.meta != nil {
			closeErr = s.meta.Close()
		}
	})
	return closeErr
}

func (s *Sealbox) ready() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// newFileID returns a fresh 32-char hex artifact id.
func newFileID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// countingReader tracks how many bytes passed through, so the envelope can
// record the original plaintext size even when compression rewrites the
// stream fed to the cipher.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// EncryptFile encrypts r under the supplied secret and stores the ciphertext
// blob plus its envelope. Either both are durably stored and the envelope is
// returned, or neither survives.
func (s *Sealbox) EncryptFile(ctx context.Context, r io.Reader, secret string, opts StoreOptions) (envelope.Envelope, error) {
	if err := s.ready(); err != nil {
		return envelope.Envelope{}, err
	}

	master, _, err := keymat.Parse(secret)
	if err != nil {
		return envelope.Envelope{}, err
	}
	keys := crypt.Derive(master)

	id := newFileID()
	w, err := s.blobs.Create(id)
	if err != nil {
		return envelope.Envelope{}, err
	}

	counted := &countingReader{r: r}
	src := io.Reader(counted)
	var compressPipe *io.PipeReader
	if opts.Compress {
		pr, pw := io.Pipe()
		compressPipe = pr
		go func() {
			zw, err := zstd.NewWriter(pw)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(zw, counted); err != nil {
				zw.Close()
				pw.CloseWithError(err)
				return
			}
			pw.CloseWithError(zw.Close())
		}()
		src = pr
	}

	res, err := crypt.Encrypt(w, src, keys)
	if compressPipe != nil {
		// Unblocks the compressor goroutine if encryption aborted mid-stream.
		compressPipe.Close()
	}
	if err != nil {
		w.Abort()
		return envelope.Envelope{}, err
	}
	if err := w.Commit(); err != nil {
		return envelope.Envelope{}, err
	}

	env := envelope.Envelope{
		ID:              id,
		OriginalName:    opts.OriginalName,
		ContentType:     opts.ContentType,
		PlaintextBytes:  counted.n,
		CiphertextBytes: res.BytesOut,
		IV:              res.IV,
		Tag:             res.Tag,
		CreatedAt:       time.Now().UTC(),
		KeyFingerprint:  crypt.Fingerprint(master),
		Compressed:      opts.Compress,
	}

	if err := s.meta.Put(env); err != nil {
		// The blob without its envelope is unusable; take it back out.
		if derr := s.blobs.Delete(id); derr != nil {
			s.log.Error("failed to clean up orphaned blob", "id", id, "error", derr)
		}
		return envelope.Envelope{}, err
	}

	s.log.Info("file encrypted",
		"id", id,
		"name", opts.OriginalName,
		"bytesIn", counted.n,
		"bytesOut", res.BytesOut,
		"compressed", opts.Compress)

	return env, nil
}

// DecryptFile verifies and decrypts the stored artifact into w. The supplied
// key's fingerprint is checked against the envelope before the cipher
// pipeline is ever touched; on mismatch the operation fails immediately.
// Returns the number of plaintext bytes written.
func (s *Sealbox) DecryptFile(ctx context.Context, id, secret string, w io.Writer) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	env, err := s.meta.Get(id)
	if err != nil {
		if errors.Is(err, metaStore.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return 0, err
	}

	master, _, err := keymat.Parse(secret)
	if err != nil {
		return 0, err
	}
	if crypt.Fingerprint(master) != env.KeyFingerprint {
		return 0, fmt.Errorf("%w: file %s", crypt.ErrFingerprintMismatch, id)
	}
	keys := crypt.Derive(master)

	f, err := s.blobs.Open(id)
	if err != nil {
		if errors.Is(err, blobStore.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return 0, err
	}
	defer f.Close()

	if !env.Compressed {
		return crypt.Decrypt(w, f, env.IV, env.Tag, keys)
	}

	// Decompression sits behind the verifier: decrypted bytes only reach the
	// zstd reader after the tag has been checked.
	pr, pw := io.Pipe()
	type copyResult struct {
		n   int64
		err error
	}
	done := make(chan copyResult, 1)
	go func() {
		zr, err := zstd.NewReader(pr)
		if err != nil {
			pr.CloseWithError(err)
			done <- copyResult{err: err}
			return
		}
		defer zr.Close()
		n, err := io.Copy(w, zr)
		pr.CloseWithError(err)
		done <- copyResult{n: n, err: err}
	}()

	_, derr := crypt.Decrypt(pw, f, env.IV, env.Tag, keys)
	pw.CloseWithError(derr)
	res := <-done
	if derr != nil {
		return 0, derr
	}
	if res.err != nil {
		return res.n, fmt.Errorf("sealbox: decompress %s: %w", id, res.err)
	}
	return res.n, nil
}

// Envelope returns the stored metadata record for id.
func (s *Sealbox) Envelope(ctx context.Context, id string) (envelope.Envelope, error) {
	if err := s.ready(); err != nil {
		return envelope.Envelope{}, err
	}
	env, err := s.meta.Get(id)
	if errors.Is(err, metaStore.ErrNotFound) {
		return envelope.Envelope{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return env, err
}

// ListFiles returns every stored envelope, newest first.
func (s *Sealbox) ListFiles(ctx context.Context) ([]envelope.Envelope, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.meta.List()
}

// OpenCiphertext returns a reader over the raw ciphertext blob plus its
// envelope, for callers that want the encrypted artifact as-is.
func (s *Sealbox) OpenCiphertext(ctx context.Context, id string) (io.ReadCloser, envelope.Envelope, error) {
	if err := s.ready(); err != nil {
		return nil, envelope.Envelope{}, err
	}

	env, err := s.meta.Get(id)
	if err != nil {
		if errors.Is(err, metaStore.ErrNotFound) {
			return nil, envelope.Envelope{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, envelope.Envelope{}, err
	}

	f, err := s.blobs.Open(id)
	if err != nil {
		if errors.Is(err, blobStore.ErrNotFound) {
			return nil, envelope.Envelope{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, envelope.Envelope{}, err
	}
	return f, env, nil
}

// DeleteFile removes the blob and its envelope.
func (s *Sealbox) DeleteFile(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}

	blobErr := s.blobs.Delete(id)
	if blobErr != nil && !errors.Is(blobErr, blobStore.ErrNotFound) {
		return blobErr
	}
	metaErr := s.meta.Delete(id)
	if metaErr != nil && !errors.Is(metaErr, metaStore.ErrNotFound) {
		return metaErr
	}
	if errors.Is(blobErr, blobStore.ErrNotFound) && errors.Is(metaErr, metaStore.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.log.Info("file deleted", "id", id)
	return nil
}

// VerifyAll recomputes every stored blob's authentication tag in parallel,
// without decrypting anything. Verification needs the master secret because
// the tag key is derived from it.
func (s *Sealbox) VerifyAll(ctx context.Context, secret string) ([]VerifyResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	master, _, err := keymat.Parse(secret)
	if err != nil {
		return nil, err
	}
	keys := crypt.Derive(master)
	fp := crypt.Fingerprint(master)

	envs, err := s.meta.List()
	if err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return []VerifyResult{}, nil
	}

	room := s.pool.CreateRoom(len(envs))
	for _, env := range envs {
		env := env
		room.Submit(func() interface{} {
			return s.verifyOne(env, keys, fp)
		})
	}

	results := make([]VerifyResult, 0, len(envs))
	for _, r := range room.Collect() {
		results = append(results, r.(VerifyResult))
	}
	return results, nil
}

func (s *Sealbox) verifyOne(env envelope.Envelope, keys crypt.Keys, fingerprint string) VerifyResult {
	if env.KeyFingerprint != fingerprint {
		return VerifyResult{ID: env.ID, Err: crypt.ErrFingerprintMismatch.Error()}
	}

	f, err := s.blobs.Open(env.ID)
	if err != nil {
		return VerifyResult{ID: env.ID, Err: err.Error()}
	}
	defer f.Close()

	if err := crypt.Verify(f, env.IV, env.Tag, keys); err != nil {
		return VerifyResult{ID: env.ID, Err: err.Error()}
	}
	return VerifyResult{ID: env.ID, OK: true}
}
