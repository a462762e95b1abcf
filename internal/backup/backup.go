// Package backup takes encrypted snapshots of the events database and keeps
// them in S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/happenings/internal/database"
	"github.com/dukerupert/happenings/internal/model"
	"github.com/dukerupert/happenings/internal/store"
)

var (
	ErrDisabled   = errors.New("backup: not configured")
	ErrInProgress = errors.New("backup: already running")
	ErrNotFound   = errors.New("backup: not found")
	ErrIncomplete = errors.New("backup: snapshot did not complete")
	ErrDestExists = errors.New("backup: restore destination already exists")
	ErrNewSchema  = errors.New("backup: snapshot schema is newer than this build")
)

// s3Client is the subset of *s3.Client the manager uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

type Config struct {
	S3         S3Config
	Passphrase string
	// Prefix is prepended to every object key.
	Prefix        string
	RetentionDays int
	// Timeout bounds one scheduled run.
	Timeout time.Duration
}

// Enabled reports whether there is enough configuration to upload.
func (c Config) Enabled() bool {
	return c.S3.Bucket != "" && c.S3.AccessKey != "" && c.S3.SecretKey != "" && c.Passphrase != ""
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Manager runs snapshots, restores them and prunes old ones.
type Manager struct {
	cfg    Config
	db     *sql.DB
	store  *store.BackupStore
	client s3Client
	now    func() time.Time
	logger *slog.Logger

	run sync.Mutex

	mu       sync.RWMutex
	status   Status
	onStatus func(Status)
}

func NewManager(cfg Config, db *sql.DB, bs *store.BackupStore, logger *slog.Logger) *Manager {
	var client s3Client
	if cfg.Enabled() {
		client = newS3Client(cfg.S3)
	}
	return newManager(cfg, db, bs, client, logger)
}

func newManager(cfg Config, db *sql.DB, bs *store.BackupStore, client s3Client, logger *slog.Logger) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	m := &Manager{
		cfg:    cfg,
		db:     db,
		store:  bs,
		client: client,
		now:    time.Now,
		logger: logger,
		status: Status{State: StateDisabled},
	}
	if client != nil {
		m.status.State = StateIdle
		if last, err := bs.LatestCompleted(); err == nil && last != nil {
			m.status.LastBackup = last.CompletedAt
		}
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// OnStatus registers fn to be called after every state change.
func (m *Manager) OnStatus(fn func(Status)) {
	m.mu.Lock()
	m.onStatus = fn
	m.mu.Unlock()
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastBackup == nil {
		s.LastBackup = m.status.LastBackup
	}
	m.status = s
	fn := m.onStatus
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// List returns the most recent backup records.
func (m *Manager) List(limit int) ([]model.Backup, error) {
	return m.store.List(limit)
}

// Scheduled runs a snapshot and prunes expired ones. It is meant to be
// called from a cron job, so it logs instead of returning errors.
func (m *Manager) Scheduled() {
	if m.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()

	b, err := m.Run(ctx)
	switch {
	case errors.Is(err, ErrInProgress):
		m.logger.Warn("scheduled backup skipped", "reason", err)
	case err != nil:
		m.logger.Error("scheduled backup failed", "error", err)
	default:
		m.logger.Info("backup completed", "id", b.ID, "key", b.Key, "size_bytes", b.SizeBytes,
			"events", b.EventCount, "overrides", b.OverrideCount)
	}

	if n, err := m.Cleanup(ctx); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	} else if n > 0 {
		m.logger.Info("pruned old backups", "count", n)
	}
}

// Run snapshots the database, encrypts the snapshot and uploads it.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	if m.client == nil {
		return nil, ErrDisabled
	}
	if !m.run.TryLock() {
		return nil, ErrInProgress
	}
	defer m.run.Unlock()

	key := path.Join(m.cfg.Prefix, "happenings-"+m.now().UTC().Format("2006-01-02T150405.000Z")+".db.enc")
	rec, err := m.store.Create(key)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, fmt.Errorf("create backup record: %w", err)
	}
	m.setStatus(Status{State: StateRunning})

	fail := func(step string, err error) (*model.Backup, error) {
		err = fmt.Errorf("%s: %w", step, err)
		if markErr := m.store.MarkFailed(rec.ID, err.Error()); markErr != nil {
			m.logger.Error("mark backup failed", "id", rec.ID, "error", markErr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}

	events, overrides, err := m.store.TableCounts()
	if err != nil {
		return fail("count rows", err)
	}

	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return fail("snapshot", err)
	}

	sealed, err := Seal(snapshot, m.cfg.Passphrase)
	if err != nil {
		return fail("encrypt", err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return fail("upload", err)
	}

	if err := m.store.MarkCompleted(rec.ID, int64(len(sealed)), events, overrides); err != nil {
		return fail("record completion", err)
	}

	done, err := m.store.GetByID(rec.ID)
	if err != nil {
		return nil, err
	}
	m.setStatus(Status{State: StateIdle, LastBackup: done.CompletedAt})
	return done, nil
}

// snapshot writes a consistent copy of the live database with VACUUM INTO
// and returns its bytes.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "happenings-backup-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	dst := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	return os.ReadFile(dst)
}

// Restore downloads backup id, decrypts it, checks its integrity and writes
// it to dest. dest must not exist; swapping it in for the live database is
// left to the operator.
func (m *Manager) Restore(ctx context.Context, id int64, dest string) error {
	if m.client == nil {
		return ErrDisabled
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%w: %s", ErrDestExists, dest)
	}

	rec, err := m.store.GetByID(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if rec.Status != model.BackupCompleted {
		return fmt.Errorf("%w: id %d is %s", ErrIncomplete, id, rec.Status)
	}

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(rec.Key),
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", rec.Key, err)
	}
	sealed, err := io.ReadAll(result.Body)
	result.Body.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", rec.Key, err)
	}

	plaintext, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return err
	}

	tmp := dest + ".restoring"
	if err := os.WriteFile(tmp, plaintext, 0o600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	defer os.Remove(tmp)

	if err := checkIntegrity(ctx, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("move restored db: %w", err)
	}
	m.logger.Info("backup restored", "id", id, "key", rec.Key, "dest", dest)
	return nil
}

func checkIntegrity(ctx context.Context, dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	current, latest, err := database.SchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("read snapshot schema: %w", err)
	}
	if current > latest {
		return fmt.Errorf("%w: version %d, this build knows %d", ErrNewSchema, current, latest)
	}
	return nil
}

// Cleanup deletes backups older than the retention period and returns how
// many records were removed.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	if m.client == nil || m.cfg.RetentionDays <= 0 {
		return 0, nil
	}

	before := m.now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	keys, err := m.store.DeleteOlderThan(before)
	if err != nil {
		return 0, err
	}

	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	return len(keys), nil
}
