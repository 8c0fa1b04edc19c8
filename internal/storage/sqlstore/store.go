// Package sqlstore implements a tracker backend on a MySQL-protocol database
// such as a Dolt sql-server. It is meant for teams that keep defects next to
// their test data rather than in Jira.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/steveyegge/defects/internal/tracker"
)

func init() {
	tracker.Register("sql", func(ctx context.Context, cfg *tracker.Config) (tracker.Backend, error) {
		dsn, err := cfg.GetRequired("dsn")
		if err != nil {
			return nil, err
		}
		prefix, err := cfg.Get("prefix")
		if err != nil {
			return nil, err
		}
		return Open(ctx, dsn, prefix)
	})
}

// retryMaxElapsed bounds how long an operation is retried after transient
// connection errors.
const retryMaxElapsed = 30 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS issues (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    issue_key VARCHAR(64) NOT NULL,
    project VARCHAR(64) NOT NULL DEFAULT '',
    issue_type VARCHAR(64) NOT NULL DEFAULT '',
    summary TEXT NOT NULL,
    body LONGTEXT NOT NULL,
    status VARCHAR(64) NOT NULL,
    resolution VARCHAR(64) NOT NULL DEFAULT '',
    labels TEXT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    UNIQUE KEY idx_issues_key (issue_key)
);
CREATE TABLE IF NOT EXISTS issue_links (
    from_key VARCHAR(64) NOT NULL,
    to_key VARCHAR(64) NOT NULL,
    link_type VARCHAR(64) NOT NULL,
    PRIMARY KEY (from_key, to_key, link_type),
    KEY idx_links_to (to_key)
);
CREATE TABLE IF NOT EXISTS attachments (
    id CHAR(36) PRIMARY KEY,
    issue_key VARCHAR(64) NOT NULL,
    file_name VARCHAR(255) NOT NULL,
    content LONGBLOB NOT NULL,
    created_at DATETIME(6) NOT NULL,
    KEY idx_attachments_issue (issue_key)
);
CREATE TABLE IF NOT EXISTS comments (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    issue_key VARCHAR(64) NOT NULL,
    body TEXT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    KEY idx_comments_issue (issue_key)
);`

const (
	selectIssue = `SELECT issue_key, project, issue_type, summary, body, status, resolution, labels, created_at
FROM issues WHERE issue_key = ?`
	selectLinks = `SELECT to_key FROM issue_links WHERE from_key = ? AND (? = '' OR link_type = ?)
UNION SELECT from_key FROM issue_links WHERE to_key = ? AND (? = '' OR link_type = ?)`
	insertIssue = `INSERT INTO issues (issue_key, project, issue_type, summary, body, status, labels, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	renameIssue      = `UPDATE issues SET issue_key = ? WHERE id = ?`
	insertLink       = `INSERT INTO issue_links (from_key, to_key, link_type) VALUES (?, ?, ?)`
	selectLabels     = `SELECT labels FROM issues WHERE issue_key = ? FOR UPDATE`
	insertComment    = `INSERT INTO comments (issue_key, body, created_at) VALUES (?, ?, ?)`
	insertAttachment = `INSERT INTO attachments (id, issue_key, file_name, content, created_at)
SELECT ?, issue_key, ?, ?, ? FROM issues WHERE issue_key = ?`
	deleteAttachments = `DELETE FROM attachments WHERE issue_key = ?`
)

// Store is a tracker.Backend over database/sql.
type Store struct {
	db         *sql.DB
	prefix     string
	maxElapsed time.Duration
	now        func() time.Time
}

// Open connects to dsn (go-sql-driver/mysql format), waits for the server
// to answer and creates the schema when missing.
func Open(ctx context.Context, dsn, prefix string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse sql.dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := New(db, prefix)
	if err := s.withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s: %w", cfg.Addr, err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. An empty prefix defaults to "BUG".
func New(db *sql.DB, prefix string) *Store {
	if prefix == "" {
		prefix = "BUG"
	}
	return &Store{db: db, prefix: prefix, maxElapsed: retryMaxElapsed, now: time.Now}
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.withRetry(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	})
}

func (s *Store) Name() string { return "sql" }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) GetIssue(ctx context.Context, key string) (*tracker.Issue, error) {
	var issue *tracker.Issue
	err := s.withRetry(ctx, func() error {
		var err error
		issue, err = s.scanIssue(ctx, key)
		return err
	})
	return issue, err
}

func (s *Store) scanIssue(ctx context.Context, key string) (*tracker.Issue, error) {
	var issue tracker.Issue
	var project, issueType, resolution, labels string
	err := s.db.QueryRowContext(ctx, selectIssue, key).Scan(
		&issue.Key, &project, &issueType, &issue.Summary, &issue.Body,
		&issue.Status, &resolution, &labels, &issue.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, tracker.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", key, err)
	}
	if issue.Labels, err = decodeLabels(labels); err != nil {
		return nil, fmt.Errorf("get issue %s: %w", key, err)
	}
	issue.Fields = map[string]any{"project": project, "issuetype": issueType}
	if resolution != "" {
		issue.Fields["resolution"] = resolution
	}
	return &issue, nil
}

func (s *Store) GetLinkedIssues(ctx context.Context, key, linkType string) ([]string, error) {
	var keys []string
	err := s.withRetry(ctx, func() error {
		keys = nil
		rows, err := s.db.QueryContext(ctx, selectLinks, key, linkType, linkType, key, linkType, linkType)
		if err != nil {
			return fmt.Errorf("get links of %s: %w", key, err)
		}
		defer rows.Close()
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return fmt.Errorf("scan link: %w", err)
			}
			keys = append(keys, k)
		}
		return rows.Err()
	})
	return keys, err
}

// CreateIssue inserts the issue under a temporary key, then renames it to
// "<prefix>-<id>" once the auto-increment id is known.
func (s *Store) CreateIssue(ctx context.Context, fields tracker.IssueFields) (string, error) {
	labels, err := encodeLabels(append(append([]string(nil), fields.Labels...), fields.AddLabels...))
	if err != nil {
		return "", err
	}
	var key string
	err = s.withRetry(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, insertIssue, "tmp-"+uuid.NewString(), fields.Project, fields.IssueType,
				fields.Summary, fields.Body, "Open", labels, s.now().UTC())
			if err != nil {
				return fmt.Errorf("insert issue: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("insert issue: %w", err)
			}
			key = fmt.Sprintf("%s-%d", s.prefix, id)
			if _, err := tx.ExecContext(ctx, renameIssue, key, id); err != nil {
				return fmt.Errorf("assign key %s: %w", key, err)
			}
			if fields.Link != nil {
				if _, err := tx.ExecContext(ctx, insertLink, key, fields.Link.Key, fields.Link.Type); err != nil {
					return fmt.Errorf("link %s to %s: %w", key, fields.Link.Key, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *Store) UpdateIssue(ctx context.Context, key string, fields tracker.IssueFields) error {
	var sets []string
	var args []any
	if fields.Summary != "" {
		sets = append(sets, "summary = ?")
		args = append(args, fields.Summary)
	}
	if fields.Body != "" {
		sets = append(sets, "body = ?")
		args = append(args, fields.Body)
	}
	touchLabels := fields.Labels != nil || len(fields.AddLabels) > 0
	if len(sets) == 0 && !touchLabels {
		return nil
	}

	return s.withRetry(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			sets, args := sets, args
			if touchLabels {
				var current string
				err := tx.QueryRowContext(ctx, selectLabels, key).Scan(&current)
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%s: %w", key, tracker.ErrNotFound)
				}
				if err != nil {
					return fmt.Errorf("read labels of %s: %w", key, err)
				}
				labels, err := mergeLabels(current, fields.Labels, fields.AddLabels)
				if err != nil {
					return err
				}
				sets = append(sets, "labels = ?")
				args = append(args, labels)
			}
			query := "UPDATE issues SET " + strings.Join(sets, ", ") + " WHERE issue_key = ?"
			res, err := tx.ExecContext(ctx, query, append(args, key)...)
			if err != nil {
				return fmt.Errorf("update issue %s: %w", key, err)
			}
			return requireRow(res, key)
		})
	})
}

func (s *Store) TransitionIssue(ctx context.Context, key, targetStatus, resolution, comment string) error {
	sets := []string{"status = ?"}
	args := []any{targetStatus}
	if resolution != "" {
		sets = append(sets, "resolution = ?")
		args = append(args, resolution)
	}
	query := "UPDATE issues SET " + strings.Join(sets, ", ") + " WHERE issue_key = ?"
	args = append(args, key)

	return s.withRetry(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("transition %s: %w", key, err)
			}
			if err := requireRow(res, key); err != nil {
				return err
			}
			if comment != "" {
				if _, err := tx.ExecContext(ctx, insertComment, key, comment, s.now().UTC()); err != nil {
					return fmt.Errorf("comment on %s: %w", key, err)
				}
			}
			return nil
		})
	})
}

// Upload stores the file content in the attachments table.
func (s *Store) Upload(ctx context.Context, issueKey, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, insertAttachment,
			uuid.NewString(), filepath.Base(filePath), data, s.now().UTC(), issueKey)
		if err != nil {
			return fmt.Errorf("attach %s to %s: %w", filepath.Base(filePath), issueKey, err)
		}
		return requireRow(res, issueKey)
	})
}

func (s *Store) DeleteAll(ctx context.Context, issueKey string) error {
	return s.withRetry(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, deleteAttachments, issueKey); err != nil {
			return fmt.Errorf("delete attachments of %s: %w", issueKey, err)
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", key, tracker.ErrNotFound)
	}
	return nil
}

func decodeLabels(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var labels []string
	if err := json.Unmarshal([]byte(s), &labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	return labels, nil
}

func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("encode labels: %w", err)
	}
	return string(data), nil
}

// mergeLabels replaces current with replace when non-nil, then appends the
// labels in add that are not present yet (case-insensitively).
func mergeLabels(current string, replace, add []string) (string, error) {
	labels, err := decodeLabels(current)
	if err != nil {
		return "", err
	}
	if replace != nil {
		labels = append([]string(nil), replace...)
	}
	issue := tracker.Issue{Labels: labels}
	for _, l := range add {
		if !issue.HasLabel(l) {
			issue.Labels = append(issue.Labels, l)
		}
	}
	return encodeLabels(issue.Labels)
}

// withRetry runs op, retrying transient connection errors with exponential
// backoff.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.maxElapsed
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// isRetryableError returns true if the error is a transient connection error.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection", // MySQL error 2013
		"gone away",       // MySQL error 2006
		"i/o timeout",
		"database is read only", // Dolt under load, clears on restart
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
