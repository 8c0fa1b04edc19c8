package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/defects/internal/fingerprint"
	"github.com/steveyegge/defects/internal/logging"
	"github.com/steveyegge/defects/internal/tracker"
)

// Manager applies outcomes to the defects linked to each test case. It is the
// only component that talks to the IssueStore and AttachmentSink.
type Manager struct {
	store   tracker.IssueStore
	sink    tracker.AttachmentSink
	opts    Options
	matcher *fingerprint.Matcher
	logger  *slog.Logger

	// Callbacks for UI feedback (optional). They may be called from several
	// goroutines at once during ProcessAll.
	OnMessage func(msg string)
	OnWarning func(msg string)
}

// New creates a manager. sink may be nil when evidence is not uploaded, and a
// nil logger logs through the "lifecycle" component logger.
func New(store tracker.IssueStore, sink tracker.AttachmentSink, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.New("lifecycle")
	}
	if opts.BucketSize < 1 {
		opts.BucketSize = 1
	}
	return &Manager{
		store:   store,
		sink:    sink,
		opts:    opts,
		matcher: fingerprint.NewMatcher(nil),
		logger:  logger,
	}
}

// ProcessAll handles outcomes concurrently, at most BucketSize test cases at
// a time. Outcomes for the same test case run one after another in input
// order so two failing iterations cannot both file a new defect. A failure in
// one outcome never stops the others; results are returned in input order.
func (m *Manager) ProcessAll(ctx context.Context, outcomes []Outcome) []Result {
	results := make([]Result, len(outcomes))

	groups := make(map[string][]int)
	var order []string
	for i, o := range outcomes {
		if _, ok := groups[o.TestKey]; !ok {
			order = append(order, o.TestKey)
		}
		groups[o.TestKey] = append(groups[o.TestKey], i)
	}

	var g errgroup.Group
	g.SetLimit(m.opts.BucketSize)
	for _, key := range order {
		indexes := groups[key]
		g.Go(func() error {
			for _, i := range indexes {
				results[i] = m.Process(ctx, outcomes[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Process handles a single outcome.
func (m *Manager) Process(ctx context.Context, o Outcome) Result {
	res := Result{TestKey: o.TestKey}
	log := m.logger.With("test", o.TestKey)

	open, err := m.openDefects(ctx, o.TestKey)
	if err != nil {
		return m.skip(log, res, err)
	}

	// A pass closes whatever tracks the failure, regardless of data row.
	mode := fingerprint.Loose.WithDataSource(m.opts.IncludeDataSource && !o.Passed)
	var matches []*tracker.Issue
	for _, issue := range open {
		v := m.matcher.Compare(o.Fingerprint, issue.Body, mode)
		log.Debug("compared defect", "defect", issue.Key, "verdict", v.Explain())
		if v.Overall {
			matches = append(matches, issue)
		}
	}

	if o.Passed {
		return m.closeFixed(ctx, log, o, matches, res)
	}
	if len(matches) == 0 {
		return m.create(ctx, log, o, res)
	}

	primary := matches[0]
	res.Defect = primary.Key
	var errs []error
	res.Duplicates, errs = m.closeDuplicates(ctx, log, primary.Key, matches[1:])

	strict := fingerprint.Strict.WithDataSource(m.opts.IncludeDataSource)
	if v := m.matcher.Compare(o.Fingerprint, primary.Body, strict); !v.Overall {
		res.Action = ActionTracked
		res.Err = errors.Join(errs...)
		log.Info("failure already tracked", "defect", primary.Key, "action", res.Action, "verdict", v.Explain())
		m.msg("%s: already tracked by %s", o.TestKey, primary.Key)
		return res
	}

	if err := m.store.UpdateIssue(ctx, primary.Key, m.fields(o)); err != nil {
		errs = append(errs, tracker.Wrap("update", primary.Key, err))
		res.Err = errors.Join(errs...)
		res.Action = ActionSkipped
		log.Warn("defect update failed", "defect", primary.Key, "error", err)
		m.warn("%s: could not update %s: %v", o.TestKey, primary.Key, err)
		return res
	}
	errs = append(errs, m.refreshEvidence(ctx, log, primary.Key, o.Attachments)...)
	res.Action = ActionUpdated
	res.Err = errors.Join(errs...)
	log.Info("defect updated", "defect", primary.Key, "action", res.Action)
	m.msg("%s: updated %s", o.TestKey, primary.Key)
	return res
}

// openDefects returns the linked issues that are neither closed nor stale,
// ordered by key.
func (m *Manager) openDefects(ctx context.Context, testKey string) ([]*tracker.Issue, error) {
	keys, err := m.store.GetLinkedIssues(ctx, testKey, m.opts.LinkType)
	if err != nil {
		return nil, tracker.Wrap("links", testKey, err)
	}
	sort.Strings(keys)

	var open []*tracker.Issue
	for _, key := range keys {
		issue, err := m.store.GetIssue(ctx, key)
		if err != nil {
			return nil, tracker.Wrap("get", key, err)
		}
		if m.opts.Statuses.IsTerminal(issue.Status) {
			continue
		}
		open = append(open, issue)
	}
	return open, nil
}

func (m *Manager) create(ctx context.Context, log *slog.Logger, o Outcome, res Result) Result {
	fields := m.fields(o)
	fields.Project = m.opts.Project
	fields.IssueType = m.opts.IssueType
	fields.Summary = summary(o)
	fields.Labels = m.opts.Labels
	fields.Link = &tracker.Link{Type: m.opts.LinkType, Key: o.TestKey}

	key, err := m.store.CreateIssue(ctx, fields)
	if key == "" {
		if err == nil {
			err = errors.New("no key returned")
		}
		return m.skip(log, res, tracker.Wrap("create", o.TestKey, err))
	}
	var errs []error
	if err != nil {
		errs = append(errs, tracker.Wrap("link", key, err))
		log.Warn("defect filed without link", "defect", key, "error", err)
		m.warn("%s: filed %s but could not link it: %v", o.TestKey, key, err)
	}
	res.Action = ActionCreated
	res.Defect = key
	res.Err = errors.Join(append(errs, m.upload(ctx, log, key, o.Attachments)...)...)
	log.Info("defect created", "defect", key, "action", res.Action)
	m.msg("%s: filed %s", o.TestKey, key)
	return res
}

func (m *Manager) closeFixed(ctx context.Context, log *slog.Logger, o Outcome, matches []*tracker.Issue, res Result) Result {
	if len(matches) == 0 {
		res.Action = ActionNone
		return res
	}
	primary := matches[0]
	resolution := o.Resolution
	if resolution == "" {
		resolution = m.opts.FixedResolution
	}
	comment := fmt.Sprintf("%s passed.", o.TestKey)
	if err := m.store.TransitionIssue(ctx, primary.Key, m.opts.ClosedStatus, resolution, comment); err != nil {
		res.Defect = primary.Key
		return m.skip(log, res, tracker.Wrap("transition", primary.Key, err))
	}

	var errs []error
	res.Action = ActionClosed
	res.Defect = primary.Key
	res.Duplicates, errs = m.closeDuplicates(ctx, log, primary.Key, matches[1:])
	res.Err = errors.Join(errs...)
	log.Info("defect closed", "defect", primary.Key, "action", res.Action, "resolution", resolution)
	m.msg("%s: closed %s (%s)", o.TestKey, primary.Key, resolution)
	return res
}

// closeDuplicates closes dups as duplicates of primary, then labels them.
// Defects that fail to close are left as they were and reported in the errors.
func (m *Manager) closeDuplicates(ctx context.Context, log *slog.Logger, primary string, dups []*tracker.Issue) ([]string, []error) {
	var closed []string
	var errs []error
	for _, d := range dups {
		comment := fmt.Sprintf("Duplicate of %s.", primary)
		if err := m.store.TransitionIssue(ctx, d.Key, m.opts.ClosedStatus, m.opts.DuplicateResolution, comment); err != nil {
			errs = append(errs, tracker.Wrap("transition", d.Key, err))
			log.Warn("closing duplicate failed", "defect", d.Key, "error", err)
			m.warn("could not close duplicate %s: %v", d.Key, err)
			continue
		}
		closed = append(closed, d.Key)
		if m.opts.DuplicateLabel != "" {
			err := m.store.UpdateIssue(ctx, d.Key, tracker.IssueFields{AddLabels: []string{m.opts.DuplicateLabel}})
			if err != nil {
				errs = append(errs, tracker.Wrap("update", d.Key, err))
				log.Warn("labelling duplicate failed", "defect", d.Key, "error", err)
				m.warn("could not label %s as duplicate: %v", d.Key, err)
			}
		}
		log.Info("duplicate closed", "defect", d.Key, "duplicate_of", primary, "action", "duplicate")
		m.msg("closed %s as duplicate of %s", d.Key, primary)
	}
	return closed, errs
}

func (m *Manager) refreshEvidence(ctx context.Context, log *slog.Logger, key string, files []string) []error {
	if m.sink == nil || len(files) == 0 {
		return nil
	}
	if err := m.sink.DeleteAll(ctx, key); err != nil {
		log.Warn("removing old attachments failed", "defect", key, "error", err)
		return []error{tracker.Wrap("delete-attachments", key, err)}
	}
	return m.upload(ctx, log, key, files)
}

func (m *Manager) upload(ctx context.Context, log *slog.Logger, key string, files []string) []error {
	if m.sink == nil {
		return nil
	}
	var errs []error
	for _, f := range files {
		if err := m.sink.Upload(ctx, key, f); err != nil {
			errs = append(errs, tracker.Wrap("upload", key, err))
			log.Warn("attachment upload failed", "defect", key, "file", f, "error", err)
			m.warn("could not attach %s to %s: %v", f, key, err)
		}
	}
	return errs
}

func (m *Manager) fields(o Outcome) tracker.IssueFields {
	return tracker.IssueFields{Body: Body(o, m.opts)}
}

func (m *Manager) skip(log *slog.Logger, res Result, err error) Result {
	res.Action = ActionSkipped
	res.Err = err
	log.Warn("lifecycle transition skipped", "action", res.Action, "error", err)
	m.warn("%s: skipped: %v", res.TestKey, err)
	return res
}

func (m *Manager) msg(format string, args ...interface{}) {
	if m.OnMessage != nil {
		m.OnMessage(fmt.Sprintf(format, args...))
	}
}

func (m *Manager) warn(format string, args ...interface{}) {
	if m.OnWarning != nil {
		m.OnWarning(fmt.Sprintf(format, args...))
	}
}
