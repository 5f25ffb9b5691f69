package opstate

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/nugget/tether/internal/supervisor"
)

// JournalNamespace holds the supervisor's journal entries.
const JournalNamespace = "supervisor"

// Journal keys.
const (
	KeyState       = "state"
	KeySince       = "since"
	KeyPublished   = "published"
	KeyLastPublish = "last_publish"
	KeyLastError   = "last_error"
	KeyBootedAt    = "booted_at"
	KeyVersion     = "version"
)

// Journal records supervisor events into a Store. It implements
// [supervisor.Observer]. Write failures are logged, never returned:
// losing a journal entry must not stop the control loop.
type Journal struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

// NewJournal creates a Journal writing to store.
func NewJournal(store *Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{store: store, logger: logger, now: time.Now}
}

// Boot clears the previous run's entries and records the new process.
func (j *Journal) Boot(version string) error {
	if err := j.store.DeleteNamespace(JournalNamespace); err != nil {
		return err
	}
	now := j.stamp()
	return j.store.SetMany(JournalNamespace, map[string]string{
		KeyBootedAt:  now,
		KeyVersion:   version,
		KeyState:     supervisor.AwaitingNetwork.String(),
		KeySince:     now,
		KeyPublished: "0",
	})
}

// OnTransition implements [supervisor.Observer].
func (j *Journal) OnTransition(_, to supervisor.State) {
	j.write(map[string]string{
		KeyState: to.String(),
		KeySince: j.stamp(),
	})
}

// OnPublish implements [supervisor.Observer].
func (j *Journal) OnPublish(seq uint64, _ time.Duration, err error) {
	if err != nil {
		j.write(map[string]string{KeyLastError: err.Error()})
		return
	}
	j.write(map[string]string{
		KeyPublished:   strconv.FormatUint(seq, 10),
		KeyLastPublish: j.stamp(),
	})
}

// Snapshot returns every journal entry.
func (j *Journal) Snapshot() (map[string]string, error) {
	return j.store.List(JournalNamespace)
}

func (j *Journal) write(values map[string]string) {
	if err := j.store.SetMany(JournalNamespace, values); err != nil {
		j.logger.Warn("journal write failed", "error", err)
	}
}

func (j *Journal) stamp() string {
	return j.now().UTC().Format(time.RFC3339)
}
