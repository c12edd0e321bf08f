package linker

import (
	skberrors "skb/internal/errors"
	"skb/internal/logging"
	"skb/internal/storage"
)

// Linker records continuation edges detected in session content.
type Linker struct {
	db     *storage.DB
	logger *logging.Logger
}

// New creates a linker over the catalog store.
func New(db *storage.DB, logger *logging.Logger) *Linker {
	return &Linker{db: db, logger: logger}
}

// LinkResult describes the outcome of a linking attempt.
type LinkResult string

const (
	// Linked means an edge was recorded and marked active.
	Linked LinkResult = "linked"
	// AlreadyLinked means the child already has a parent edge.
	AlreadyLinked LinkResult = "already-linked"
	// NoReference means the content carries no back-reference.
	NoReference LinkResult = "no-reference"
	// Deferred means the referenced parent is not discovered yet; the
	// link is retried on the next scan.
	Deferred LinkResult = "deferred"
	// Rejected means the reference crossed project boundaries and was
	// treated as a coincidental id collision.
	Rejected LinkResult = "rejected"
)

// Link inspects a session's content for a back-reference and records
// the continuation edge when one is found. Cross-project references are
// rejected and logged, never surfaced as errors.
func (l *Linker) Link(child *storage.SessionRecord, content []byte) (LinkResult, error) {
	parentID, ok := DetectParentReference(content)
	if !ok {
		return NoReference, nil
	}

	return l.link(child.ID, child.ProjectPath, parentID, true)
}

// RetryPending re-attempts deferred links, called once per scan pass.
func (l *Linker) RetryPending() error {
	pending, err := l.db.PendingLinks()
	if err != nil {
		return err
	}

	for _, p := range pending {
		child, err := l.db.GetSession(p.ChildSessionID)
		if err != nil {
			if skberrors.HasCode(err, skberrors.SessionNotFound) {
				// Child disappeared from the catalog, drop the deferral.
				_ = l.db.ResolvePendingLink(p.ChildSessionID)
				continue
			}
			return err
		}

		result, err := l.link(child.ID, child.ProjectPath, p.ParentSessionID, false)
		if err != nil {
			return err
		}

		switch result {
		case Linked, AlreadyLinked, Rejected:
			if err := l.db.ResolvePendingLink(p.ChildSessionID); err != nil {
				return err
			}
		case Deferred:
			if err := l.db.BumpPendingLink(p.ChildSessionID); err != nil {
				return err
			}
		}
	}

	return nil
}

// link applies the admission rules for a single candidate edge.
func (l *Linker) link(childID, childProject, parentID string, deferUnknown bool) (LinkResult, error) {
	if parentID == childID {
		return NoReference, nil
	}

	hasParent, err := l.db.HasParentEdge(childID)
	if err != nil {
		return NoReference, err
	}
	if hasParent {
		return AlreadyLinked, nil
	}

	exists, parentProject, err := l.db.SessionExists(parentID)
	if err != nil {
		return NoReference, err
	}

	if !exists {
		if deferUnknown {
			if err := l.db.SavePendingLink(childID, parentID); err != nil {
				return NoReference, err
			}
			l.logger.Debug("Deferred continuation link, parent not discovered yet", map[string]interface{}{
				"child":  childID,
				"parent": parentID,
			})
		}
		return Deferred, nil
	}

	if parentProject != childProject {
		l.logger.Warn("Rejected cross-project continuation reference", map[string]interface{}{
			"child":         childID,
			"parent":        parentID,
			"childProject":  childProject,
			"parentProject": parentProject,
			"code":          string(skberrors.LinkRejected),
		})
		return Rejected, nil
	}

	if err := l.db.LinkContinuation(parentID, childID); err != nil {
		return NoReference, err
	}

	l.logger.Info("Linked continuation", map[string]interface{}{
		"child":  childID,
		"parent": parentID,
	})
	return Linked, nil
}
