package worktree

import "time"

// Status is the lifecycle status of a tracked worktree record.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Worktree is a tracked git worktree backing one session.
type Worktree struct {
	ID             string
	SessionID      string
	TaskID         string
	RepositoryID   string
	RepositoryPath string
	Path           string
	Branch         string
	BaseBranch     string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// CreateRequest describes a worktree to create (or reuse) for a session.
type CreateRequest struct {
	SessionID          string
	TaskID             string
	WorktreeID         string
	RepositoryID       string
	RepositoryPath     string
	BaseBranch         string
	PullBeforeWorktree bool
	// BranchName, if set, is used verbatim as the new branch's name. Left
	// empty, the branch defaults to WorktreeBranchPrefix (or, when that is
	// empty, the Manager's configured BranchPrefix) plus the task ID.
	BranchName           string
	WorktreeBranchPrefix string
}

// Validate checks that the fields required to create a worktree are present.
func (r CreateRequest) Validate() error {
	if r.RepositoryPath == "" {
		return ErrInvalidSession
	}
	if r.BaseBranch == "" {
		return ErrInvalidBaseBranch
	}
	return nil
}

// ListedWorktree is one entry parsed from `git worktree list --porcelain`.
type ListedWorktree struct {
	Path   string
	Head   string
	Branch string
	Bare   bool
	Locked bool
	Prunable bool
}
