package container

import (
	"os"
	"path/filepath"

	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"
)

// SCMRepo is the lower-level SCM primitive spec.md §1 calls out as an
// out-of-scope external collaborator ("clone/fetch/tag-list/checkout/open-
// working-copy primitives"). SourceControlContainer depends only on this
// small interface, never on a concrete VCS, matching the capability-
// interface re-architecture spec.md §9 asks for.
type SCMRepo interface {
	Get() error
	Update() error
	Tags() ([]string, error)
	Branches() ([]string, error)
	CheckoutRevision(rev string) error
	CurrentRevision() (string, error)
	RevisionForBranch(branch string) (string, error)
	LocalPath() string
}

// gitSCMRepo adapts github.com/Masterminds/vcs's GitRepo to SCMRepo,
// exactly the role golang-dep's vcs_repo.go gitRepo wrapper plays: the
// library's Repo interface is close to what we need but not identical
// (it conflates "update working copy" with "fetch", and its tag/branch
// listers shell out directly), so a thin wrapper adds the few extra git
// invocations the teacher's vcs_repo.go also added (its own Get/Update
// overrides) on top of the library's checkout/openLocal primitives.
type gitSCMRepo struct {
	*vcs.GitRepo
}

// NewGitSCMRepo opens (or prepares to clone) a git repo at local, sourced
// from remote.
func NewGitSCMRepo(remote, local string) (SCMRepo, error) {
	r, err := vcs.NewGitRepo(remote, local)
	if err != nil {
		return nil, errors.Wrap(err, "opening git repo")
	}
	return &gitSCMRepo{GitRepo: r}, nil
}

func (r *gitSCMRepo) Get() error {
	if err := r.GitRepo.Get(); err != nil {
		return errors.Wrap(unwrapVCSErr(err), "git clone")
	}
	return nil
}

func (r *gitSCMRepo) Update() error {
	if err := r.GitRepo.Update(); err != nil {
		return errors.Wrap(unwrapVCSErr(err), "git fetch")
	}
	return nil
}

func (r *gitSCMRepo) Tags() ([]string, error) {
	tags, err := r.GitRepo.Tags()
	if err != nil {
		return nil, errors.Wrap(unwrapVCSErr(err), "git tag listing")
	}
	return tags, nil
}

func (r *gitSCMRepo) Branches() ([]string, error) {
	branches, err := r.GitRepo.Branches()
	if err != nil {
		return nil, errors.Wrap(unwrapVCSErr(err), "git branch listing")
	}
	return branches, nil
}

func (r *gitSCMRepo) CheckoutRevision(rev string) error {
	if err := r.GitRepo.UpdateVersion(rev); err != nil {
		return errors.Wrapf(unwrapVCSErr(err), "git checkout %s", rev)
	}
	return nil
}

func (r *gitSCMRepo) CurrentRevision() (string, error) {
	v, err := r.GitRepo.Version()
	if err != nil {
		return "", errors.Wrap(unwrapVCSErr(err), "git rev-parse HEAD")
	}
	return v, nil
}

func (r *gitSCMRepo) RevisionForBranch(branch string) (string, error) {
	branches, err := r.Branches()
	if err != nil {
		return "", err
	}
	found := false
	for _, b := range branches {
		if b == branch {
			found = true
			break
		}
	}
	if !found {
		return "", &BranchNotFoundError{Branch: branch, Suggestion: suggestBranch(branch, branches)}
	}
	if err := r.CheckoutRevision(branch); err != nil {
		return "", err
	}
	return r.CurrentRevision()
}

func (r *gitSCMRepo) LocalPath() string { return r.GitRepo.LocalPath() }

// unwrapVCSErr extracts actual command output from a Masterminds/vcs
// error, matching golang-dep's unwrapVcsErr (internal/gps/source_errors.go).
func unwrapVCSErr(err error) error {
	switch verr := err.(type) {
	case *vcs.LocalError:
		return errors.New(verr.Error() + ": " + verr.Out())
	case *vcs.RemoteError:
		return errors.New(verr.Error() + ": " + verr.Out())
	default:
		return err
	}
}

// ensureParentDir replicates vcs_repo.go's defensive mkdir-before-clone
// behavior for the rare case a VCS client can't create its own parent.
func ensureParentDir(local string) error {
	base := filepath.Dir(filepath.FromSlash(local))
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return os.MkdirAll(base, 0o755)
	}
	return nil
}
