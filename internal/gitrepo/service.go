// Package gitrepo keeps a git history of every saved document, one
// repository per storage key.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	docFile  = "document.json"
	textFile = "document.txt"
)

var ErrNoHistory = errors.New("no history for document")

type CommitInfo struct {
	Hash      string    `json:"hash"`
	FullHash  string    `json:"fullHash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
}

// Snapshot is a document as it was at one commit.
type Snapshot struct {
	Doc  json.RawMessage `json:"doc"`
	Text string          `json:"text"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// Commit records snap under key. The repository is created on first use.
// When nothing changed since the last commit the head commit is returned
// and changed is false.
func (s *Service) Commit(key string, snap Snapshot, author, message string) (info CommitInfo, changed bool, err error) {
	lock := s.documentLock(key)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(key)
	if err != nil {
		return CommitInfo{}, false, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("open worktree: %w", err)
	}
	if err := writeSnapshot(worktree.Filesystem.Root(), snap); err != nil {
		return CommitInfo{}, false, err
	}
	for _, name := range []string{docFile, textFile} {
		if _, err := worktree.Add(name); err != nil {
			return CommitInfo{}, false, fmt.Errorf("git add %s: %w", name, err)
		}
	}

	status, err := worktree.Status()
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		head, err := repo.Head()
		if err != nil {
			return CommitInfo{}, false, fmt.Errorf("resolve head: %w", err)
		}
		commitObj, err := repo.CommitObject(head.Hash())
		if err != nil {
			return CommitInfo{}, false, fmt.Errorf("read head commit: %w", err)
		}
		return toCommitInfo(commitObj), false, nil
	}

	if author == "" {
		author = "moodpad"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: sanitizeEmail(author) + "@moodpad.local",
			When:  s.now(),
		},
	})
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), true, nil
}

// History lists commits newest first. limit <= 0 lists all of them.
func (s *Service) History(key string, limit int) ([]CommitInfo, error) {
	lock := s.documentLock(key)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(key)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// SnapshotAt reads the document at hash, which may be abbreviated.
func (s *Service) SnapshotAt(key, hash string) (Snapshot, CommitInfo, error) {
	lock := s.documentLock(key)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(key)
	if err != nil {
		return Snapshot{}, CommitInfo{}, err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return Snapshot{}, CommitInfo{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	snap, err := readSnapshot(commitObj)
	if err != nil {
		return Snapshot{}, CommitInfo{}, err
	}
	return snap, toCommitInfo(commitObj), nil
}

// Tag names a commit, for instance before a rewrite replaced the document.
func (s *Service) Tag(key, hash, name string) error {
	lock := s.documentLock(key)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(key)
	if err != nil {
		return err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return err
	}
	_, err = repo.CreateTag(name, resolved, &git.CreateTagOptions{
		Tagger:  &object.Signature{Name: "moodpad", Email: "moodpad@moodpad.local", When: s.now()},
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

func (s *Service) repoPath(key string) string {
	return filepath.Join(s.baseDir, sanitizeKey(key))
}

func (s *Service) open(key string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(key))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNoHistory, key)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) openOrInit(key string) (*git.Repository, error) {
	path := s.repoPath(key)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) documentLock(key string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func writeSnapshot(root string, snap Snapshot) error {
	doc := snap.Doc
	if len(doc) == 0 {
		doc = json.RawMessage("[]")
	}
	if err := os.WriteFile(filepath.Join(root, docFile), append([]byte(doc), '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", docFile, err)
	}
	text := snap.Text
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if err := os.WriteFile(filepath.Join(root, textFile), []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", textFile, err)
	}
	return nil
}

func readFile(commitObj *object.Commit, name string) (string, error) {
	file, err := commitObj.File(name)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", name, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return contents, nil
}

func readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	doc, err := readFile(commitObj, docFile)
	if err != nil {
		return Snapshot{}, err
	}
	text, err := readFile(commitObj, textFile)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Doc:  json.RawMessage(strings.TrimSuffix(doc, "\n")),
		Text: strings.TrimSuffix(text, "\n"),
	}, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	info := CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		FullHash:  commitObj.Hash.String(),
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
	if stats, err := commitObj.Stats(); err == nil {
		for _, st := range stats {
			if st.Name == textFile {
				info.Added, info.Removed = st.Addition, st.Deletion
			}
		}
	}
	return info
}

func sanitizeKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ', r == '-', r == '_':
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
