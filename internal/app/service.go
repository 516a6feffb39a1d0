package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"moodpad/internal/auth"
	"moodpad/internal/decorate"
	"moodpad/internal/document"
	"moodpad/internal/export"
	"moodpad/internal/gitrepo"
	"moodpad/internal/rbac"
	"moodpad/internal/rewrite"
	"moodpad/internal/search"
	"moodpad/internal/storage"
	"moodpad/internal/util"
)

var (
	keyPattern  = regexp.MustCompile(`^(happy|sad)-(editor-content|collab-[A-Za-z0-9_-]{1,64})$`)
	roomPattern = regexp.MustCompile(`^(happy|sad)-[A-Za-z0-9_-]{1,64}$`)
)

type versionStore interface {
	Commit(key string, snap gitrepo.Snapshot, author, message string) (gitrepo.CommitInfo, bool, error)
	History(key string, limit int) ([]gitrepo.CommitInfo, error)
	SnapshotAt(key, hash string) (gitrepo.Snapshot, gitrepo.CommitInfo, error)
}

type tokenRevoker interface {
	RevokeRoomToken(ctx context.Context, tokenID, room string, exp time.Time) error
	IsRoomTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

type keyLister interface {
	Keys() ([]string, error)
}

// Deps are the backends a Service runs on. Only Slot and Issuer are
// required.
type Deps struct {
	Slot     storage.Slot
	Ping     func(context.Context) error
	Search   *search.Service
	Versions versionStore
	Rewriter rewrite.Service
	Issuer   *auth.Issuer
	Revoker  tokenRevoker
	Archive  *export.Archive
}

type Service struct {
	slot     storage.Slot
	ping     func(context.Context) error
	search   *search.Service
	versions versionStore
	rewriter rewrite.Service
	issuer   *auth.Issuer
	revoker  tokenRevoker
	matcher  *decorate.Matcher
	export   *export.Service
}

func New(deps Deps) *Service {
	s := &Service{
		slot:     deps.Slot,
		ping:     deps.Ping,
		search:   deps.Search,
		versions: deps.Versions,
		rewriter: deps.Rewriter,
		issuer:   deps.Issuer,
		revoker:  deps.Revoker,
		matcher:  decorate.NewMatcher(decorate.DefaultVocabulary...),
	}
	if s.slot == nil {
		s.slot = storage.NewMemory()
	}
	if s.search == nil {
		s.search = search.NewService(nil, nil)
	}
	if s.issuer == nil {
		s.issuer = auth.NewIssuer(util.NewID("secret"), 0)
	}
	s.export = export.NewService(s, deps.Archive)
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return domainError(http.StatusBadRequest, "INVALID_KEY", "Unknown document key", map[string]any{"key": key})
	}
	return nil
}

// DocumentView is a stored document as the API returns it.
type DocumentView struct {
	Key      string             `json:"key"`
	Document *document.Document `json:"document"`
	Text     string             `json:"text"`
	Emotions []string           `json:"emotions"`
}

func (s *Service) GetDocument(ctx context.Context, key string) (DocumentView, error) {
	if err := validateKey(key); err != nil {
		return DocumentView{}, err
	}
	doc := storage.Load(ctx, s.slot, key)
	return DocumentView{Key: key, Document: doc, Text: doc.Text(), Emotions: s.emotions(doc)}, nil
}

type SaveResult struct {
	DocumentView
	Version *gitrepo.CommitInfo `json:"version,omitempty"`
	Changed bool                `json:"changed"`
}

// SaveDocument stores raw under key, then refreshes the search index and
// records a version. Index and version failures are logged, not returned.
func (s *Service) SaveDocument(ctx context.Context, key string, raw []byte, author string) (SaveResult, error) {
	if err := validateKey(key); err != nil {
		return SaveResult{}, err
	}
	doc, err := document.Parse(raw)
	if err != nil {
		return SaveResult{}, domainError(http.StatusBadRequest, "INVALID_DOCUMENT", "Document must be a JSON array of nodes", nil)
	}
	if err := storage.Save(ctx, s.slot, key, doc); err != nil {
		return SaveResult{}, fmt.Errorf("save document: %w", err)
	}

	view := DocumentView{Key: key, Document: doc, Text: doc.Text(), Emotions: s.emotions(doc)}
	s.search.IndexDocument(search.NewRecord(key, view.Text, view.Emotions))

	res := SaveResult{DocumentView: view, Changed: true}
	if s.versions != nil {
		body, err := doc.MarshalJSON()
		if err != nil {
			return SaveResult{}, fmt.Errorf("encode document: %w", err)
		}
		info, changed, err := s.versions.Commit(key, gitrepo.Snapshot{Doc: body, Text: view.Text}, author, "Save "+key)
		if err != nil {
			log.Printf("app: commit version for %s: %v", key, err)
		} else {
			res.Version, res.Changed = &info, changed
		}
	}
	return res, nil
}

type DecorationView struct {
	Path    []int  `json:"path"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Emotion string `json:"emotion"`
}

func (s *Service) Decorations(ctx context.Context, key string) ([]DecorationView, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	doc := storage.Load(ctx, s.slot, key)
	decorations := s.matcher.Document(doc)
	out := make([]DecorationView, 0, len(decorations))
	for _, d := range decorations {
		out = append(out, DecorationView{
			Path:    append([]int(nil), d.Range.Start().Path...),
			Start:   d.Range.Start().Offset,
			End:     d.Range.End().Offset,
			Emotion: d.Emotion,
		})
	}
	return out, nil
}

func (s *Service) emotions(doc *document.Document) []string {
	seen := make(map[string]bool)
	for _, d := range s.matcher.Document(doc) {
		seen[d.Emotion] = true
	}
	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func (s *Service) Versions(key string, limit int) ([]gitrepo.CommitInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if s.versions == nil {
		return []gitrepo.CommitInfo{}, nil
	}
	items, err := s.versions.History(key, limit)
	if errors.Is(err, gitrepo.ErrNoHistory) {
		return []gitrepo.CommitInfo{}, nil
	}
	return items, err
}

type VersionView struct {
	Version  gitrepo.CommitInfo `json:"version"`
	Document *document.Document `json:"document"`
	Text     string             `json:"text"`
}

func (s *Service) Version(key, hash string) (VersionView, error) {
	if err := validateKey(key); err != nil {
		return VersionView{}, err
	}
	if s.versions == nil {
		return VersionView{}, domainError(http.StatusNotFound, "NOT_FOUND", "Versions are disabled", nil)
	}
	snap, info, err := s.versions.SnapshotAt(key, hash)
	if err != nil {
		if errors.Is(err, gitrepo.ErrNoHistory) {
			return VersionView{}, err
		}
		return VersionView{}, domainError(http.StatusNotFound, "NOT_FOUND", "Version not found", map[string]any{"hash": hash})
	}
	doc, err := document.Parse(snap.Doc)
	if err != nil {
		return VersionView{}, fmt.Errorf("parse version %s: %w", hash, err)
	}
	return VersionView{Version: info, Document: doc, Text: doc.Text()}, nil
}

// LoadDocument serves exports: the stored document when version is empty,
// the committed snapshot otherwise.
func (s *Service) LoadDocument(ctx context.Context, key, version string) (*document.Document, time.Time, error) {
	if version != "" {
		if s.versions == nil {
			return nil, time.Time{}, gitrepo.ErrNoHistory
		}
		snap, info, err := s.versions.SnapshotAt(key, version)
		if err != nil {
			return nil, time.Time{}, err
		}
		doc, err := document.Parse(snap.Doc)
		if err != nil {
			return nil, time.Time{}, err
		}
		return doc, info.CreatedAt, nil
	}

	raw, err := s.slot.Get(ctx, key)
	if err != nil {
		return nil, time.Time{}, err
	}
	doc, err := document.Parse(raw)
	if err != nil {
		return nil, time.Time{}, err
	}
	var updated time.Time
	if s.versions != nil {
		if head, err := s.versions.History(key, 1); err == nil && len(head) > 0 {
			updated = head[0].CreatedAt
		}
	}
	return doc, updated, nil
}

func (s *Service) Export(ctx context.Context, key, version, format string) (*export.Result, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return s.export.Export(ctx, export.Request{Key: key, Version: version, Format: f})
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

// Reindex loads every key the slot can list into the search index.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	lister, ok := s.slot.(keyLister)
	if !ok {
		return 0, nil
	}
	keys, err := lister.Keys()
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}
	n := 0
	for _, key := range keys {
		if !keyPattern.MatchString(key) {
			continue
		}
		doc := storage.Load(ctx, s.slot, key)
		s.search.IndexDocument(search.NewRecord(key, doc.Text(), s.emotions(doc)))
		n++
	}
	return n, nil
}

// EnrichRecord fills the emotions of a record loaded from Postgres.
func (s *Service) EnrichRecord(rec *search.DocumentRecord) {
	doc := document.New(document.Paragraph(rec.Text))
	rec.Emotions = s.emotions(doc)
}

func (s *Service) Rewrite(ctx context.Context, text, mode string) (string, error) {
	tone, err := rewrite.ParseTone(mode)
	if err != nil {
		return "", err
	}
	req := rewrite.Request{Text: text, Tone: tone}
	if err := req.Validate(); err != nil {
		return "", err
	}
	if s.rewriter == nil {
		return "", rewrite.ErrNoAPIKey
	}
	return s.rewriter.Rewrite(ctx, req)
}

type RoomToken struct {
	Token     string    `json:"token"`
	Room      string    `json:"room"`
	PeerID    string    `json:"peerId"`
	Role      rbac.Role `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func validateRoom(room string) error {
	if !roomPattern.MatchString(room) {
		return domainError(http.StatusBadRequest, "INVALID_ROOM", "Room must look like <happy|sad>-<name>", map[string]any{"room": room})
	}
	return nil
}

func (s *Service) IssueRoomToken(room, peerID, role string) (RoomToken, error) {
	if err := validateRoom(room); err != nil {
		return RoomToken{}, err
	}
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		peerID = util.NewID("peer")
	}
	if role == "" {
		role = string(rbac.RoleEditor)
	}
	token, claims, err := s.issuer.Issue(room, peerID, rbac.Normalize(role))
	if err != nil {
		return RoomToken{}, fmt.Errorf("issue room token: %w", err)
	}
	return RoomToken{
		Token:     token,
		Room:      room,
		PeerID:    claims.Sub,
		Role:      rbac.Role(claims.Role),
		ExpiresAt: time.Unix(claims.Exp, 0).UTC(),
	}, nil
}

func (s *Service) VerifyRoomToken(ctx context.Context, room, token string) (auth.RoomClaims, error) {
	claims, err := s.issuer.Verify(room, token)
	if err != nil {
		return auth.RoomClaims{}, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRoomTokenRevoked(ctx, claims.JTI)
		if err != nil {
			return auth.RoomClaims{}, err
		}
		if revoked {
			return auth.RoomClaims{}, auth.ErrInvalidToken
		}
	}
	return claims, nil
}

// AuthorizeRoom verifies token for room and checks that its role may
// perform action there.
func (s *Service) AuthorizeRoom(ctx context.Context, room, token string, action rbac.Action) (auth.RoomClaims, error) {
	claims, err := s.VerifyRoomToken(ctx, room, token)
	if err != nil {
		return auth.RoomClaims{}, err
	}
	role := rbac.Role(claims.Role)
	if !rbac.Can(role, action) {
		return auth.RoomClaims{}, domainError(http.StatusForbidden, "FORBIDDEN", "Role may not "+string(action)+" in this room",
			map[string]any{"role": role, "action": action})
	}
	return claims, nil
}

func (s *Service) RevokeRoomToken(ctx context.Context, room, token string) error {
	if s.revoker == nil {
		return domainError(http.StatusNotImplemented, "REVOCATION_UNAVAILABLE", "Token revocation needs the postgres store", nil)
	}
	claims, err := s.VerifyRoomToken(ctx, room, token)
	if err != nil {
		return err
	}
	return s.revoker.RevokeRoomToken(ctx, claims.JTI, room, time.Unix(claims.Exp, 0))
}
