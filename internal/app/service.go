package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"lifeblocks/api/internal/auth"
	"lifeblocks/api/internal/authpw"
	"lifeblocks/api/internal/billing"
	"lifeblocks/api/internal/blocks"
	"lifeblocks/api/internal/config"
	"lifeblocks/api/internal/email"
	"lifeblocks/api/internal/export"
	"lifeblocks/api/internal/media"
	"lifeblocks/api/internal/metrics"
	"lifeblocks/api/internal/mobileorder"
	"lifeblocks/api/internal/plans"
	"lifeblocks/api/internal/progress"
	"lifeblocks/api/internal/rbac"
	"lifeblocks/api/internal/search"
	"lifeblocks/api/internal/store"
	"lifeblocks/api/internal/util"
)

// Session is the authenticated caller of a request.
type Session struct {
	UserID string
	Email  string
	Role   string
	Claims *auth.Claims
}

type dataStore interface {
	GetBoard(context.Context, string) (blocks.Board, error)
	ListBoards(context.Context, string) ([]store.BoardSummary, error)
	CountBoards(context.Context, string) (int, error)
	CreateBoard(context.Context, blocks.Board) error
	DeleteBoard(context.Context, string) error
	UpsertBlock(context.Context, string, blocks.Block) error
	DeleteBlock(context.Context, string, string) error
	SaveMobileOrder(context.Context, string, []string) error
	SetBlockHidden(context.Context, string, string, bool) error
	GetUser(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByCustomer(context.Context, string) (store.User, error)
	UpsertUser(context.Context, store.User) (store.User, error)
	UpdateSubscription(context.Context, string, store.Subscription) error
	AddStorageUsed(context.Context, string, int64) (int64, error)
	ListMembers(context.Context, string) ([]store.Member, error)
	MemberRole(context.Context, string, string) (string, error)
	UpsertMember(context.Context, string, string, string) error
	RemoveMember(context.Context, string, string) error
	Ping(context.Context) error
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexBlock(boardID string, b blocks.Block)
	IndexBoard(board blocks.Board)
	DeleteBlock(boardID, blockID string)
	DeleteBoard(board blocks.Board)
}

type mediaStore interface {
	Upload(ctx context.Context, req media.UploadRequest) (blocks.Image, error)
	Delete(ctx context.Context, userID, key string) (int64, error)
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// imageURLTTL is how long a presigned image link in a board response works.
const imageURLTTL = 15 * time.Minute

type billingGateway interface {
	CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (string, string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	HandleWebhook(payload []byte, signature string) (*billing.SubscriptionChange, error)
}

type shareNotifier interface {
	BoardShared(ctx context.Context, share email.BoardShare) error
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// Deps are the optional collaborators of the service. Leave a field nil to
// disable the feature; its endpoints then answer 503.
type Deps struct {
	Verifier  *auth.Verifier
	Passwords *authpw.Service
	Search    searchIndex
	Media     mediaStore
	Billing   billingGateway
	Export    exporter
	Mailer    shareNotifier
	Metrics   *metrics.Metrics
	Logger    log.FieldLogger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sync      *mobileorder.Synchronizer
	verifier  *auth.Verifier
	passwords *authpw.Service
	search    searchIndex
	media     mediaStore
	billing   billingGateway
	export    exporter
	mailer    shareNotifier
	metrics   *metrics.Metrics
	logger    log.FieldLogger
	location  *time.Location
	now       func() time.Time
}

func New(cfg config.Config, st dataStore, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	idx := deps.Search
	if idx == nil {
		idx = search.NewService(nil, nil, logger)
	}
	exp := deps.Export
	if exp == nil {
		exp = export.NewService()
	}
	verifier := deps.Verifier
	if verifier == nil {
		verifier = auth.NewLocalVerifier([]byte(cfg.JWTSecret), cfg.JWTAudience, cfg.JWTIssuer)
	}

	sync := mobileorder.NewSynchronizer(st, logger)
	sync.OnReconcile = m.RecordReconcile

	return &Service{
		cfg:       cfg,
		store:     st,
		sync:      sync,
		verifier:  verifier,
		passwords: deps.Passwords,
		search:    idx,
		media:     deps.Media,
		billing:   deps.Billing,
		export:    exp,
		mailer:    deps.Mailer,
		metrics:   m,
		logger:    logger,
		location:  cfg.Location(),
		now:       time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// today is the current calendar day in the configured timezone.
func (s *Service) today() time.Time {
	return s.now().In(s.location)
}

// parseDay reads a YYYY-MM-DD query value, defaulting to today.
func (s *Service) parseDay(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return s.today(), nil
	}
	day, err := blocks.ParseDate(value)
	if err != nil {
		return time.Time{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "date must be YYYY-MM-DD", map[string]any{"field": "date"})
	}
	return day, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.verifier.Parse(ctx, token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: claims.Subject, Email: claims.Email, Role: claims.Role, Claims: claims}, nil
}

// ensureUser returns the user row for the session, creating it on first
// sight of a hosted identity.
func (s *Service) ensureUser(ctx context.Context, session Session) (store.User, error) {
	user, err := s.store.GetUser(ctx, session.UserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("load user: %w", err)
	}
	email := session.Email
	if email == "" {
		email = session.UserID + "@identity.invalid"
	}
	return s.store.UpsertUser(ctx, store.User{ID: session.UserID, Email: email, Role: store.RoleUser})
}

// authorize resolves the caller's role on a board. Non-members get a 404 so
// board ids cannot be enumerated.
func (s *Service) authorize(ctx context.Context, session Session, boardID string, action rbac.Action) (rbac.Role, error) {
	raw, err := s.store.MemberRole(ctx, boardID, session.UserID)
	if err != nil {
		return rbac.RoleNone, err
	}
	role := rbac.Normalize(raw)
	if role == rbac.RoleNone {
		return rbac.RoleNone, sql.ErrNoRows
	}
	if !rbac.Can(role, action) {
		return role, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": string(action)})
	}
	return role, nil
}

func (s *Service) ListBoards(ctx context.Context, session Session) ([]store.BoardSummary, error) {
	return s.store.ListBoards(ctx, session.UserID)
}

type CreateBoardInput struct {
	Title  string         `json:"title"`
	Blocks []blocks.Block `json:"blocks"`
}

func (s *Service) CreateBoard(ctx context.Context, session Session, input CreateBoardInput) (blocks.Board, error) {
	user, err := s.ensureUser(ctx, session)
	if err != nil {
		return blocks.Board{}, err
	}
	count, err := s.store.CountBoards(ctx, user.ID)
	if err != nil {
		return blocks.Board{}, err
	}
	if err := plans.CanCreateBoard(user.Account(), count); err != nil {
		return blocks.Board{}, err
	}

	board := blocks.Board{
		ID:      util.NewID("brd"),
		OwnerID: user.ID,
		Title:   strings.TrimSpace(input.Title),
		Blocks:  make([]blocks.Block, 0, len(input.Blocks)),
	}
	for _, block := range input.Blocks {
		if block.ID == "" {
			block.ID = util.NewID("blk")
		}
		blocks.ClearImages(&block)
		if err := board.Add(block); err != nil {
			return blocks.Board{}, err
		}
	}
	board.MobileOrder, _ = mobileorder.Reconcile(board.Blocks, nil)
	board.UpdatedAt = s.now().UTC()

	if err := s.store.CreateBoard(ctx, board); err != nil {
		return blocks.Board{}, err
	}
	s.search.IndexBoard(board)
	return board, nil
}

// ImageURLs presigns a download link for every image on board, keyed by
// object key. Keys that fail to sign are left out.
func (s *Service) ImageURLs(ctx context.Context, board blocks.Board) map[string]string {
	urls := map[string]string{}
	if s.media == nil {
		return urls
	}
	for _, b := range board.Blocks {
		for _, img := range blocks.Images(b) {
			u, err := s.media.URL(ctx, img.Key, imageURLTTL)
			if err != nil {
				s.logger.WithError(err).WithField("key", img.Key).Warn("presign image failed")
				continue
			}
			urls[img.Key] = u
		}
	}
	return urls
}

// GetBoard loads the board with a reconciled mobile order, persisting the
// correction when the stored order had drifted.
func (s *Service) GetBoard(ctx context.Context, session Session, boardID string) (blocks.Board, rbac.Role, error) {
	role, err := s.authorize(ctx, session, boardID, rbac.ActionRead)
	if err != nil {
		return blocks.Board{}, role, err
	}
	board, err := s.sync.Load(ctx, boardID)
	if err != nil {
		return blocks.Board{}, role, err
	}
	return board, role, nil
}

func (s *Service) DeleteBoard(ctx context.Context, session Session, boardID string) error {
	if _, err := s.authorize(ctx, session, boardID, rbac.ActionAdmin); err != nil {
		return err
	}
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	for _, b := range board.Blocks {
		s.releaseImages(ctx, b.ID, blocks.Images(b))
	}
	s.search.DeleteBoard(board)
	return nil
}

// writableBoard checks write access and loads the board for mutation.
func (s *Service) writableBoard(ctx context.Context, session Session, boardID string) (blocks.Board, error) {
	if _, err := s.authorize(ctx, session, boardID, rbac.ActionWrite); err != nil {
		return blocks.Board{}, err
	}
	return s.store.GetBoard(ctx, boardID)
}

func (s *Service) AddBlock(ctx context.Context, session Session, boardID string, block blocks.Block) (blocks.Block, error) {
	board, err := s.writableBoard(ctx, session, boardID)
	if err != nil {
		return blocks.Block{}, err
	}
	if block.ID == "" {
		block.ID = util.NewID("blk")
	}
	blocks.ClearImages(&block)
	if err := board.Add(block); err != nil {
		return blocks.Block{}, err
	}
	if err := s.store.UpsertBlock(ctx, boardID, block); err != nil {
		return blocks.Block{}, err
	}
	s.search.IndexBlock(boardID, block)
	return block, nil
}

func (s *Service) UpdateBlock(ctx context.Context, session Session, boardID, blockID string, patch []byte) (blocks.Block, error) {
	board, err := s.writableBoard(ctx, session, boardID)
	if err != nil {
		return blocks.Block{}, err
	}
	current, ok := board.Block(blockID)
	if !ok {
		return blocks.Block{}, blocks.ErrUnknownBlock
	}
	before, err := blocks.Clone(*current)
	if err != nil {
		return blocks.Block{}, err
	}
	updated, err := board.Update(blockID, patch)
	if err != nil {
		return blocks.Block{}, err
	}
	if err := s.store.UpsertBlock(ctx, boardID, updated); err != nil {
		return blocks.Block{}, err
	}
	s.releaseImages(ctx, blockID, blocks.RemovedImages(before, updated))
	s.search.IndexBlock(boardID, updated)
	return updated, nil
}

func (s *Service) DeleteBlock(ctx context.Context, session Session, boardID, blockID string) error {
	board, err := s.writableBoard(ctx, session, boardID)
	if err != nil {
		return err
	}
	removed, err := board.Remove(blockID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBlock(ctx, boardID, blockID); err != nil {
		return err
	}
	if err := s.store.SaveMobileOrder(ctx, boardID, board.MobileOrder); err != nil {
		s.logger.WithError(err).WithField("board", boardID).Warn("mobile order save after delete failed")
	}
	s.releaseImages(ctx, removed.ID, blocks.Images(removed))
	s.search.DeleteBlock(boardID, blockID)
	return nil
}

// releaseImages frees objects dropped from a block and refunds their
// uploaders. Keys that were not uploaded into blockID are never touched.
// Failures only leave an orphaned object behind, so they are logged.
func (s *Service) releaseImages(ctx context.Context, blockID string, images []blocks.Image) {
	if s.media == nil {
		return
	}
	for _, img := range images {
		s.releaseImage(ctx, blockID, img.Key)
	}
}

func (s *Service) releaseImage(ctx context.Context, blockID, key string) {
	uploader, owner, ok := media.ParseKey(key)
	if !ok || owner != blockID {
		s.logger.WithFields(log.Fields{"key": key, "block": blockID}).Warn("skipping image key from another block")
		return
	}
	if _, err := s.media.Delete(ctx, uploader, key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("release image failed")
	}
}

type CheckInput struct {
	Date   string `json:"date"`
	ItemID string `json:"itemId"`
	Index  int    `json:"index"`
	Value  bool   `json:"value"`
}

type CheckResult struct {
	Block       blocks.Block `json:"block"`
	Progress    float64      `json:"progress"`
	HasProgress bool         `json:"hasProgress"`
	Streak      int          `json:"streak"`
}

// Check records one history mark and returns the block's new standing.
func (s *Service) Check(ctx context.Context, session Session, boardID, blockID string, input CheckInput) (CheckResult, error) {
	board, err := s.writableBoard(ctx, session, boardID)
	if err != nil {
		return CheckResult{}, err
	}
	block, ok := board.Block(blockID)
	if !ok {
		return CheckResult{}, blocks.ErrUnknownBlock
	}
	day, err := s.parseDay(input.Date)
	if err != nil {
		return CheckResult{}, err
	}
	date := blocks.DateKey(day)
	if err := blocks.Check(block, date, input.ItemID, input.Index, input.Value); err != nil {
		return CheckResult{}, err
	}
	if err := s.store.UpsertBlock(ctx, boardID, *block); err != nil {
		return CheckResult{}, err
	}
	s.metrics.RecordCheck(string(block.Type), input.Value)
	if _, isTodo := block.Content.(*blocks.TodoList); isTodo {
		s.search.IndexBlock(boardID, *block)
	}

	result := CheckResult{Block: *block}
	if pct, ok := progress.Progress(*block, date); ok {
		result.Progress, result.HasProgress = pct, true
		result.Streak = progress.Streak(*block, s.today())
	} else if pct, ok := progress.TodoCompletion(*block); ok {
		result.Progress, result.HasProgress = pct, true
	}
	return result, nil
}

func (s *Service) SetHidden(ctx context.Context, session Session, boardID, blockID string, hidden bool) (blocks.Block, error) {
	board, err := s.writableBoard(ctx, session, boardID)
	if err != nil {
		return blocks.Block{}, err
	}
	if err := s.sync.SetHidden(ctx, &board, blockID, hidden); err != nil {
		return blocks.Block{}, err
	}
	block, _ := board.Block(blockID)
	return *block, nil
}

func (s *Service) MoveBlock(ctx context.Context, session Session, boardID, blockID string, index int) ([]string, error) {
	if _, err := s.authorize(ctx, session, boardID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	board, err := s.sync.Load(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if err := s.sync.Reorder(ctx, &board, blockID, index); err != nil {
		return nil, err
	}
	return board.MobileOrder, nil
}

func (s *Service) Analytics(ctx context.Context, session Session, boardID, date string) (progress.Snapshot, error) {
	board, _, err := s.GetBoard(ctx, session, boardID)
	if err != nil {
		return progress.Snapshot{}, err
	}
	day, err := s.parseDay(date)
	if err != nil {
		return progress.Snapshot{}, err
	}
	return progress.Summarize(board, day), nil
}

func (s *Service) Series(ctx context.Context, session Session, boardID, blockID, end string, days int) ([]progress.DayProgress, error) {
	board, _, err := s.GetBoard(ctx, session, boardID)
	if err != nil {
		return nil, err
	}
	block, ok := board.Block(blockID)
	if !ok {
		return nil, blocks.ErrUnknownBlock
	}
	day, err := s.parseDay(end)
	if err != nil {
		return nil, err
	}
	if days == 0 {
		days = progress.DefaultSeriesDays
	}
	series := progress.Series(*block, day, days)
	if series == nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "block has no daily history", map[string]any{"type": string(block.Type)})
	}
	return series, nil
}

func (s *Service) Export(ctx context.Context, session Session, boardID, format, date string) (*export.Result, error) {
	board, _, err := s.GetBoard(ctx, session, boardID)
	if err != nil {
		return nil, err
	}
	day, err := s.parseDay(date)
	if err != nil {
		return nil, err
	}
	return s.export.Export(ctx, export.Request{Board: board, Date: day, Format: export.Format(strings.ToLower(format))})
}
