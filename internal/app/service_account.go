package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"lifeblocks/api/internal/authpw"
	"lifeblocks/api/internal/billing"
	"lifeblocks/api/internal/blocks"
	"lifeblocks/api/internal/email"
	"lifeblocks/api/internal/media"
	"lifeblocks/api/internal/plans"
	"lifeblocks/api/internal/rbac"
	"lifeblocks/api/internal/search"
	"lifeblocks/api/internal/store"
)

var (
	errAuthUnavailable    = domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	errMediaUnavailable   = domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Image storage not configured", nil)
	errBillingUnavailable = domainError(http.StatusServiceUnavailable, "BILLING_UNAVAILABLE", "Billing is unavailable", nil)
)

type Profile struct {
	ID          string             `json:"id"`
	Email       string             `json:"email"`
	DisplayName string             `json:"displayName"`
	Role        string             `json:"role"`
	Plan        plans.Plan         `json:"plan"`
	Billing     store.Subscription `json:"subscription"`
	StorageUsed int64              `json:"storageUsed"`
	BoardCount  int                `json:"boardCount"`
}

func (s *Service) Me(ctx context.Context, session Session) (Profile, error) {
	user, err := s.ensureUser(ctx, session)
	if err != nil {
		return Profile{}, err
	}
	count, err := s.store.CountBoards(ctx, user.ID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		Plan:        plans.Effective(user.Account()),
		Billing:     user.Subscription,
		StorageUsed: user.StorageUsed,
		BoardCount:  count,
	}, nil
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.Session, error) {
	if s.passwords == nil {
		return nil, errAuthUnavailable
	}
	return s.passwords.SignUp(ctx, req)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (*authpw.Session, error) {
	if s.passwords == nil {
		return nil, errAuthUnavailable
	}
	return s.passwords.SignIn(ctx, req)
}

// SignOut revokes the session's token. Hosted tokens are not ours to revoke
// when password auth is disabled, so that case is a no-op.
func (s *Service) SignOut(ctx context.Context, session Session) error {
	if s.passwords == nil {
		return nil
	}
	return s.passwords.SignOut(ctx, session.Claims)
}

func (s *Service) Search(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	boards, err := s.store.ListBoards(ctx, session.UserID)
	if err != nil {
		return search.Response{}, err
	}
	q.BoardIDs = make([]string, 0, len(boards))
	for _, b := range boards {
		q.BoardIDs = append(q.BoardIDs, b.ID)
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) ListMembers(ctx context.Context, session Session, boardID string) ([]store.Member, error) {
	if _, err := s.authorize(ctx, session, boardID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, boardID)
}

type MemberInput struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// SetMember grants or changes a collaborator's role. Sharing needs a plan
// with team boards on the owner's side.
func (s *Service) SetMember(ctx context.Context, session Session, boardID string, input MemberInput) (store.Member, error) {
	if _, err := s.authorize(ctx, session, boardID, rbac.ActionAdmin); err != nil {
		return store.Member{}, err
	}
	if !rbac.Assignable(input.Role) {
		return store.Member{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be viewer or editor", map[string]any{"field": "role"})
	}
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return store.Member{}, err
	}
	owner, err := s.store.GetUser(ctx, board.OwnerID)
	if err != nil {
		return store.Member{}, err
	}
	account := owner.Account()
	if !account.Admin && !plans.Effective(account).TeamBoards {
		return store.Member{}, domainError(http.StatusForbidden, "PLAN_LIMIT", "Sharing requires the team plan", map[string]any{"limit": "teamBoards"})
	}

	var target store.User
	switch {
	case input.UserID != "":
		target, err = s.store.GetUser(ctx, input.UserID)
	case strings.TrimSpace(input.Email) != "":
		target, err = s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	default:
		return store.Member{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId or email is required", map[string]any{"field": "email"})
	}
	if err != nil {
		return store.Member{}, err
	}
	if target.ID == board.OwnerID {
		return store.Member{}, domainError(http.StatusConflict, "OWNER_ROLE", "The owner's role cannot be changed", nil)
	}
	previous, err := s.store.MemberRole(ctx, boardID, target.ID)
	if err != nil {
		return store.Member{}, err
	}
	if err := s.store.UpsertMember(ctx, boardID, target.ID, input.Role); err != nil {
		return store.Member{}, err
	}
	if previous == "" {
		s.notifyShare(ctx, session, board, target, input.Role)
	}
	return store.Member{
		BoardID:     boardID,
		UserID:      target.ID,
		Role:        input.Role,
		Email:       target.Email,
		DisplayName: target.DisplayName,
	}, nil
}

// notifyShare emails a new collaborator. Failures are logged only.
func (s *Service) notifyShare(ctx context.Context, session Session, board blocks.Board, target store.User, role string) {
	if s.mailer == nil || target.Email == "" || strings.HasSuffix(target.Email, "@identity.invalid") {
		return
	}
	sharedBy := session.Email
	if sharedBy == "" {
		sharedBy = "A LifeBlocks user"
	}
	err := s.mailer.BoardShared(ctx, email.BoardShare{
		To:         target.Email,
		Recipient:  target.DisplayName,
		SharedBy:   sharedBy,
		BoardTitle: board.Title,
		Role:       role,
		BoardURL:   s.cfg.AppURL + "/boards/" + board.ID,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"board": board.ID, "user": target.ID}).Warn("share notice failed")
	}
}

// RemoveMember revokes access. Members may always remove themselves.
func (s *Service) RemoveMember(ctx context.Context, session Session, boardID, userID string) error {
	action := rbac.ActionAdmin
	if userID == session.UserID {
		action = rbac.ActionRead
	}
	role, err := s.authorize(ctx, session, boardID, action)
	if err != nil {
		return err
	}
	if userID == session.UserID && role == rbac.RoleOwner {
		return domainError(http.StatusConflict, "OWNER_ROLE", "The owner cannot leave the board", nil)
	}
	targetRole, err := s.store.MemberRole(ctx, boardID, userID)
	if err != nil {
		return err
	}
	switch rbac.Normalize(targetRole) {
	case rbac.RoleNone:
		return sql.ErrNoRows
	case rbac.RoleOwner:
		return domainError(http.StatusConflict, "OWNER_ROLE", "The owner cannot be removed", nil)
	}
	return s.store.RemoveMember(ctx, boardID, userID)
}

type ImageUpload struct {
	ContentType string
	Size        int64
	Body        io.Reader
}

// AddImage uploads into an image gallery block. The object is charged to the
// uploader and released again if the block cannot be saved.
func (s *Service) AddImage(ctx context.Context, session Session, boardID, blockID string, upload ImageUpload) (blocks.Block, error) {
	if s.media == nil {
		return blocks.Block{}, errMediaUnavailable
	}
	board, err := s.writableBoard(ctx, session, boardID)
	if err != nil {
		return blocks.Block{}, err
	}
	block, ok := board.Block(blockID)
	if !ok {
		return blocks.Block{}, blocks.ErrUnknownBlock
	}
	gallery, ok := block.Content.(*blocks.ImageGallery)
	if !ok {
		return blocks.Block{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "block is not an image gallery", map[string]any{"type": string(block.Type)})
	}
	if _, err := s.ensureUser(ctx, session); err != nil {
		return blocks.Block{}, err
	}

	image, err := s.media.Upload(ctx, media.UploadRequest{
		UserID:      session.UserID,
		BlockID:     blockID,
		ContentType: upload.ContentType,
		Size:        upload.Size,
		Body:        upload.Body,
	})
	if err != nil {
		return blocks.Block{}, err
	}
	gallery.Images = append(gallery.Images, image)
	if err := s.store.UpsertBlock(ctx, boardID, *block); err != nil {
		if _, rmErr := s.media.Delete(ctx, session.UserID, image.Key); rmErr != nil {
			s.logger.WithError(rmErr).WithField("key", image.Key).Warn("release image after failed save")
		}
		return blocks.Block{}, err
	}
	return *block, nil
}

// RemoveImage drops one image from a gallery and refunds its uploader.
func (s *Service) RemoveImage(ctx context.Context, session Session, boardID, blockID, key string) (blocks.Block, error) {
	if s.media == nil {
		return blocks.Block{}, errMediaUnavailable
	}
	board, err := s.writableBoard(ctx, session, boardID)
	if err != nil {
		return blocks.Block{}, err
	}
	block, ok := board.Block(blockID)
	if !ok {
		return blocks.Block{}, blocks.ErrUnknownBlock
	}
	gallery, ok := block.Content.(*blocks.ImageGallery)
	if !ok {
		return blocks.Block{}, sql.ErrNoRows
	}
	kept := gallery.Images[:0]
	found := false
	for _, img := range gallery.Images {
		if img.Key == key {
			found = true
			continue
		}
		kept = append(kept, img)
	}
	if !found {
		return blocks.Block{}, sql.ErrNoRows
	}
	gallery.Images = kept
	if err := s.store.UpsertBlock(ctx, boardID, *block); err != nil {
		return blocks.Block{}, err
	}
	s.releaseImage(ctx, blockID, key)
	return *block, nil
}

func (s *Service) priceFor(tier plans.Tier) string {
	switch tier {
	case plans.TierPro:
		return s.cfg.StripePricePro
	case plans.TierTeam:
		return s.cfg.StripePriceTeam
	}
	return ""
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (s *Service) Checkout(ctx context.Context, session Session, plan string) (CheckoutSession, error) {
	if s.billing == nil {
		return CheckoutSession{}, errBillingUnavailable
	}
	user, err := s.ensureUser(ctx, session)
	if err != nil {
		return CheckoutSession{}, err
	}
	price := s.priceFor(plans.Tier(strings.ToLower(plan)))
	if price == "" {
		return CheckoutSession{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "plan must be pro or team", map[string]any{"field": "plan"})
	}
	id, url, err := s.billing.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		PriceID:       price,
		SuccessURL:    s.cfg.AppURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.cfg.AppURL + "/billing",
		CustomerEmail: user.Email,
		UserID:        user.ID,
		CustomerID:    user.Subscription.CustomerID,
	})
	s.metrics.RecordBilling("checkout", err)
	if err != nil {
		return CheckoutSession{}, err
	}
	return CheckoutSession{ID: id, URL: url}, nil
}

func (s *Service) Portal(ctx context.Context, session Session) (string, error) {
	if s.billing == nil {
		return "", errBillingUnavailable
	}
	user, err := s.ensureUser(ctx, session)
	if err != nil {
		return "", err
	}
	if user.Subscription.CustomerID == "" {
		return "", domainError(http.StatusConflict, "NO_BILLING_ACCOUNT", "No billing account for this user", nil)
	}
	url, err := s.billing.CreatePortalSession(ctx, user.Subscription.CustomerID, s.cfg.AppURL+"/billing")
	s.metrics.RecordBilling("portal", err)
	return url, err
}

// ApplyWebhook verifies a Stripe event and persists the subscription change
// it carries. Events for customers we do not know are acknowledged and
// dropped so Stripe stops retrying them.
func (s *Service) ApplyWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.billing == nil {
		return errBillingUnavailable
	}
	change, err := s.billing.HandleWebhook(payload, signature)
	s.metrics.RecordBilling("webhook", err)
	if err != nil || change == nil {
		return err
	}

	var user store.User
	if change.UserID != "" {
		user, err = s.store.GetUser(ctx, change.UserID)
	} else {
		user, err = s.store.GetUserByCustomer(ctx, change.CustomerID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.WithFields(log.Fields{
			"event":    change.Event,
			"user":     change.UserID,
			"customer": change.CustomerID,
		}).Warn("webhook for unknown account")
		return nil
	}
	if err != nil {
		return err
	}

	sub := store.Subscription{Status: change.Status, Plan: string(change.Plan), CustomerID: change.CustomerID}
	if sub.CustomerID == "" {
		sub.CustomerID = user.Subscription.CustomerID
	}
	if err := s.store.UpdateSubscription(ctx, user.ID, sub); err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{"user": user.ID, "plan": sub.Plan, "status": sub.Status}).Info("subscription updated")
	return nil
}
