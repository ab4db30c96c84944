package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"marketplace-settlement/internal/client"
	"marketplace-settlement/internal/dto"
	"marketplace-settlement/internal/logging"
	"marketplace-settlement/internal/model"
	"marketplace-settlement/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".epub": "application/epub+zip",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".zip":  "application/zip",
	".rar":  "application/vnd.rar",
	".7z":   "application/x-7z-compressed",
	".txt":  "text/plain; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".json": "application/json",
}

const defaultContentType = "application/octet-stream"

// fileExt returns the lower-cased extension of a storage key or URL, ignoring
// any query string.
func fileExt(fileURL string) string {
	p := fileURL
	if u, err := url.Parse(fileURL); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// ContentTypeFor maps a stored file's extension to the type it is served with.
func ContentTypeFor(fileURL string) string {
	if ct, ok := contentTypes[fileExt(fileURL)]; ok {
		return ct
	}
	return defaultContentType
}

// DownloadFilename names the served file after the product title, keeping the
// stored file's extension.
func DownloadFilename(title, fileURL string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == '\\' || r == '/' || r == ':' || r == '*' || r == '?' || r == '<' || r == '>' || r == '|':
			return -1
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, title)
	name = strings.TrimSpace(name)
	if name == "" {
		name = "download"
	}

	ext := fileExt(fileURL)
	if ext != "" && !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}
	return name
}

type DownloadService interface {
	Issue(ctx context.Context, userID, orderID string) (*dto.DownloadTicket, error)
	// IssueForGuest mints a link for an order placed without an account. The
	// link itself is the credential, bound to the address it is mailed to.
	IssueForGuest(ctx context.Context, orderID, email string) (*dto.DownloadTicket, error)
	Redeem(ctx context.Context, userID, token string) (*dto.DownloadFile, error)
}

type DownloadOptions struct {
	BaseURL string
	// TTL bounds links issued to a signed-in buyer.
	TTL time.Duration
	// GuestTTL bounds links mailed to guests, who cannot ask for a new one.
	GuestTTL time.Duration
}

type downloadServiceImpl struct {
	files    client.FileStore
	orders   repository.OrderRepository
	products repository.ProductRepository
	tokens   repository.DownloadTokenRepository
	baseURL  string
	ttl      time.Duration
	guestTTL time.Duration
	now      func() time.Time
}

func NewDownloadService(
	files client.FileStore,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	downloadTokenRepo repository.DownloadTokenRepository,
	opts DownloadOptions,
) DownloadService {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.GuestTTL <= 0 {
		opts.GuestTTL = opts.TTL
	}
	return &downloadServiceImpl{
		files:    files,
		orders:   orderRepo,
		products: productRepo,
		tokens:   downloadTokenRepo,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		ttl:      opts.TTL,
		guestTTL: opts.GuestTTL,
		now:      time.Now,
	}
}

func (s *downloadServiceImpl) Issue(ctx context.Context, userID, orderID string) (*dto.DownloadTicket, error) {
	l := logging.FromContext(ctx).With("op", "download.issue", "order_id", orderID, "user_id", userID)
	if userID == "" {
		return nil, &Error{ErrUnauthorized, "sign in to download your purchase"}
	}

	order, err := s.orders.FindByID(ctx, nil, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccessDenied
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order.BuyerID != userID || !order.Status.IsDownloadable() {
		l.Warn("download refused", "status", order.Status)
		return nil, ErrAccessDenied
	}
	if err := s.checkDigital(ctx, order); err != nil {
		return nil, err
	}

	return s.mint(logging.IntoContext(ctx, l), &model.DownloadToken{OrderID: order.ID, UserID: userID}, s.ttl)
}

func (s *downloadServiceImpl) IssueForGuest(ctx context.Context, orderID, email string) (*dto.DownloadTicket, error) {
	l := logging.FromContext(ctx).With("op", "download.issue_guest", "order_id", orderID)
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrNoDeliveryAddress
	}

	order, err := s.orders.FindByID(ctx, nil, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order.BuyerID != "" || !order.Status.IsDownloadable() {
		l.Warn("guest download refused", "status", order.Status)
		return nil, ErrAccessDenied
	}
	if err := s.checkDigital(ctx, order); err != nil {
		return nil, err
	}

	return s.mint(logging.IntoContext(ctx, l), &model.DownloadToken{OrderID: order.ID, Email: email}, s.guestTTL)
}

func (s *downloadServiceImpl) checkDigital(ctx context.Context, order *model.Order) error {
	listing, err := s.products.ResolveKind(ctx, order.ProductID, order.ProductKind)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrFileUnavailable
	}
	if err != nil {
		return fmt.Errorf("resolve product: %w", err)
	}
	if !listing.IsDigital() {
		return ErrWrongProductType
	}
	return nil
}

func (s *downloadServiceImpl) mint(ctx context.Context, token *model.DownloadToken, ttl time.Duration) (*dto.DownloadTicket, error) {
	l := logging.FromContext(ctx)

	now := s.now().UTC()
	if purged, err := s.tokens.DeleteExpired(ctx, now); err != nil {
		l.Warn("purge expired download tokens failed", "error", err)
	} else if purged > 0 {
		l.Debug("purged expired download tokens", "count", purged)
	}

	token.Token = strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	token.ExpiresAt = now.Add(ttl)
	token.CreatedAt = now
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("store download token: %w", err)
	}
	l.Info("download token issued", "expires_at", token.ExpiresAt)

	return &dto.DownloadTicket{
		URL:       fmt.Sprintf("%s/api/downloads/redeem/%s", s.baseURL, token.Token),
		ExpiresAt: token.ExpiresAt,
	}, nil
}

func (s *downloadServiceImpl) Redeem(ctx context.Context, userID, token string) (*dto.DownloadFile, error) {
	l := logging.FromContext(ctx).With("op", "download.redeem", "user_id", userID)
	if token == "" {
		return nil, ErrInvalidToken
	}

	stored, err := s.tokens.Find(ctx, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("find download token: %w", err)
	}
	if !s.now().Before(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	guest := stored.UserID == ""
	if !guest && stored.UserID != userID {
		return nil, ErrInvalidToken
	}
	l = l.With("order_id", stored.OrderID)

	order, err := s.orders.FindByID(ctx, nil, stored.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order.BuyerID != stored.UserID || (guest && stored.Email == "") || !order.Status.IsDownloadable() {
		return nil, ErrAccessDenied
	}

	listing, err := s.products.ResolveKind(ctx, order.ProductID, order.ProductKind)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("resolve product: %w", err)
	}
	if listing.FileURL == "" {
		return nil, ErrFileUnavailable
	}

	file, err := s.files.Fetch(ctx, listing.FileURL)
	if err != nil {
		l.Error("file fetch failed", "product_id", listing.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}

	l.Info("download served", "product_id", listing.ID, "bytes", len(file.Content))
	return &dto.DownloadFile{
		Filename:    DownloadFilename(listing.Title, listing.FileURL),
		ContentType: ContentTypeFor(listing.FileURL),
		Content:     file.Content,
	}, nil
}
