package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/drstein77/groceryweb/internal/archive"
	"github.com/drstein77/groceryweb/internal/compress"
	"github.com/drstein77/groceryweb/internal/events"
	"github.com/drstein77/groceryweb/internal/importer"
	"github.com/drstein77/groceryweb/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxQuery is the longest accepted search term, in characters.
const MaxQuery = 200

// maxReportedErrors caps how many row errors an import response carries.
const maxReportedErrors = 10

var (
	ErrEmptyQuery   = errors.New("please enter a search term")
	ErrQueryTooLong = fmt.Errorf("search term is too long (max %d characters)", MaxQuery)
	ErrInvalidFile  = errors.New("invalid import file")
	ErrFileTooLarge = errors.New("import file is too large")
)

type Log interface {
	Info(string, ...zap.Field)
	Error(string, ...zap.Field)
}

// Keeper interface for database operations
type Keeper interface {
	InsertProducts(context.Context, []models.Product) (*models.ProcessResponse, error)
	InsertProduct(context.Context, models.Product) (models.Product, error)
	SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error)
	GetAllProducts(context.Context) ([]models.Product, error)
	Ping(context.Context) bool
	Close() bool
}

// Storage is the catalogue service used by the controllers.
type Storage struct {
	keeper      Keeper
	archiver    archive.Archiver
	publisher   events.Publisher
	searchLimit int
	maxFileSize int64
	log         Log
}

type Option func(*Storage)

func WithArchiver(a archive.Archiver) Option {
	return func(s *Storage) { s.archiver = a }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Storage) { s.publisher = p }
}

func WithSearchLimit(n int) Option {
	return func(s *Storage) { s.searchLimit = n }
}

// WithMaxFileSize caps both the upload and the CSV unpacked from it.
func WithMaxFileSize(n int64) Option {
	return func(s *Storage) { s.maxFileSize = n }
}

// NewStorage creates a new Storage instance
func NewStorage(keeper Keeper, log Log, opts ...Option) *Storage {
	s := &Storage{
		keeper:    keeper,
		archiver:  archive.Nop{},
		publisher: events.Nop{},
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload is an import file as received from a client.
type Upload struct {
	FileName string
	Type     string // compress.TypeCSV, TypeZip or TypeTar
	Body     io.Reader
}

// ImportCSV reads an upload, stores every valid row and reports the rows
// that were skipped. A file that cannot be read at all is rejected with
// an ErrInvalidFile error and nothing is stored.
func (s *Storage) ImportCSV(ctx context.Context, up Upload) (*models.ProcessResponse, error) {
	raw, err := io.ReadAll(s.limit(up.Body))
	if errors.Is(err, compress.ErrTooLarge) {
		return nil, ErrFileTooLarge
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	csvReader, err := compress.OpenCSV(up.Type, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	defer csvReader.Close()

	parsed, err := importer.Parse(s.limit(csvReader))
	if errors.Is(err, compress.ErrTooLarge) {
		return nil, ErrFileTooLarge
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	resp, err := s.keeper.InsertProducts(ctx, parsed.Products)
	if err != nil {
		return nil, err
	}

	resp.Failed = len(parsed.Errors)
	for i, rowErr := range parsed.Errors {
		if i == maxReportedErrors {
			break
		}
		resp.Errors = append(resp.Errors, rowErr.Error())
	}

	s.log.Info("Import finished",
		zap.String("file", up.FileName),
		zap.Int("imported", resp.Imported),
		zap.Int("failed", resp.Failed),
	)

	if resp.Imported > 0 {
		s.afterImport(ctx, up.FileName, raw, resp)
	}
	return resp, nil
}

func (s *Storage) limit(r io.Reader) io.Reader {
	if s.maxFileSize <= 0 {
		return r
	}
	return compress.NewLimitReader(r, s.maxFileSize)
}

// afterImport archives the upload and announces the import. Neither
// step can fail the import itself.
func (s *Storage) afterImport(ctx context.Context, fileName string, raw []byte, resp *models.ProcessResponse) {
	if fileName == "" {
		fileName = "upload.csv"
	}

	key, err := s.archiver.Archive(ctx, fileName, raw)
	if err != nil {
		s.log.Error("Failed to archive import file", zap.String("file", fileName), zap.Error(err))
	}

	evt := models.ImportEvent{
		ID:         uuid.NewString(),
		Imported:   resp.Imported,
		Failed:     resp.Failed,
		TotalItems: resp.TotalItems,
		ArchiveKey: key,
		At:         time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Error("Failed to publish import event", zap.String("event", evt.ID), zap.Error(err))
	}
}

// AddProduct validates and stores a single manually entered product.
func (s *Storage) AddProduct(ctx context.Context, in models.ProductInput) (models.Product, error) {
	product, err := importer.ValidateInput(in)
	if err != nil {
		return models.Product{}, err
	}
	return s.keeper.InsertProduct(ctx, product)
}

// Search returns products whose name or category contains query.
func (s *Storage) Search(ctx context.Context, query string) ([]models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if utf8.RuneCountInString(query) > MaxQuery {
		return nil, ErrQueryTooLong
	}
	return s.keeper.SearchProducts(ctx, query, s.searchLimit)
}

func (s *Storage) Products(ctx context.Context) ([]models.Product, error) {
	return s.keeper.GetAllProducts(ctx)
}

func (s *Storage) Ping(ctx context.Context) bool {
	return s.keeper.Ping(ctx)
}

// IsUserError reports whether err should be shown to the user as a
// message rather than treated as a server failure.
func IsUserError(err error) bool {
	return errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrQueryTooLong) ||
		errors.Is(err, ErrInvalidFile) ||
		errors.Is(err, ErrFileTooLarge) ||
		importer.IsValidation(err)
}
