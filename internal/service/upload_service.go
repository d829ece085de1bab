package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imguard/internal/domain"
	"imguard/internal/metrics"
	"imguard/internal/origin"
	"imguard/internal/port"
	"imguard/internal/quota"
	"imguard/internal/validator"
)

const (
	fileField        = "file"
	maxFieldBytes    = 1 << 10
	maxOriginalName  = 100
	accountingWindow = 10 * time.Second
)

// Stage is a state of the upload pipeline. Stages are passed strictly in order.
type Stage int

const (
	StageReceived Stage = iota
	StageOriginChecked
	StageRateChecked
	StageSizeChecked
	StageParsed
	StageTypeValidated
	StageContentValidated
	StageQuotaChecked
	StageStored
	StageAccounted
	StageResponded
)

var stageNames = [...]string{
	"received", "origin_checked", "rate_checked", "size_checked", "parsed",
	"type_validated", "content_validated", "quota_checked", "stored", "accounted", "responded",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "stage(" + strconv.Itoa(int(s)) + ")"
}

// StageError records the stage an upload was refused at. The last stage
// passed is Stage-1.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("upload refused before %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// UploadRequest is one inbound upload. Body is read at most once.
type UploadRequest struct {
	Identity      string
	Origin        string
	ContentLength int64
	ContentType   string
	Body          io.Reader
}

// ProcessingMeta describes how an accepted upload was handled.
type ProcessingMeta struct {
	Key           string `json:"key"`
	SizeBytes     int64  `json:"sizeBytes"`
	MediaType     string `json:"mediaType"`
	DetectedType  string `json:"detectedType"`
	UsageSource   string `json:"usageSource"`
	UsageFallback bool   `json:"usageFallback"`
	UsageRealtime bool   `json:"usageRealtime"`
	DurationMs    int64  `json:"durationMs"`
}

// UploadResult is the outcome of an accepted upload.
type UploadResult struct {
	Object   *domain.StoredObject
	Usage    *domain.UsageSnapshot
	Decision *domain.QuotaDecision
	Meta     ProcessingMeta
}

// UploadOptions holds the pipeline limits.
type UploadOptions struct {
	MaxFileBytes    int64
	MaxRequestBytes int64
	MaxFields       int
	KeyPrefix       string
	PublicDomain    string
	PutTimeout      time.Duration
}

// UploadDeps are the collaborators of the upload pipeline.
type UploadDeps struct {
	Origins   *origin.AllowList
	Limiter   port.RateLimiter
	Validator *validator.Validator
	Gate      *quota.Gate
	Usage     UsageService
	Storage   port.ObjectStorage
	Temp      *TempStore
	Observer  metrics.Observer
	Log       *zap.Logger
}

// UploadService runs the upload pipeline.
type UploadService interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)
}

type uploadService struct {
	deps  UploadDeps
	opts  UploadOptions
	now   func() time.Time
	newID func() string
}

// NewUploadService creates an UploadService.
func NewUploadService(deps UploadDeps, opts UploadOptions) UploadService {
	return newUploadService(deps, opts, time.Now, func() string { return uuid.NewString() })
}

func newUploadService(deps UploadDeps, opts UploadOptions, now func() time.Time, newID func() string) *uploadService {
	if deps.Observer == nil {
		deps.Observer = metrics.Nop{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &uploadService{deps: deps, opts: opts, now: now, newID: newID}
}

// upload is the per-request pipeline state.
type upload struct {
	req      *UploadRequest
	started  time.Time
	buf      *TempBuffer
	claimed  string
	filename string
	fields   int

	mediaType domain.MediaType
	verdict   *validator.Verdict
	decision  *domain.QuotaDecision
	object    *domain.StoredObject
	usage     *domain.UsageSnapshot
}

type step struct {
	to  Stage
	run func(ctx context.Context, u *upload) error
}

func (s *uploadService) steps() []step {
	return []step{
		{StageOriginChecked, s.checkOrigin},
		{StageRateChecked, s.checkRate},
		{StageSizeChecked, s.checkSize},
		{StageParsed, s.parse},
		{StageTypeValidated, s.validateType},
		{StageContentValidated, s.validateContent},
		{StageQuotaChecked, s.checkQuota},
		{StageStored, s.store},
		{StageAccounted, s.account},
		{StageResponded, s.respond},
	}
}

// Upload walks the pipeline stages in order. The temporary buffer is
// released on every return path.
func (s *uploadService) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	u := &upload{req: req, started: s.now()}
	defer func() {
		if err := u.buf.Release(); err != nil {
			s.deps.Log.Warn("releasing upload buffer", zap.Error(err))
		}
	}()

	for _, st := range s.steps() {
		if err := st.run(ctx, u); err != nil {
			return nil, &StageError{Stage: st.to, Err: err}
		}
	}

	return &UploadResult{
		Object:   u.object,
		Usage:    u.usage,
		Decision: u.decision,
		Meta: ProcessingMeta{
			Key:           u.object.Key,
			SizeBytes:     u.object.Size,
			MediaType:     string(u.mediaType),
			DetectedType:  u.verdict.DetectedType,
			UsageSource:   u.usage.Source,
			UsageFallback: u.usage.Fallback,
			UsageRealtime: s.deps.Usage.Realtime(),
			DurationMs:    s.now().Sub(u.started).Milliseconds(),
		},
	}, nil
}

func (s *uploadService) checkOrigin(_ context.Context, u *upload) error {
	if !s.deps.Origins.Allowed(u.req.Origin) {
		return domain.ErrOriginForbidden
	}
	return nil
}

func (s *uploadService) checkRate(ctx context.Context, u *upload) error {
	if !s.deps.Limiter.TryAdmit(u.req.Identity, s.now()) {
		return &domain.RateLimitError{
			RetryAfter: s.deps.Limiter.RetryAfter(),
			Usage:      s.deps.Usage.Snapshot(ctx),
		}
	}
	return nil
}

func (s *uploadService) checkSize(_ context.Context, u *upload) error {
	if u.req.ContentLength > s.opts.MaxRequestBytes {
		return domain.ErrRequestTooLarge
	}
	return nil
}

// parse streams the multipart body. At most one file part is accepted and
// spilled to a temp buffer; other fields are counted and discarded.
func (s *uploadService) parse(ctx context.Context, u *upload) error {
	mediaType, params, err := mime.ParseMediaType(u.req.ContentType)
	if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
		return domain.NewValidationError(domain.RejectMalformedBody, "request body must be multipart/form-data")
	}

	body := &limitedReader{r: u.req.Body, remaining: s.opts.MaxRequestBytes}
	mr := multipart.NewReader(body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return classifyReadErr(ctx, err)
		}

		if part.FormName() == fileField {
			err = s.readFile(ctx, u, part)
		} else {
			err = s.readField(ctx, u, part)
		}
		_ = part.Close()
		if err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIncompleteUpload, err)
	}
	if u.buf == nil {
		return domain.NewValidationError(domain.RejectMissingFile, "no file provided in field %q", fileField)
	}
	return nil
}

func (s *uploadService) readFile(ctx context.Context, u *upload, part *multipart.Part) error {
	if u.buf != nil {
		return domain.NewValidationError(domain.RejectTooManyFields, "only one file may be uploaded per request")
	}
	buf, err := s.deps.Temp.Create()
	if err != nil {
		return fmt.Errorf("creating upload buffer: %w", err)
	}
	u.buf = buf
	u.claimed = part.Header.Get("Content-Type")
	u.filename = part.FileName()

	n, err := io.Copy(buf, io.LimitReader(part, s.opts.MaxFileBytes+1))
	if err != nil {
		return classifyReadErr(ctx, err)
	}
	if n > s.opts.MaxFileBytes {
		return domain.ErrPayloadTooLarge
	}
	return nil
}

func (s *uploadService) readField(ctx context.Context, u *upload, part *multipart.Part) error {
	u.fields++
	if u.fields > s.opts.MaxFields {
		return domain.NewValidationError(domain.RejectTooManyFields,
			"too many form fields; at most %d are allowed besides %q", s.opts.MaxFields, fileField)
	}
	n, err := io.Copy(io.Discard, io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return classifyReadErr(ctx, err)
	}
	if n > maxFieldBytes {
		return domain.NewValidationError(domain.RejectMalformedBody, "form field %q is too long", part.FormName())
	}
	return nil
}

// classifyReadErr maps a body read failure to the caller-facing error.
func classifyReadErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrRequestTooLarge):
		return domain.ErrRequestTooLarge
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", domain.ErrIncompleteUpload, ctx.Err())
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %w", domain.ErrIncompleteUpload, err)
	default:
		return domain.NewValidationError(domain.RejectMalformedBody, "malformed multipart body: %v", err)
	}
}

func (s *uploadService) validateType(_ context.Context, u *upload) error {
	mt, rej := validator.CheckType(u.claimed)
	if rej != nil {
		return rej
	}
	u.mediaType = mt
	return nil
}

func (s *uploadService) validateContent(ctx context.Context, u *upload) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIncompleteUpload, err)
	}
	head, err := u.buf.Head(validator.SniffLen)
	if err != nil {
		return fmt.Errorf("reading upload buffer: %w", err)
	}
	u.verdict = s.deps.Validator.Validate(&validator.Input{
		Head:      head,
		Size:      u.buf.Size(),
		MediaType: u.claimed,
		Filename:  u.filename,
	})
	return u.verdict.Err()
}

func (s *uploadService) checkQuota(ctx context.Context, u *upload) error {
	snapshot := s.deps.Usage.Snapshot(ctx)
	u.decision = s.deps.Gate.Evaluate(snapshot, u.buf.Size())
	if !u.decision.CanProceed {
		return &domain.QuotaExceededError{Decision: u.decision}
	}
	return nil
}

func (s *uploadService) store(ctx context.Context, u *upload) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIncompleteUpload, err)
	}

	key := s.newID() + "." + u.verdict.Extension
	if s.opts.KeyPrefix != "" {
		key = s.opts.KeyPrefix + "/" + key
	}
	now := s.now().UTC()
	obj := &domain.StoredObject{
		Key:          key,
		URL:          s.opts.PublicDomain + "/" + key,
		ContentType:  u.verdict.MediaType,
		Size:         u.buf.Size(),
		OriginalName: truncateName(u.filename, maxOriginalName),
		UploadedBy:   u.req.Identity,
		UploadedAt:   now,
	}
	obj.Metadata = map[string]string{
		"uploaded-by":   headerSafe(obj.UploadedBy),
		"uploaded-at":   now.Format(time.RFC3339),
		"original-name": headerSafe(obj.OriginalName),
		"size":          strconv.FormatInt(obj.Size, 10),
	}

	body, err := u.buf.Reader()
	if err != nil {
		return fmt.Errorf("%w: rewinding buffer: %w", domain.ErrUploadFailed, err)
	}

	putCtx, cancel := context.WithTimeout(ctx, s.opts.PutTimeout)
	defer cancel()
	start := s.now()
	out, err := s.deps.Storage.Put(putCtx, port.PutInput{
		Key:         key,
		Body:        body,
		ContentType: string(obj.ContentType),
		Size:        obj.Size,
		Metadata:    obj.Metadata,
	})
	s.deps.Observer.RecordStoragePut(s.now().Sub(start), obj.Size, err)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}
	obj.ETag = out.ETag
	u.object = obj
	return nil
}

// account records the write. Failures are logged and never reach the
// caller: the object is already stored.
func (s *uploadService) account(ctx context.Context, u *upload) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), accountingWindow)
	defer cancel()
	if err := s.deps.Usage.RecordUpload(ctx, u.object.Size); err != nil {
		s.deps.Log.Warn("usage accounting failed; later quota checks will undercount",
			zap.String("key", u.object.Key),
			zap.Int64("size", u.object.Size),
			zap.Error(err))
	}
	return nil
}

// respond picks the usage reported back: a fresh read when the source
// reflects the increment immediately, otherwise the pre-write projection.
func (s *uploadService) respond(ctx context.Context, u *upload) error {
	u.usage = u.decision.Projected
	if s.deps.Usage.Realtime() {
		if fresh := s.deps.Usage.Snapshot(context.WithoutCancel(ctx)); !fresh.Fallback {
			u.usage = fresh
		}
	}
	return nil
}

// limitedReader fails with ErrRequestTooLarge once more than remaining bytes
// have been read.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, domain.ErrRequestTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, domain.ErrRequestTooLarge
	}
	return n, err
}

func truncateName(name string, limit int) string {
	r := []rune(name)
	if len(r) <= limit {
		return name
	}
	return string(r[:limit])
}

// headerSafe replaces characters that cannot travel in an object metadata header.
func headerSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '_'
		}
		return r
	}, s)
}
