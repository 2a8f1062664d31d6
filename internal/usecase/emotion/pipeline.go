// Package emotion классифицирует снимки постов асинхронно и переводит теги
// из pending в ready или failed.
package emotion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

var (
	// ErrClassifierTimeout — классификатор не ответил за отведённое время.
	ErrClassifierTimeout = errors.New("classifier timeout")
	// ErrClassifierFailure — классификатор вернул ошибку или некорректный ответ.
	ErrClassifierFailure = errors.New("classifier failure")
)

const resumeBatch = 1000

// Config задаёт таймауты и бюджет повторов.
type Config struct {
	Timeout        time.Duration
	LateGrace      time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Workers        int
	StaleAfter     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.LateGrace < 0 {
		c.LateGrace = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 200 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = c.BackoffInitial
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * time.Minute
	}
	// Захват обновляется перед каждой попыткой и держится до конца паузы после неё.
	if floor := 2 * (c.Timeout + c.BackoffMax); c.StaleAfter < floor {
		c.StaleAfter = floor
	}
	return c
}

// PostReader загружает посты для восстановления задач.
type PostReader interface {
	GetPosts(ctx context.Context, ids []domain.PostID) (map[domain.PostID]domain.Post, error)
}

// Pipeline ставит снимки в очередь и обрабатывает её пулом воркеров.
type Pipeline struct {
	tags       domain.EmotionTagRepo
	posts      PostReader
	queue      domain.ClassificationQueue
	classifier domain.Classifier
	cfg        Config
	log        zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	late  sync.WaitGroup
}

var _ domain.EmotionDispatcher = (*Pipeline)(nil)

// NewPipeline создаёт конвейер классификации.
func NewPipeline(tags domain.EmotionTagRepo, posts PostReader, queue domain.ClassificationQueue, classifier domain.Classifier, cfg Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		tags:       tags,
		posts:      posts,
		queue:      queue,
		classifier: classifier,
		cfg:        cfg.withDefaults(),
		log:        logger,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Dispatch ставит пост в очередь, только если его тег в pending и не занят попыткой.
func (p *Pipeline) Dispatch(ctx context.Context, post domain.Post) error {
	if !post.HasImage() {
		return nil
	}
	tag, err := p.tags.GetTag(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("тег поста: %w", err)
	}
	if tag.State != domain.EmotionPending || tag.InFlight {
		return nil
	}
	return p.enqueue(ctx, post, false)
}

// ResumePending ставит в очередь теги, оставшиеся в pending без активной попытки,
// например после перезапуска. Повторная доставка безопасна: воркер захватывает попытку атомарно.
func (p *Pipeline) ResumePending(ctx context.Context) (int, error) {
	tags, err := p.tags.ListClaimable(ctx, p.now().Add(-p.cfg.StaleAfter), resumeBatch)
	if err != nil {
		return 0, fmt.Errorf("незавершённые теги: %w", err)
	}
	if len(tags) == 0 {
		return 0, nil
	}
	ids := lo.Map(tags, func(t domain.EmotionTag, _ int) domain.PostID { return t.PostID })
	posts, err := p.posts.GetPosts(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("посты для восстановления: %w", err)
	}
	resumed := 0
	for _, id := range ids {
		post, ok := posts[id]
		if !ok {
			continue
		}
		if err := p.enqueue(ctx, post, true); err != nil {
			return resumed, err
		}
		resumed++
	}
	if resumed > 0 {
		p.log.Info().Int("count", resumed).Msg("emotion: незавершённые задачи возвращены в очередь")
	}
	return resumed, nil
}

func (p *Pipeline) enqueue(ctx context.Context, post domain.Post, resumed bool) error {
	job := domain.ClassificationJob{
		ID:         uuid.NewString(),
		PostID:     post.ID,
		ImageRef:   post.ImageRef,
		EnqueuedAt: p.now().UTC(),
		Resumed:    resumed,
	}
	if err := p.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("постановка в очередь: %w", err)
	}
	return nil
}

// Run читает очередь, пока не отменён контекст. Параллелизм ограничен Config.Workers.
func (p *Pipeline) Run(ctx context.Context) error {
	sem := make(chan struct{}, p.cfg.Workers)
	var wg sync.WaitGroup
	defer p.late.Wait()
	defer wg.Wait()

	for {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		job, ack, err := p.queue.Receive(ctx)
		if err != nil {
			<-sem
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			p.log.Error().Err(err).Msg("emotion: ошибка чтения очереди")
			if p.sleep(ctx, time.Second) != nil {
				return nil
			}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.handle(ctx, job, ack)
		}()
	}
}

func (p *Pipeline) handle(ctx context.Context, job domain.ClassificationJob, ack domain.AckFunc) {
	jobLog := p.log.With().Str("job_id", job.ID).Int64("post_id", int64(job.PostID)).Logger()
	settle := func(success bool) {
		if err := ack(success); err != nil {
			jobLog.Error().Err(err).Bool("success", success).Msg("emotion: не удалось подтвердить задачу")
		}
	}
	if job.PostID <= 0 {
		jobLog.Error().Msg("emotion: задача без поста, пропускаем")
		settle(true)
		return
	}

	now := p.now()
	tag, claimed, err := p.tags.ClaimAttempt(ctx, job.PostID, now, now.Add(-p.cfg.StaleAfter))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			jobLog.Warn().Msg("emotion: тег не найден, пропускаем")
			settle(true)
			return
		}
		jobLog.Error().Err(err).Msg("emotion: не удалось начать попытку")
		_ = p.sleep(ctx, time.Second)
		settle(false)
		return
	}
	if !claimed {
		jobLog.Debug().Str("state", string(tag.State)).Msg("emotion: тег уже обрабатывается или завершён")
		settle(true)
		return
	}

	// Тег остаётся занятым всю серию попыток, включая паузы между ними: Dispatch и
	// ResumePending не ставят по нему вторую задачу, пока захват не устарел.
	bo := p.newBackOff()
	for {
		attempt := tag.RetryCount
		attemptLog := jobLog.With().Int("attempt", attempt).Logger()
		if attempt > p.cfg.MaxAttempts {
			p.fail(ctx, job.PostID, attemptLog)
			settle(true)
			return
		}

		label, confidence, err := p.attempt(ctx, job)
		if err == nil {
			p.complete(ctx, job.PostID, label, confidence, attemptLog)
			settle(true)
			return
		}
		if ctx.Err() != nil {
			// Попытка прервана остановкой, а не классификатором: в бюджет не засчитываем.
			p.release(context.WithoutCancel(ctx), job.PostID, true, attemptLog)
			settle(false)
			return
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) || attempt >= p.cfg.MaxAttempts {
			attemptLog.Warn().Err(err).Msg("emotion: попытки исчерпаны")
			p.fail(ctx, job.PostID, attemptLog)
			settle(true)
			return
		}

		delay := bo.NextBackOff()
		attemptLog.Info().Err(err).Dur("retry_in", delay).Msg("emotion: повторим классификацию")
		if err := p.sleep(ctx, delay); err != nil {
			p.release(context.WithoutCancel(ctx), job.PostID, false, attemptLog)
			settle(false)
			return
		}

		var renewed bool
		tag, renewed, err = p.tags.RenewAttempt(ctx, job.PostID, p.now())
		if err != nil {
			attemptLog.Error().Err(err).Msg("emotion: не удалось продолжить попытки")
			p.release(context.WithoutCancel(ctx), job.PostID, false, attemptLog)
			settle(false)
			return
		}
		if !renewed {
			attemptLog.Debug().Str("state", string(tag.State)).Msg("emotion: тег завершён во время паузы")
			settle(true)
			return
		}
	}
}

// attempt выполняет одну попытку с таймаутом. Ответ, пришедший после таймаута,
// обрабатывается отдельно и принимается, только пока тег в pending.
func (p *Pipeline) attempt(ctx context.Context, job domain.ClassificationJob) (string, float64, error) {
	type outcome struct {
		res domain.ClassifyResult
		err error
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout+p.cfg.LateGrace)
	done := make(chan outcome, 1)
	go func() {
		res, err := p.classifier.Classify(callCtx, domain.ClassifyRequest{PostID: job.PostID, ImageRef: job.ImageRef})
		done <- outcome{res: res, err: err}
	}()

	timer := time.NewTimer(p.cfg.Timeout)
	defer timer.Stop()
	select {
	case out := <-done:
		cancel()
		if out.err != nil {
			metrics.IncClassifierAttempt("error")
			return "", 0, fmt.Errorf("%w: %w", ErrClassifierFailure, out.err)
		}
		label, confidence, err := Normalize(out.res)
		if err != nil {
			metrics.IncClassifierAttempt("error")
			return "", 0, err
		}
		metrics.IncClassifierAttempt("success")
		return label, confidence, nil
	case <-timer.C:
		metrics.IncClassifierAttempt("timeout")
		p.late.Add(1)
		go func() {
			defer p.late.Done()
			defer cancel()
			out := <-done
			if out.err != nil {
				return
			}
			p.acceptLate(context.WithoutCancel(ctx), job.PostID, out.res)
		}()
		return "", 0, ErrClassifierTimeout
	case <-ctx.Done():
		cancel()
		return "", 0, ctx.Err()
	}
}

func (p *Pipeline) acceptLate(ctx context.Context, post domain.PostID, res domain.ClassifyResult) {
	label, confidence, err := Normalize(res)
	if err != nil {
		metrics.IncLateResult(false)
		return
	}
	ok, err := p.tags.CompleteTag(ctx, post, label, confidence, p.now())
	if err != nil {
		p.log.Error().Err(err).Int64("post_id", int64(post)).Msg("emotion: не удалось сохранить поздний результат")
		return
	}
	metrics.IncLateResult(ok)
	if ok {
		metrics.IncTagTerminal(string(domain.EmotionReady))
		p.log.Info().Int64("post_id", int64(post)).Str("label", label).Msg("emotion: принят поздний результат")
	}
}

func (p *Pipeline) complete(ctx context.Context, post domain.PostID, label string, confidence float64, log zerolog.Logger) {
	ok, err := p.tags.CompleteTag(ctx, post, label, confidence, p.now())
	if err != nil {
		log.Error().Err(err).Msg("emotion: не удалось сохранить результат")
		p.release(ctx, post, false, log)
		return
	}
	if !ok {
		log.Debug().Msg("emotion: тег уже в терминальном состоянии, результат отброшен")
		return
	}
	metrics.IncTagTerminal(string(domain.EmotionReady))
	log.Info().Str("label", label).Float64("confidence", confidence).Msg("emotion: тег готов")
}

func (p *Pipeline) fail(ctx context.Context, post domain.PostID, log zerolog.Logger) {
	ok, err := p.tags.FailTag(ctx, post, p.now())
	if err != nil {
		log.Error().Err(err).Msg("emotion: не удалось перевести тег в failed")
		return
	}
	if ok {
		metrics.IncTagTerminal(string(domain.EmotionFailed))
	}
}

func (p *Pipeline) release(ctx context.Context, post domain.PostID, refund bool, log zerolog.Logger) {
	if err := p.tags.ReleaseAttempt(ctx, post, p.now(), refund); err != nil {
		log.Error().Err(err).Msg("emotion: не удалось снять отметку попытки")
	}
}

func (p *Pipeline) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.BackoffInitial
	bo.MaxInterval = p.cfg.BackoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Normalize приводит ответ классификатора к метке и уверенности. Без явной метки
// берётся метка с максимальной оценкой из распределения.
func Normalize(res domain.ClassifyResult) (string, float64, error) {
	label := strings.ToLower(strings.TrimSpace(res.Label))
	confidence := res.Confidence
	if label == "" && len(res.Scores) > 0 {
		label, confidence = dominant(res.Scores)
	}
	if label == "" {
		return "", 0, fmt.Errorf("%w: empty label", ErrClassifierFailure)
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return "", 0, fmt.Errorf("%w: confidence %v out of range", ErrClassifierFailure, confidence)
	}
	return label, confidence, nil
}

func dominant(scores map[string]float64) (string, float64) {
	labels := lo.Keys(scores)
	sort.Strings(labels)
	best, bestScore := "", math.Inf(-1)
	for _, label := range labels {
		if scores[label] > bestScore {
			best, bestScore = label, scores[label]
		}
	}
	return strings.ToLower(strings.TrimSpace(best)), bestScore
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
