package book

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"colorcraft/internal/model"
	"colorcraft/internal/service"
	"colorcraft/pkg/metrics"
)

var tracer = otel.Tracer("colorcraft/book")

var (
	// ErrInvalidInput 主题或名字为空，状态不变
	ErrInvalidInput = errors.New("theme and child name are required")
	// ErrSuperseded 规划返回前已经开始了新的一次生成
	ErrSuperseded = errors.New("generation superseded by a newer request")
)

// Run 一次生成的句柄
type Run struct {
	Generation uint64
	State      model.BookState
	done       chan struct{}
}

// Done 所有图片任务结束后关闭
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func finishedRun(generation uint64, state model.BookState) *Run {
	done := make(chan struct{})
	close(done)
	return &Run{Generation: generation, State: state, done: done}
}

// Orchestrator 负责一本书的生成流程：规划 -> 并行生成封面和内页 -> 合并结果
type Orchestrator struct {
	store       *Store
	planner     service.Planner
	illustrator service.Illustrator
	log         *logrus.Entry
}

func NewOrchestrator(planner service.Planner, illustrator service.Illustrator, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		store:       NewStore(),
		planner:     planner,
		illustrator: illustrator,
		log:         log,
	}
}

// Store 暴露状态存储，供读取和订阅
func (o *Orchestrator) Store() *Store {
	return o.store
}

// State 当前状态快照
func (o *Orchestrator) State() model.BookState {
	return o.store.Snapshot()
}

// Generate 等待规划完成，然后为封面和每个内页各启动一个独立的图片任务后立即返回。
// 图片任务不随 ctx 取消，也不会被后续的 Generate 取消；过期任务的结果按 generation 丢弃。
func (o *Orchestrator) Generate(ctx context.Context, theme, childName string) (*Run, error) {
	if strings.TrimSpace(theme) == "" || strings.TrimSpace(childName) == "" {
		return nil, ErrInvalidInput
	}
	ctx = context.WithoutCancel(ctx)

	state, _ := o.store.Update(func(s model.BookState) (model.BookState, bool) {
		return Reset(s, theme, childName), true
	})
	gen := state.Generation
	log := o.log.WithFields(logrus.Fields{"generation": gen, "theme": state.Theme})
	log.Info("planning book")

	plan, err := o.plan(ctx, state.Theme, state.ChildName)
	if err != nil {
		log.WithError(err).Error("generation plan failed")
		state, applied := o.store.Update(func(s model.BookState) (model.BookState, bool) {
			return ApplyPlanFailure(s, gen)
		})
		if !applied {
			return finishedRun(gen, state), ErrSuperseded
		}
		return finishedRun(gen, state), err
	}

	state, applied := o.store.Update(func(s model.BookState) (model.BookState, bool) {
		return ApplyPlan(s, gen, plan)
	})
	if !applied {
		log.Warn("plan arrived after a newer generation started, dropping")
		return finishedRun(gen, state), ErrSuperseded
	}
	log.WithField("pages", len(state.Pages)).Info("plan ready, generating images")

	items := make([]model.Item, 0, len(state.Pages)+1)
	items = append(items, state.Cover)
	items = append(items, state.Pages...)

	run := &Run{Generation: gen, State: state, done: make(chan struct{})}
	var g errgroup.Group
	for _, item := range items {
		g.Go(func() error {
			o.illustrate(ctx, gen, item, log)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(run.done)
		log.WithField("status", o.store.Snapshot().Status).Info("all image tasks finished")
	}()
	return run, nil
}

func (o *Orchestrator) plan(ctx context.Context, theme, childName string) (*model.Plan, error) {
	ctx, span := tracer.Start(ctx, "book.plan")
	defer span.End()

	start := time.Now()
	plan, err := o.planner.Plan(ctx, theme, childName)
	metrics.PlanDuration.Observe(time.Since(start).Seconds())
	if err == nil && (plan == nil || len(plan.PageDescriptions) == 0) {
		err = fmt.Errorf("%w: empty plan", service.ErrPlanFailed)
	}
	if err != nil {
		span.RecordError(err)
		metrics.PlanTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.PlanTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Int("book.pages", len(plan.PageDescriptions)))
	return plan, nil
}

// illustrate 单个图片任务，失败只影响自己的条目
func (o *Orchestrator) illustrate(ctx context.Context, gen uint64, item model.Item, log *logrus.Entry) {
	isCover := item.ID == model.CoverID
	kind := "page"
	if isCover {
		kind = "cover"
	}
	ctx, span := tracer.Start(ctx, "book.illustrate")
	span.SetAttributes(attribute.Int("book.item_id", item.ID), attribute.String("book.kind", kind))
	defer span.End()

	start := time.Now()
	data, err := o.illustrator.Illustrate(ctx, item.Description, isCover)
	metrics.ImageDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	ev := ItemEvent{Generation: gen, ItemID: item.ID, ImageData: data, Err: err}
	entry := log.WithField("item_id", item.ID)
	if err != nil {
		span.RecordError(err)
		metrics.ImageTotal.WithLabelValues(kind, "error").Inc()
		entry.WithError(err).Error("image generation failed")
	} else {
		metrics.ImageTotal.WithLabelValues(kind, "success").Inc()
	}

	state, applied := o.store.Update(func(s model.BookState) (model.BookState, bool) {
		return ApplyItem(s, ev)
	})
	if !applied {
		metrics.StaleResultsDropped.Inc()
		entry.Warn("stale image result dropped")
		return
	}
	if state.Status == model.BookReady {
		metrics.BooksReady.Inc()
		entry.Info("book ready")
	}
}
