// Copyright 2025 Buildarr Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pipeline executes one complete reconciliation pass: render,
// initialize, fetch secrets, fetch remote state, diff and update, stage by
// stage across all instances of all active plugins.
//
// Each stage runs to completion across all instances before the next stage
// starts. A per-instance failure excludes that instance from all later
// stages of the run; other instances are unaffected.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/buildarr/buildarr/internal/config"
	"github.com/buildarr/buildarr/internal/depgraph"
	"github.com/buildarr/buildarr/internal/log"
	"github.com/buildarr/buildarr/internal/plugin"
	"github.com/buildarr/buildarr/internal/registry"
	"github.com/buildarr/buildarr/internal/remotemap"
)

// defaultConcurrency bounds parallel connectivity checks within a stage.
const defaultConcurrency = 4

// Runner executes pipeline runs against a fixed plugin set.
type Runner struct {
	// Plugins is the set of installed plugins.
	Plugins *plugin.Set

	// Logger is the base logger. Defaults to slog.Default.
	Logger *slog.Logger

	// Concurrency bounds parallel instance processing within stages that
	// have no ordering constraint. Defaults to 4.
	Concurrency int
}

// run holds all mutable state for a single pipeline pass. It is created at
// the start of Run and becomes garbage at return; no attribute value or
// secret computed in one run leaks into the next run's initial state.
type run struct {
	id      string
	log     *slog.Logger
	reg     *registry.Registry
	order   []plugin.InstanceRef
	configs map[string]plugin.Config

	mu       sync.Mutex
	excluded map[plugin.InstanceRef]bool
	remotes  map[plugin.InstanceRef]map[string]any
	diffs    map[plugin.InstanceRef]map[string]remotemap.Diff
	payloads map[plugin.InstanceRef]map[string]map[string]any
	result   *Result
}

// Run executes one complete reconciliation pass.
//
// A fatal configuration error is returned directly and nothing is
// executed. Per-instance failures are accumulated in the Result; the
// returned error is nil in that case.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	rn, err := r.prepare(cfg)
	if err != nil {
		return nil, err
	}

	rn.log.Info("Starting reconciliation run", slog.Int("instances", rn.reg.Len()))

	rn.renderPreInit(ctx)
	rn.initializeInstances(ctx)
	rn.renderPostInit(ctx)
	rn.fetchSecrets(ctx, r.concurrency())
	rn.fetchRemote(ctx)
	rn.computeDiff()
	rn.applyUpdates(ctx)
	rn.deleteUnmanaged(ctx)

	rn.result.Finished = time.Now()
	rn.logSummary()
	recordRun(rn.result)
	return rn.result, nil
}

// Validate performs the pre-flight portion of a run without contacting any
// remote instance: plugin config decoding, instance registry construction,
// dependency graph validation and the pre-init render hooks.
func (r *Runner) Validate(ctx context.Context, cfg *config.Config) error {
	rn, err := r.prepare(cfg)
	if err != nil {
		return err
	}
	for _, name := range activePlugins(rn.configs) {
		renderer, ok := rn.pluginHook(name)
		if !ok {
			continue
		}
		if err := renderer.RenderPreInit(ctx); err != nil {
			return fmt.Errorf("plugin %q: pre-init render failed: %w", name, err)
		}
	}
	rn.log.Info("Configuration is valid",
		slog.Int("instances", rn.reg.Len()),
		slog.Int("plugins", len(rn.configs)))
	return nil
}

// prepare performs everything that must succeed before any network I/O:
// plugin config decoding, registry construction and dependency resolution.
func (r *Runner) prepare(cfg *config.Config) (*run, error) {
	configs, err := r.decodeConfigs(cfg)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	if len(configs) == 0 {
		return nil, &ConfigError{Err: fmt.Errorf("no loaded plugins configured")}
	}

	reg, err := registry.Build(configs)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	order, err := depgraph.Resolve(reg)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	runID := uuid.NewString()
	return &run{
		id:       runID,
		log:      log.WithRunContext(r.logger(), runID),
		reg:      reg,
		order:    order,
		configs:  configs,
		excluded: make(map[plugin.InstanceRef]bool),
		remotes:  make(map[plugin.InstanceRef]map[string]any),
		diffs:    make(map[plugin.InstanceRef]map[string]remotemap.Diff),
		payloads: make(map[plugin.InstanceRef]map[string]map[string]any),
		result:   newResult(runID),
	}, nil
}

func (r *Runner) decodeConfigs(cfg *config.Config) (map[string]plugin.Config, error) {
	configs := make(map[string]plugin.Config, len(cfg.Plugins))
	names := make([]string, 0, len(cfg.Plugins))
	for name := range cfg.Plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p, ok := r.Plugins.Get(name)
		if !ok {
			return nil, fmt.Errorf("configuration section %q does not match any installed plugin", name)
		}
		decoded, err := p.DecodeConfig(cfg.Plugins[name])
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", name, err)
		}
		configs[name] = decoded
	}
	return configs, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) concurrency() int {
	if r.Concurrency > 0 {
		return r.Concurrency
	}
	return defaultConcurrency
}

// renderPreInit runs the pre-init render hook once per active plugin.
// A hook failure excludes every instance of that plugin from the run.
func (rn *run) renderPreInit(ctx context.Context) {
	stageLog := rn.stageLogger(StageRenderPreInit)
	for _, name := range activePlugins(rn.configs) {
		renderer, ok := rn.pluginHook(name)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			rn.skipPlugin(name)
			continue
		}
		if err := safeCall(func() error { return renderer.RenderPreInit(ctx) }); err != nil {
			stageLog.Error("Pre-init render failed", slog.String(log.PluginKey, name), log.Error(err))
			rn.failPlugin(StageRenderPreInit, name, err)
		}
	}
}

func (rn *run) initializeInstances(ctx context.Context) {
	rn.eachSequential(ctx, StageInitializeInstances, rn.order, func(ctx context.Context, inst *registry.Instance) error {
		init, ok := inst.Config.(plugin.Initializer)
		if !ok {
			return nil
		}
		return init.Initialize(ctx)
	})
}

func (rn *run) renderPostInit(ctx context.Context) {
	rn.eachSequential(ctx, StageRenderPostInit, rn.order, func(ctx context.Context, inst *registry.Instance) error {
		renderer, ok := inst.Config.(plugin.PostInitRenderer)
		if !ok {
			return nil
		}
		return renderer.RenderPostInit(ctx)
	})
}

// fetchSecrets obtains credentials and checks connectivity for every
// instance. Instances are independent here, so the checks run in parallel;
// the stage boundary remains a full barrier.
func (rn *run) fetchSecrets(ctx context.Context, concurrency int) {
	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for _, ref := range rn.order {
		ref := ref
		g.Go(func() error {
			rn.instanceStep(ctx, StageFetchSecrets, ref, func(ctx context.Context, inst *registry.Instance) error {
				secrets, err := inst.Config.FetchSecrets(ctx)
				if err != nil {
					return fmt.Errorf("fetching secrets: %w", err)
				}
				if err := secrets.Test(ctx); err != nil {
					return fmt.Errorf("connection test failed: %w", err)
				}
				inst.Secrets = secrets
				return nil
			})
			return nil
		})
	}
	_ = g.Wait()
}

func (rn *run) fetchRemote(ctx context.Context) {
	rn.eachSequential(ctx, StageFetchRemote, rn.order, func(ctx context.Context, inst *registry.Instance) error {
		remotes := make(map[string]any)
		for _, rt := range inst.Config.ResourceTypes() {
			remote, err := rt.FetchRemote(ctx, inst.Secrets)
			if err != nil {
				return fmt.Errorf("fetching remote state for resource %q: %w", rt.Name(), err)
			}
			remotes[rt.Name()] = remote
		}
		rn.remotes[inst.Ref] = remotes
		return nil
	})
}

// computeDiff runs every reconciliation map entry per instance. Pure
// computation; no suspension occurs inside this stage.
func (rn *run) computeDiff() {
	stageLog := rn.stageLogger(StageComputeDiff)
	for _, ref := range rn.order {
		if rn.isExcluded(ref) {
			continue
		}
		inst, _ := rn.reg.Get(ref)
		diffs := make(map[string]remotemap.Diff)
		payloads := make(map[string]map[string]any)
		failed := false

		for _, rt := range inst.Config.ResourceTypes() {
			entries := rt.Entries()
			remote := rn.remotes[ref][rt.Name()]
			diff, err := remotemap.Compare(entries, inst.Config, remote)
			if err != nil {
				rn.fail(StageComputeDiff, ref, err)
				failed = true
				break
			}
			if diff.Empty() {
				continue
			}
			payload, err := remotemap.RenderPayload(entries, diff, rt.BasePayload(remote))
			if err != nil {
				rn.fail(StageComputeDiff, ref, err)
				failed = true
				break
			}
			for _, change := range diff.Changes {
				stageLog.Debug("Attribute change detected",
					slog.String(log.PluginKey, ref.Plugin),
					slog.String(log.InstanceKey, ref.Instance),
					slog.String(log.ResourceKey, rt.Name()),
					slog.String(log.AttributeKey, change.Path),
					slog.Any("old", change.Old),
					slog.Any("new", change.New))
			}
			diffs[rt.Name()] = diff
			payloads[rt.Name()] = payload
		}

		if !failed {
			rn.diffs[ref] = diffs
			rn.payloads[ref] = payloads
		}
	}
}

// applyUpdates pushes instances with a non-empty diff, in dependency
// order. Each push is a single request per resource; attribute changes are
// batched into one payload.
func (rn *run) applyUpdates(ctx context.Context) {
	stageLog := rn.stageLogger(StageApplyUpdates)
	rn.eachSequential(ctx, StageApplyUpdates, rn.order, func(ctx context.Context, inst *registry.Instance) error {
		for _, rt := range inst.Config.ResourceTypes() {
			diff, ok := rn.diffs[inst.Ref][rt.Name()]
			if !ok || diff.Empty() {
				continue
			}
			if err := rt.Apply(ctx, inst.Secrets, rn.payloads[inst.Ref][rt.Name()]); err != nil {
				return fmt.Errorf("updating resource %q: %w", rt.Name(), err)
			}
			for _, change := range diff.Changes {
				stageLog.Info("Attribute updated",
					slog.String(log.PluginKey, inst.Ref.Plugin),
					slog.String(log.InstanceKey, inst.Ref.Instance),
					slog.String(log.ResourceKey, rt.Name()),
					slog.String(log.AttributeKey, change.Path),
					slog.Any("old", change.Old),
					slog.Any("new", change.New))
			}
			rn.result.Applied[inst.Ref] += len(diff.Changes)
		}
		return nil
	})
}

// deleteUnmanaged removes remote resources absent from the local
// declaration, in reverse dependency order so resources depended upon by
// other instances are not deleted while still referenced.
func (rn *run) deleteUnmanaged(ctx context.Context) {
	stageLog := rn.stageLogger(StageDeleteUnmanaged)
	rn.eachSequential(ctx, StageDeleteUnmanaged, depgraph.Reverse(rn.order), func(ctx context.Context, inst *registry.Instance) error {
		for _, rt := range inst.Config.ResourceTypes() {
			deleter, ok := rt.(plugin.Deleter)
			if !ok {
				continue
			}
			deleted, err := deleter.DeleteUnmanaged(ctx, inst.Secrets, rn.remotes[inst.Ref][rt.Name()])
			if err != nil {
				return fmt.Errorf("deleting unmanaged resources for %q: %w", rt.Name(), err)
			}
			if deleted > 0 {
				stageLog.Info("Deleted unmanaged resources",
					slog.String(log.PluginKey, inst.Ref.Plugin),
					slog.String(log.InstanceKey, inst.Ref.Instance),
					slog.String(log.ResourceKey, rt.Name()),
					slog.Int("deleted", deleted))
				rn.result.Deleted[inst.Ref] += deleted
			}
		}
		return nil
	})
}

// eachSequential walks refs in the given order, applying fn under the
// per-instance failure boundary.
func (rn *run) eachSequential(ctx context.Context, stage Stage, refs []plugin.InstanceRef, fn func(context.Context, *registry.Instance) error) {
	for _, ref := range refs {
		rn.instanceStep(ctx, stage, ref, fn)
	}
}

// instanceStep is the per-instance boundary: excluded instances are
// skipped, shutdown requests skip work not yet started, and both errors
// and panics from plugin code become per-instance failures rather than
// process crashes.
func (rn *run) instanceStep(ctx context.Context, stage Stage, ref plugin.InstanceRef, fn func(context.Context, *registry.Instance) error) {
	if rn.isExcluded(ref) {
		return
	}
	if ctx.Err() != nil {
		rn.skip(ref)
		return
	}
	inst, ok := rn.reg.Get(ref)
	if !ok {
		return
	}
	if err := safeCall(func() error { return fn(ctx, inst) }); err != nil {
		rn.stageLogger(stage).Error("Instance failed",
			slog.String(log.PluginKey, ref.Plugin),
			slog.String(log.InstanceKey, ref.Instance),
			log.Error(err))
		rn.fail(stage, ref, err)
	}
}

// safeCall converts a panic in plugin code into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected panic: %v", r)
		}
	}()
	return fn()
}

func (rn *run) fail(stage Stage, ref plugin.InstanceRef, err error) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if _, ok := rn.result.Failed[ref]; !ok {
		rn.result.Failed[ref] = &InstanceError{Ref: ref, Stage: stage, Err: err}
	}
	rn.excluded[ref] = true
}

func (rn *run) failPlugin(stage Stage, pluginName string, err error) {
	for _, ref := range rn.order {
		if ref.Plugin == pluginName {
			rn.fail(stage, ref, err)
		}
	}
}

func (rn *run) skip(ref plugin.InstanceRef) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.excluded[ref] {
		return
	}
	rn.excluded[ref] = true
	rn.result.Skipped = append(rn.result.Skipped, ref)
}

func (rn *run) skipPlugin(pluginName string) {
	for _, ref := range rn.order {
		if ref.Plugin == pluginName {
			rn.skip(ref)
		}
	}
}

func (rn *run) isExcluded(ref plugin.InstanceRef) bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.excluded[ref]
}

// pluginHook returns the pre-init render hook for a plugin, if its decoded
// configuration implements one. The hook runs once per plugin, not once
// per instance.
func (rn *run) pluginHook(name string) (plugin.PreInitRenderer, bool) {
	renderer, ok := rn.configs[name].(plugin.PreInitRenderer)
	return renderer, ok
}

func (rn *run) stageLogger(stage Stage) *slog.Logger {
	return rn.log.With(slog.String(log.StageKey, stage.String()))
}

// logSummary reports every skipped and failed instance and the final
// outcome unambiguously.
func (rn *run) logSummary() {
	for _, ref := range rn.result.Skipped {
		rn.log.Warn("Instance skipped: shutdown requested before its work started",
			slog.String(log.PluginKey, ref.Plugin),
			slog.String(log.InstanceKey, ref.Instance))
	}
	for _, ref := range rn.result.FailedRefs() {
		instErr := rn.result.Failed[ref]
		rn.log.Error("Instance failed",
			slog.String(log.PluginKey, ref.Plugin),
			slog.String(log.InstanceKey, ref.Instance),
			slog.String(log.StageKey, instErr.Stage.String()),
			log.Error(instErr.Err))
	}
	rn.log.Info("Run finished",
		slog.String("outcome", string(rn.result.Outcome())),
		slog.Int("changes_applied", rn.result.TotalApplied()),
		slog.Int("instances_failed", len(rn.result.Failed)),
		slog.Int("instances_skipped", len(rn.result.Skipped)),
		slog.Duration("elapsed", rn.result.Finished.Sub(rn.result.Started)))
}

func activePlugins(configs map[string]plugin.Config) []string {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
