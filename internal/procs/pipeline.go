package procs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"log"
	"sync"
)

// Settlement is the single value a Pipeline run produces, once, on
// completion. Resolves spec.md §9's Open Question ("result as a shared
// record"): rather than a mutable field callers poll, Run returns this
// value once the run settles. The onSuccess/onFailure callbacks take no
// arguments.
type Settlement struct {
	Truncated bool
	Checksum  string
}

// Pipeline chains a list of Handles into one execution: stdout of stage i
// feeds stdin of stage i+1, the terminal stage's stdout is teed into a
// checksum accumulator and the sink, and the whole run settles exactly
// once.
type Pipeline struct {
	stages        []*Handle
	onSuccess     func()
	onFailure     func()
	onStageFailed func(stageTitle string)
}

// New constructs a Pipeline over already-constructed (not yet started)
// stages. onSuccess/onFailure are called exactly once, after every stage
// has reached a terminal state.
func New(stages []*Handle, onSuccess, onFailure func()) *Pipeline {
	return &Pipeline{stages: stages, onSuccess: onSuccess, onFailure: onFailure}
}

// OnStageFailed registers a hook invoked, possibly more than once, each
// time an individual stage's Outcome is not clean — before the overall
// pipeline-level onFailure fires. Used by the gateway to attribute
// per-stage failure metrics by title.
func (p *Pipeline) OnStageFailed(f func(stageTitle string)) {
	p.onStageFailed = f
}

// Run starts every stage, wires stdout-to-stdin between consecutive
// stages, tees the terminal stage's stdout into sink and an MD5
// accumulator, and blocks until the run settles.
//
// ctx supplies the "attached transport socket" spec.md §4.3 describes: if
// ctx is canceled before settlement (the caller's HTTP request context is
// canceled on client disconnect), the head stage is killed and the
// failure cascades downstream through stdin EOF — there is no separate
// pause/resume dance here because a single io.Copy into
// io.MultiWriter(sink, hasher) already satisfies "the digest sees every
// byte the sink sees, including the first chunk" (spec.md §9).
func (p *Pipeline) Run(ctx context.Context, sink io.Writer) Settlement {
	for _, s := range p.stages {
		if err := s.Start(); err != nil {
			log.Printf("pipeline: stage %q failed to start: %v", s.Title, err)
			// Stages that did start must still be torn down.
			for _, started := range p.stages {
				started.Kill()
			}
			return p.settle(false, "")
		}
	}

	outcomes := make([]Outcome, len(p.stages))
	var wg sync.WaitGroup
	wg.Add(len(p.stages))

	for i, s := range p.stages {
		go func(i int, s *Handle) {
			defer wg.Done()
			outcome := <-s.Done()
			outcomes[i] = outcome
			if !outcome.ok() {
				log.Printf("pipeline: stage %q failed: exit=%d signal=%q err=%v", s.Title, outcome.ExitCode, outcome.Signal, outcome.Err)
				if p.onStageFailed != nil {
					p.onStageFailed(s.Title)
				}
				if i+1 < len(p.stages) {
					p.stages[i+1].Kill()
				}
			}
		}(i, s)
	}

	watchdogDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if len(p.stages) > 0 {
				p.stages[0].Kill()
			}
		case <-watchdogDone:
		}
	}()

	p.wireStages()

	hasher := md5.New()
	terminal := p.stages[len(p.stages)-1]
	copyDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.MultiWriter(sink, hasher), terminal.Stdout())
		copyDone <- err
	}()
	<-copyDone

	wg.Wait()
	close(watchdogDone)

	success := true
	for _, o := range outcomes {
		if !o.ok() {
			success = false
			break
		}
	}

	if !success {
		return p.settle(false, "")
	}
	return p.settle(true, hex.EncodeToString(hasher.Sum(nil)))
}

// wireStages pipes stage[i].Stdout() into stage[i+1].Stdin() for every
// non-terminal stage, closing the downstream stdin once the upstream
// stdout is exhausted so EOF cascades through the chain.
func (p *Pipeline) wireStages() {
	for i := 0; i+1 < len(p.stages); i++ {
		upstream := p.stages[i]
		downstream := p.stages[i+1]
		go func(upstream, downstream *Handle) {
			_, _ = io.Copy(downstream.Stdin(), upstream.Stdout())
			_ = downstream.Stdin().Close()
		}(upstream, downstream)
	}
}

func (p *Pipeline) settle(success bool, checksum string) Settlement {
	if success {
		if p.onSuccess != nil {
			p.onSuccess()
		}
		return Settlement{Truncated: false, Checksum: checksum}
	}

	if p.onFailure != nil {
		p.onFailure()
	}
	return Settlement{Truncated: true, Checksum: ""}
}
