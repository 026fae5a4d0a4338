// Package planner implements the Plan Builder: a pure function from a
// validated query.Query to an ordered Stage pipeline plan.
package planner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/arlojanssen/refstream/internal/query"
)

// ToolPaths names the three external executables the Plan Builder
// invokes. Configurable (rather than hardcoded) so the same plan logic
// runs against whatever alignment-toolkit/duplicate-marker/variant-caller
// triplet is on PATH in a given deployment.
type ToolPaths struct {
	AlignmentToolkit string // e.g. "samtools"
	DuplicateMarker  string // e.g. "bamsormadup" / "biobambam2"
	VariantCaller    string // e.g. "bcftools"
}

// Stage is one step of a PipelinePlan: an executable, its argv, and an
// optional private working directory.
type Stage struct {
	Argv []string
	Dir  string
}

// Plan is the ordered list of Stages needed to satisfy one Query.
// Invariants (spec.md §3): length 1-4, exactly one terminal stage,
// VCF-producing plans end in the variant caller, multi-file plans begin
// with a merge stage carrying a private Dir.
type Plan struct {
	Stages []Stage
	// TempDir is set when the plan requires a private temp directory
	// (multi-file merges write scratch files there). Empty means no
	// temp directory is needed.
	TempDir string
}

func outputFlag(format query.Format) string {
	switch format {
	case query.CRAM:
		return "-C"
	case query.BAM, query.VCF:
		return "-b"
	default: // SAM
		return ""
	}
}

// Build translates a validated Query into a Plan. makeTempDir creates a
// fresh, uniquely named scratch directory under the configured temp base
// and returns its path; it is only invoked for multi-file queries.
func Build(q query.Query, tools ToolPaths, makeTempDir func() (string, error)) (Plan, error) {
	if err := q.Validate(); err != nil {
		return Plan{}, err
	}

	format := q.EffectiveFormat()

	if len(q.Files) == 1 {
		return buildSingleFile(q, format, tools)
	}
	return buildMultiFile(q, format, tools, makeTempDir)
}

func buildSingleFile(q query.Query, format query.Format, tools ToolPaths) (Plan, error) {
	argv := []string{tools.AlignmentToolkit, "view", "-h"}
	if flag := outputFlag(format); flag != "" {
		argv = append(argv, flag)
	}

	path := q.Files[0].Path
	if path == "" {
		path = "-"
	}
	argv = append(argv, path)
	argv = append(argv, q.Regions...)

	stages := []Stage{{Argv: argv}}

	if format == query.VCF {
		vcfArgv := []string{tools.VariantCaller, "-c", "-f", q.Reference}
		if len(q.Regions) == 1 {
			vcfArgv = append(vcfArgv, "-r", q.Regions[0])
		}
		stages = append(stages, Stage{Argv: vcfArgv})
	}

	return Plan{Stages: stages}, nil
}

func buildMultiFile(q query.Query, format query.Format, tools ToolPaths, makeTempDir func() (string, error)) (Plan, error) {
	mergeDir, err := makeTempDir()
	if err != nil {
		return Plan{}, fmt.Errorf("planner: creating merge temp dir: %w", err)
	}

	mergeArgv := []string{tools.AlignmentToolkit, "merge", "-u"}
	for _, r := range q.Regions {
		mergeArgv = append(mergeArgv, "-R", r)
	}
	mergeArgv = append(mergeArgv, "-")
	for _, f := range q.Files {
		mergeArgv = append(mergeArgv, f.Path)
	}

	markdupTmp := filepath.Join(mergeDir, "markdup.tmp")
	markdupArgv := []string{
		tools.DuplicateMarker,
		"level=0",
		"verbose=0",
		"resetdupflag=1",
		"tmpfile=" + markdupTmp,
		"M=" + os.DevNull,
	}

	viewArgv := []string{tools.AlignmentToolkit, "view", "-h"}
	if flag := outputFlag(format); flag != "" {
		viewArgv = append(viewArgv, flag)
	}
	viewArgv = append(viewArgv, "-")

	stages := []Stage{
		{Argv: mergeArgv, Dir: mergeDir},
		{Argv: markdupArgv},
		{Argv: viewArgv},
	}

	if format == query.VCF {
		vcfArgv := []string{tools.VariantCaller, "-c", "-f", q.Reference}
		stages = append(stages, Stage{Argv: vcfArgv})
	}

	return Plan{Stages: stages, TempDir: mergeDir}, nil
}
