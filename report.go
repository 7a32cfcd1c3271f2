package reuse

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/outofforest/reuse/pattern"
	"github.com/outofforest/reuse/scope"
	"github.com/outofforest/reuse/types"
)

// Report is the result of the analysis.
type Report struct {
	BlockShift  uint8
	SampleMask  uint64
	SampleValue uint64

	Stats       Stats
	Images      []ImageReport
	ScopeErrors []scope.ErrorCount
}

// ImageReport stores the results collected for one image.
type ImageReport struct {
	Image        uint16
	Instructions []InstructionReport
	Scopes       []ScopeReport
}

// InstructionReport stores the results collected for a memory instruction.
type InstructionReport struct {
	ID         uint32
	Accesses   uint64
	ColdMisses uint64
	Patterns   []PatternReport
}

// PatternReport stores the distribution of reuse distances of one pattern.
type PatternReport struct {
	Source  types.Source
	Carrier types.Carrier
	Kind    pattern.Kind
	Total   uint64
	Bins    []pattern.Bin
}

// ScopeReport stores the footprints of the scope.
type ScopeReport struct {
	ID        uint32
	Total     uint64
	Footprint []pattern.Bin
}

// Instruction returns the report of the instruction.
func (r *Report) Instruction(key types.InstructionKey) (InstructionReport, bool) {
	for _, img := range r.Images {
		if img.Image != key.Image {
			continue
		}
		for _, inst := range img.Instructions {
			if inst.ID == key.ID {
				return inst, true
			}
		}
	}
	return InstructionReport{}, false
}

// Scope returns the report of the scope.
func (r *Report) Scope(key types.ScopeKey) (ScopeReport, bool) {
	for _, img := range r.Images {
		if img.Image != key.Image {
			continue
		}
		for _, s := range img.Scopes {
			if s.ID == key.ID {
				return s, true
			}
		}
	}
	return ScopeReport{}, false
}

// Merge merges reports produced by independent sessions.
func Merge(reports ...*Report) (*Report, error) {
	if len(reports) == 0 {
		return nil, errors.New("no reports to merge")
	}

	config := Config{
		BlockShift:  reports[0].BlockShift,
		SampleMask:  reports[0].SampleMask,
		SampleValue: reports[0].SampleValue,
	}
	var stats Stats
	patterns := pattern.NewAggregator()
	scopeErrors := map[scope.ErrorKey]uint64{}

	for i, r := range reports {
		if r.BlockShift != config.BlockShift || r.SampleMask != config.SampleMask ||
			r.SampleValue != config.SampleValue {
			return nil, errors.Errorf("report %d has been produced with different block configuration", i)
		}

		stats.add(r.Stats)
		for _, img := range r.Images {
			for _, instReport := range img.Instructions {
				inst := patterns.Instruction(types.InstructionKey{Image: img.Image, ID: instReport.ID})
				inst.Accesses += instReport.Accesses
				inst.ColdMisses += instReport.ColdMisses
				for _, p := range instReport.Patterns {
					d := inst.Insert(p.Source, p.Carrier)
					for _, b := range p.Bins {
						d.Add(b.Distance, b.Count)
					}
				}
			}
			for _, s := range img.Scopes {
				d := patterns.Footprint(types.ScopeKey{Image: img.Image, ID: s.ID})
				for _, b := range s.Footprint {
					d.Add(b.Distance, b.Count)
				}
			}
		}
		for _, e := range r.ScopeErrors {
			scopeErrors[e.ErrorKey] += e.Count
		}
	}

	report := buildReport(config, stats, patterns)
	report.ScopeErrors = make([]scope.ErrorCount, 0, len(scopeErrors))
	for key, count := range scopeErrors {
		report.ScopeErrors = append(report.ScopeErrors, scope.ErrorCount{ErrorKey: key, Count: count})
	}
	scope.SortErrorCounts(report.ScopeErrors)
	return report, nil
}

// WriteText writes the report in text format. Distributions are compressed.
func (r *Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%d 0x%x 0x%x\n", r.BlockShift, r.SampleMask, r.SampleValue)
	fmt.Fprintf(bw, "%d\n", len(r.Images))
	for _, img := range r.Images {
		fmt.Fprintf(bw, "image %d\n", img.Image)

		fmt.Fprintf(bw, "scopes %d\n", len(img.Scopes))
		for _, s := range img.Scopes {
			fmt.Fprintf(bw, "%d:", s.ID)
			writeBins(bw, s.Footprint)
			fmt.Fprintln(bw)
		}

		fmt.Fprintf(bw, "instructions %d\n", len(img.Instructions))
		for _, inst := range img.Instructions {
			fmt.Fprintf(bw, "%d %d %d %d\n", inst.ID, inst.Accesses, inst.ColdMisses, len(inst.Patterns))
			for _, p := range inst.Patterns {
				fmt.Fprintf(bw, "  %s %d %d %d %d %d:", sourceKindName(p.Source.Kind), p.Source.Image, p.Source.ID,
					p.Carrier.Image, p.Carrier.Scope, p.Carrier.Iteration)
				writeBins(bw, p.Bins)
				fmt.Fprintln(bw)
			}
		}
	}

	fmt.Fprintf(bw, "errors %d %d\n", r.Stats.ScopeErrors, len(r.ScopeErrors))
	for _, e := range r.ScopeErrors {
		fmt.Fprintf(bw, "%s %s %d %d %d\n", e.Kind, e.Event, e.Image, e.Scope, e.Count)
	}

	return errors.WithStack(bw.Flush())
}

func writeBins(w io.Writer, bins []pattern.Bin) {
	d := pattern.Distribution{}
	for _, b := range bins {
		d.Add(b.Distance, b.Count)
	}
	compressed := d.Compress()
	fmt.Fprintf(w, " %d %d", d.Total(), len(compressed))
	for _, b := range compressed {
		fmt.Fprintf(w, " %d %d", b.Distance, b.Count)
	}
}

func sourceKindName(kind types.SourceKind) string {
	switch kind {
	case types.SourceInstruction:
		return "inst"
	case types.SourceScope:
		return "scope"
	default:
		return "none"
	}
}

func newReport(config Config, stats Stats, patterns *pattern.Aggregator, diagnostics *scope.Diagnostics) *Report {
	report := buildReport(config, stats, patterns)
	report.ScopeErrors = diagnostics.Histogram()
	return report
}

func buildReport(config Config, stats Stats, patterns *pattern.Aggregator) *Report {
	images := map[uint16]*ImageReport{}
	image := func(id uint16) *ImageReport {
		img, exists := images[id]
		if !exists {
			img = &ImageReport{Image: id}
			images[id] = img
		}
		return img
	}

	for key, inst := range patterns.Instructions() {
		img := image(key.Image)
		instReport := InstructionReport{
			ID:         key.ID,
			Accesses:   inst.Accesses,
			ColdMisses: inst.ColdMisses,
			Patterns:   make([]PatternReport, 0, len(inst.Patterns())),
		}
		for _, p := range inst.Patterns() {
			bins := p.Distribution.Bins()
			instReport.Patterns = append(instReport.Patterns, PatternReport{
				Source:  p.Key.Source,
				Carrier: p.Key.Carrier,
				Kind:    p.Distribution.Kind(),
				Total:   lo.SumBy(bins, func(b pattern.Bin) uint64 { return b.Count }),
				Bins:    bins,
			})
		}
		sort.Slice(instReport.Patterns, func(i, j int) bool {
			return lessPattern(instReport.Patterns[i], instReport.Patterns[j])
		})
		img.Instructions = append(img.Instructions, instReport)
	}

	for key, d := range patterns.Footprints() {
		img := image(key.Image)
		bins := d.Bins()
		img.Scopes = append(img.Scopes, ScopeReport{
			ID:        key.ID,
			Total:     lo.SumBy(bins, func(b pattern.Bin) uint64 { return b.Count }),
			Footprint: bins,
		})
	}

	imageIDs := lo.Keys(images)
	sort.Slice(imageIDs, func(i, j int) bool { return imageIDs[i] < imageIDs[j] })

	report := &Report{
		BlockShift:  config.BlockShift,
		SampleMask:  config.SampleMask,
		SampleValue: config.SampleValue,
		Stats:       stats,
		Images:      make([]ImageReport, 0, len(imageIDs)),
	}
	for _, id := range imageIDs {
		img := images[id]
		sort.Slice(img.Instructions, func(i, j int) bool { return img.Instructions[i].ID < img.Instructions[j].ID })
		sort.Slice(img.Scopes, func(i, j int) bool { return img.Scopes[i].ID < img.Scopes[j].ID })
		report.Images = append(report.Images, *img)
	}
	return report
}

// lessPattern orders patterns by the number of reuses, most frequent first.
func lessPattern(a, b PatternReport) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	if a.Source != b.Source {
		if a.Source.Image != b.Source.Image {
			return a.Source.Image < b.Source.Image
		}
		if a.Source.Kind != b.Source.Kind {
			return a.Source.Kind < b.Source.Kind
		}
		return a.Source.ID < b.Source.ID
	}
	if a.Carrier.Image != b.Carrier.Image {
		return a.Carrier.Image < b.Carrier.Image
	}
	if a.Carrier.Scope != b.Carrier.Scope {
		return a.Carrier.Scope < b.Carrier.Scope
	}
	return a.Carrier.Iteration < b.Carrier.Iteration
}
