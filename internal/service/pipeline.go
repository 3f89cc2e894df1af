package service

import (
	"context"
	"log/slog"
)

// Pipeline runs the full ingest, enrich, analyze sequence. Used by the run
// command's scheduler loop.
type Pipeline struct {
	ingest  *IngestService
	enrich  *EnrichService
	analyze *AnalyzeService
	sources map[string]string
	logger  *slog.Logger
}

func NewPipeline(
	ingest *IngestService,
	enrich *EnrichService,
	analyze *AnalyzeService,
	sources map[string]string,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		ingest:  ingest,
		enrich:  enrich,
		analyze: analyze,
		sources: sources,
		logger:  logger.With("component", "pipeline"),
	}
}

// Run executes one full pass. Stage failures are logged; only context
// cancellation stops the pass early. Each unit of work persists atomically,
// so interruption between units is always safe.
func (p *Pipeline) Run(ctx context.Context) error {
	counts, err := p.ingest.FetchAll(ctx, p.sources, "")
	if err != nil {
		return err
	}

	newArticles := 0
	for _, n := range counts {
		newArticles += n
	}

	enriched, err := p.enrich.EnrichMissing(ctx, 0, nil)
	if err != nil {
		return err
	}

	analyzed := 0
	if p.analyze != nil {
		results, err := p.analyze.AnalyzeUnprocessed(ctx, 0, nil)
		if err != nil {
			return err
		}
		analyzed = len(results)
	}

	p.logger.Info("pipeline pass complete",
		"new", newArticles,
		"enriched", enriched,
		"analyzed", analyzed,
	)
	return nil
}
