package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/common"
	"github.com/ternarybob/profundo/internal/gate"
	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/orchestrator"
	"github.com/ternarybob/profundo/internal/services/chunker"
	"github.com/ternarybob/profundo/internal/services/extract"
	"github.com/ternarybob/profundo/internal/services/fetch"
	"github.com/ternarybob/profundo/internal/services/index"
	"github.com/ternarybob/profundo/internal/services/ingest"
	"github.com/ternarybob/profundo/internal/services/llm"
	"github.com/ternarybob/profundo/internal/services/planner"
	"github.com/ternarybob/profundo/internal/services/report"
	"github.com/ternarybob/profundo/internal/services/search"
	"github.com/ternarybob/profundo/internal/services/synthesis"
	badgerstore "github.com/ternarybob/profundo/internal/storage/badger"
)

// App wires all services together: storage, the call gate, providers
// and the research pipeline.
type App struct {
	Config       *common.Config
	Logger       arbor.ILogger
	Orchestrator *orchestrator.Orchestrator
	Sessions     interfaces.SessionStorage
	PDFExporter  *report.PDFExporter

	db         *badgerstore.DB
	llmService interfaces.LLMService
	searchSvc  *search.Service
}

// New builds the application. Every remote provider is wrapped by the
// gate before any service sees it.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := badgerstore.NewDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	cacheStorage := badgerstore.NewCacheStorage(db, logger)
	chunkStorage := badgerstore.NewChunkStorage(db, logger)
	sessionStorage := badgerstore.NewSessionStorage(db, logger)

	callGate := gate.NewGate(logger, cacheStorage, &config.Gate)

	rawLLM, err := llm.NewLLMService(config, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	gatedLLM := gate.NewGatedLLM(callGate, rawLLM, config.Gemini.Model)

	searchService, err := search.NewService(config, logger)
	if err != nil {
		rawLLM.Close()
		db.Close()
		return nil, err
	}
	gatedSearch := gate.NewGatedSearch(callGate, searchService)

	fetchService := fetch.NewService(&config.Fetch, logger)
	gatedFetch := gate.NewGatedFetch(callGate, fetchService)

	extractor := extract.NewService(logger)
	chunkerService := chunker.NewService(&config.Research, logger)
	vectorIndex := index.NewService(chunkStorage, gatedLLM, logger)

	plannerService := planner.NewService(gatedLLM, config.Research.MaxSubQueries, logger)
	ingestService := ingest.NewService(gatedSearch, gatedFetch, extractor, chunkerService, vectorIndex, gatedLLM, &config.Research, logger)
	synthesisService := synthesis.NewService(vectorIndex, gatedLLM, config.Research.TopK, logger)
	assembler := report.NewAssembler(logger)

	orch := orchestrator.New(plannerService, ingestService, synthesisService, assembler, sessionStorage, &config.Research, logger)

	return &App{
		Config:       config,
		Logger:       logger,
		Orchestrator: orch,
		Sessions:     sessionStorage,
		PDFExporter:  report.NewPDFExporter(logger),
		db:           db,
		llmService:   rawLLM,
		searchSvc:    searchService,
	}, nil
}

// Close releases clients and storage.
func (a *App) Close() {
	if a.llmService != nil {
		if err := a.llmService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}
	if a.searchSvc != nil {
		if err := a.searchSvc.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close search service")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
}
