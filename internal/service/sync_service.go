package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"earthworks-ledger/internal/model"
	"earthworks-ledger/internal/repository"
)

// CloudStore is the hosted record store. Implementations report every
// failure as cloud.ErrUnavailable.
type CloudStore interface {
	LoadDocument(ctx context.Context, collection, id string) (json.RawMessage, bool, error)
	SaveDocument(ctx context.Context, collection, id string, data json.RawMessage) error
	QueryInvoices(ctx context.Context, month, year int) ([]model.Invoice, error)
	CreateInvoice(ctx context.Context, inv model.Invoice, payload []byte) (model.Invoice, error)
	DeleteInvoice(ctx context.Context, inv model.Invoice) error
}

// Source tells where a loaded record came from.
type Source string

const (
	SourceCloud    Source = "cloud"
	SourceLocal    Source = "local"
	SourceSkeleton Source = "skeleton"
)

// SaveResult reports which stores accepted a save.
type SaveResult struct {
	Local bool `json:"local"`
	Cloud bool `json:"cloud"`
}

const mirrorTimeout = 30 * time.Second

// SyncService loads from the cloud with a local fallback and saves to both.
// It never fails a caller because a store is unreachable.
type SyncService struct {
	cloud    CloudStore
	local    *repository.LocalStore
	settings *repository.SettingsRepository
	logger   *log.Logger

	mirrors sync.WaitGroup

	mu sync.Mutex
	// writes counts saves per partition key; a mirror started before a
	// save must not overwrite it.
	writes map[string]uint64
}

func NewSyncService(cloud CloudStore, local *repository.LocalStore, settings *repository.SettingsRepository, logger *log.Logger) *SyncService {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &SyncService{
		cloud:    cloud,
		local:    local,
		settings: settings,
		logger:   logger,
		writes:   make(map[string]uint64),
	}
}

// Load returns the document of p from the cloud when it holds a valid one,
// otherwise from the local store, otherwise the skeleton. The error is
// only set for categories that have no per-month document.
func (s *SyncService) Load(ctx context.Context, p model.Partition) (model.Document, Source, error) {
	if !p.Category.IsDocument() {
		return nil, "", fmt.Errorf("%w: %q has no document", model.ErrUnknownCategory, p.Category)
	}
	generation := s.generation(p)

	data, ok, err := s.cloud.LoadDocument(ctx, string(p.Category), p.DocID())
	switch {
	case err != nil:
		s.logger.Printf("[warn] %s: %v, using local store", p, err)
	case ok:
		doc, err := model.DecodeDocument(p.Category, data)
		if err != nil {
			s.logger.Printf("[warn] %s: cloud copy rejected: %v", p, err)
			break
		}
		s.mirror(p, model.Clone(doc), generation)
		s.applyTitles(ctx, doc)
		return doc, SourceCloud, nil
	}

	if doc, ok := s.local.Get(ctx, p); ok {
		s.applyTitles(ctx, doc)
		return doc, SourceLocal, nil
	}
	doc, err := model.Skeleton(p.Category)
	if err != nil {
		return nil, "", err
	}
	s.applyTitles(ctx, doc)
	return doc, SourceSkeleton, nil
}

// Save writes doc locally, then to the cloud. Failures are logged only.
func (s *SyncService) Save(ctx context.Context, p model.Partition, doc model.Document) SaveResult {
	var res SaveResult
	body, err := model.EncodeDocument(doc)
	if err != nil {
		s.logger.Printf("[error] %s: %v", p, err)
		return res
	}

	s.mu.Lock()
	s.writes[p.Key()]++
	s.mu.Unlock()

	if err := s.local.Put(ctx, p, doc); err != nil {
		s.logger.Printf("[error] local save %s: %v", p, err)
	} else {
		res.Local = true
	}
	if err := s.cloud.SaveDocument(ctx, string(p.Category), p.DocID(), body); err != nil {
		s.logger.Printf("[warn] cloud save %s skipped: %v", p, err)
	} else {
		res.Cloud = true
	}
	return res
}

func (s *SyncService) generation(p model.Partition) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[p.Key()]
}

// mirror copies a cloud document into the local store in the background.
func (s *SyncService) mirror(p model.Partition, doc model.Document, generation uint64) {
	s.mirrors.Add(1)
	go func() {
		defer s.mirrors.Done()
		if s.generation(p) != generation {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.local.Put(ctx, p, doc); err != nil {
			s.logger.Printf("[warn] mirror %s: %v", p, err)
		}
	}()
}

// Wait blocks until pending mirrors finish.
func (s *SyncService) Wait() {
	s.mirrors.Wait()
}

func (s *SyncService) applyTitles(ctx context.Context, doc model.Document) {
	tools, ok := doc.(*model.Tools)
	if !ok {
		return
	}
	titles, err := s.settings.ToolTitles(ctx)
	if err != nil {
		s.logger.Printf("[warn] tool titles: %v", err)
		return
	}
	tools.ApplyTitles(titles)
}

// PropagateToolTitle records title for position and rewrites it into every
// locally known tools partition. Partitions loaded later pick it up from
// the global record.
func (s *SyncService) PropagateToolTitle(ctx context.Context, position int, title string) error {
	if err := s.settings.SetToolTitle(ctx, position, title); err != nil {
		return err
	}
	partitions, err := s.local.Partitions(ctx, model.CategoryTools)
	if err != nil {
		return err
	}
	for _, p := range partitions {
		doc, ok := s.local.Get(ctx, p)
		if !ok {
			continue
		}
		if doc.(*model.Tools).Rename(position, title) {
			s.Save(ctx, p, doc)
		}
	}
	return nil
}
