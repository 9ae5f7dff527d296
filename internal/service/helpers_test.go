package service

import (
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"earthworks-ledger/internal/cloud"
	"earthworks-ledger/internal/imaging"
	"earthworks-ledger/internal/model"
	"earthworks-ledger/internal/repository"
)

type harness struct {
	cloud    *cloud.Memory
	local    *repository.LocalStore
	settings *repository.SettingsRepository
	sync     *SyncService
	invoices *InvoiceService
	bench    *Workbench
	gate     *Gate
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "ledger.db"), io.Discard)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	quiet := log.New(io.Discard, "", 0)
	h := &harness{
		cloud:    cloud.NewMemory(),
		local:    repository.NewLocalStore(db, true, quiet),
		settings: repository.NewSettingsRepository(db),
	}
	h.sync = NewSyncService(h.cloud, h.local, h.settings, quiet)
	h.invoices = NewInvoiceService(h.cloud, h.local, imaging.NewNormalizer(), quiet)
	h.bench = NewWorkbench(h.sync, quiet)
	h.gate = NewGate(h.settings, bcrypt.MinCost)
	t.Cleanup(h.sync.Wait)
	return h
}

func partition(t *testing.T, cat model.Category, year, month int) model.Partition {
	t.Helper()
	p, err := model.NewPartition(cat, year, month)
	require.NoError(t, err)
	return p
}

func timeIn(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC)
}
