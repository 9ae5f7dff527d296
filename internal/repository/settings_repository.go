package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"earthworks-ledger/internal/model"
)

const (
	SettingPassphraseHash = "passphrase_hash"
	SettingToolTitles     = "tools_titles_global"
)

// SettingsRepository keeps process-wide values in the settings table.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the value of name and whether it is set.
func (r *SettingsRepository) Get(ctx context.Context, name string) (string, bool, error) {
	var s model.Setting
	err := r.db.WithContext(ctx).Where("name = ?", name).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", name, err)
	}
	return s.Value, true, nil
}

func (r *SettingsRepository) Set(ctx context.Context, name, value string) error {
	s := model.Setting{Name: name, Value: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
	if err != nil {
		return fmt.Errorf("set setting %s: %w", name, err)
	}
	return nil
}

// ToolTitles returns the global tool table titles by position (1-based).
// Positions never renamed are absent.
func (r *SettingsRepository) ToolTitles(ctx context.Context) (map[int]string, error) {
	raw, ok, err := r.Get(ctx, SettingToolTitles)
	if err != nil || !ok {
		return map[int]string{}, err
	}
	var stored map[string]string
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return map[int]string{}, fmt.Errorf("decode tool titles: %w", err)
	}
	titles := make(map[int]string, len(stored))
	for key, title := range stored {
		pos, err := strconv.Atoi(strings.TrimPrefix(key, "table-"))
		if err != nil || pos < 1 || pos > model.ToolTableCount {
			continue
		}
		titles[pos] = title
	}
	return titles, nil
}

// SetToolTitle records the title of position.
func (r *SettingsRepository) SetToolTitle(ctx context.Context, position int, title string) error {
	if position < 1 || position > model.ToolTableCount {
		return fmt.Errorf("tool table position %d out of range", position)
	}
	if strings.TrimSpace(title) == "" {
		return model.ErrBlankTitle
	}
	titles, err := r.ToolTitles(ctx)
	if err != nil {
		// An unreadable record is replaced.
		titles = map[int]string{}
	}
	titles[position] = title
	stored := make(map[string]string, len(titles))
	for pos, t := range titles {
		stored["table-"+strconv.Itoa(pos)] = t
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode tool titles: %w", err)
	}
	return r.Set(ctx, SettingToolTitles, string(data))
}
