package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrcode/glucocopilot/internal/models"
)

// Repository is the persistence surface the coordinator and dispatch packages
// depend on. Satisfied by *GormRepository.
type Repository interface {
	SaveForecasts(ctx context.Context, forecasts []models.Forecast) error
	RecentForecasts(ctx context.Context, sinceMillis int64) ([]models.Forecast, error)
	PruneForecastsOlderThan(ctx context.Context, cutoffMillis int64) error

	SaveTelemetry(ctx context.Context, samples []models.TelemetrySample) error
	RecentTelemetry(ctx context.Context, sinceMillis int64) ([]models.TelemetrySample, error)
	PruneInvalidTelemetry(ctx context.Context) error

	FindActionByIdempotencyKey(ctx context.Context, key string) (models.ActionCommand, bool, error)
	SaveAction(ctx context.Context, cmd models.ActionCommand) error
	CountSentActionsSince(ctx context.Context, sinceMillis int64, actionType models.ActionType) (int, error)
	LastSentAction(ctx context.Context, actionType models.ActionType) (models.ActionCommand, bool, error)

	SaveRuleExecution(ctx context.Context, exec models.RuleExecution) error
	LastTriggeredExecution(ctx context.Context, ruleID string) (models.RuleExecution, bool, error)

	SavePatternWindows(ctx context.Context, windows []models.PatternWindow) error
	CurrentPatternWindow(ctx context.Context, dayType models.DayType, hour int) (models.PatternWindow, bool, error)

	AppendAuditEvent(ctx context.Context, event models.AuditEvent) error
}

// GormRepository implements Repository over a GORM-managed sqlite database.
type GormRepository struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the sqlite database at path and migrates all row types.
func Open(path string) (*GormRepository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(
		&forecastRow{}, &telemetryRow{}, &actionRow{}, &ruleExecutionRow{},
		&patternWindowRow{}, &auditRow{},
	); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &GormRepository{db: db}, nil
}

func (r *GormRepository) SaveForecasts(ctx context.Context, forecasts []models.Forecast) error {
	rows := make([]forecastRow, 0, len(forecasts))
	for _, f := range forecasts {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		rows = append(rows, forecastRow{
			ID: f.ID, TsMillis: f.TsMillis, HorizonMinutes: f.HorizonMinutes,
			ValueMmol: f.ValueMmol, CILow: f.CILow, CIHigh: f.CIHigh, ModelVersion: f.ModelVersion,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *GormRepository) RecentForecasts(ctx context.Context, sinceMillis int64) ([]models.Forecast, error) {
	var rows []forecastRow
	if err := r.db.WithContext(ctx).Where("ts_millis >= ?", sinceMillis).Order("ts_millis asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Forecast, len(rows))
	for i, row := range rows {
		out[i] = models.Forecast{
			ID: row.ID, TsMillis: row.TsMillis, HorizonMinutes: row.HorizonMinutes,
			ValueMmol: row.ValueMmol, CILow: row.CILow, CIHigh: row.CIHigh, ModelVersion: row.ModelVersion,
		}
	}
	return out, nil
}

func (r *GormRepository) PruneForecastsOlderThan(ctx context.Context, cutoffMillis int64) error {
	return r.db.WithContext(ctx).Where("ts_millis < ?", cutoffMillis).Delete(&forecastRow{}).Error
}

func (r *GormRepository) SaveTelemetry(ctx context.Context, samples []models.TelemetrySample) error {
	rows := make([]telemetryRow, 0, len(samples))
	for _, s := range samples {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		var valueText *string
		if s.ValueText != nil {
			v := *s.ValueText
			valueText = &v
		}
		rows = append(rows, telemetryRow{
			ID: s.ID, TsMillis: s.TsMillis, Source: s.Source, Key: s.Key,
			ValueDouble: s.ValueDouble, ValueText: valueText, Unit: s.Unit, Quality: string(s.Quality),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *GormRepository) RecentTelemetry(ctx context.Context, sinceMillis int64) ([]models.TelemetrySample, error) {
	var rows []telemetryRow
	if err := r.db.WithContext(ctx).Where("ts_millis >= ?", sinceMillis).Order("ts_millis asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.TelemetrySample, len(rows))
	for i, row := range rows {
		var valueText *string
		if row.ValueText != nil {
			v := *row.ValueText
			valueText = &v
		}
		out[i] = models.TelemetrySample{
			ID: row.ID, TsMillis: row.TsMillis, Source: row.Source, Key: row.Key,
			ValueDouble: row.ValueDouble, ValueText: valueText, Unit: row.Unit, Quality: models.Quality(row.Quality),
		}
	}
	return out, nil
}

// PruneInvalidTelemetry removes rows with non-positive timestamps (step 7 of the cycle).
func (r *GormRepository) PruneInvalidTelemetry(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("ts_millis <= 0").Delete(&telemetryRow{}).Error
}

func (r *GormRepository) FindActionByIdempotencyKey(ctx context.Context, key string) (models.ActionCommand, bool, error) {
	var row actionRow
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return models.ActionCommand{}, false, nil
	}
	if err != nil {
		return models.ActionCommand{}, false, err
	}
	return actionRowToModel(row), true, nil
}

func (r *GormRepository) SaveAction(ctx context.Context, cmd models.ActionCommand) error {
	row := actionRow{
		ID: cmd.ID, IdempotencyKey: cmd.IdempotencyKey, Type: string(cmd.Type),
		ParamsJSON: marshalMap(cmd.Params), SafetyJSON: marshalMap(cmd.SafetySnapshot),
		Status: string(cmd.Status), Channel: cmd.Channel, FailureReason: cmd.FailureReason,
		TsMillis: cmd.TsMillis,
	}
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *GormRepository) CountSentActionsSince(ctx context.Context, sinceMillis int64, actionType models.ActionType) (int, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&actionRow{}).Where("ts_millis >= ? AND status = ?", sinceMillis, string(models.ActionSent))
	if actionType != "" {
		q = q.Where("type = ?", string(actionType))
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *GormRepository) LastSentAction(ctx context.Context, actionType models.ActionType) (models.ActionCommand, bool, error) {
	var row actionRow
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ?", string(actionType), string(models.ActionSent)).
		Order("ts_millis desc").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return models.ActionCommand{}, false, nil
	}
	if err != nil {
		return models.ActionCommand{}, false, err
	}
	return actionRowToModel(row), true, nil
}

func actionRowToModel(row actionRow) models.ActionCommand {
	return models.ActionCommand{
		ID: row.ID, IdempotencyKey: row.IdempotencyKey, Type: models.ActionType(row.Type),
		Params: unmarshalMap(row.ParamsJSON), SafetySnapshot: unmarshalMap(row.SafetyJSON),
		Status: models.ActionStatus(row.Status), Channel: row.Channel, FailureReason: row.FailureReason,
		TsMillis: row.TsMillis,
	}
}

func (r *GormRepository) SaveRuleExecution(ctx context.Context, exec models.RuleExecution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	row := ruleExecutionRow{
		ID: exec.ID, RuleID: exec.RuleID, TsMillis: exec.TsMillis,
		DecisionState: string(exec.DecisionState), ReasonsJSON: marshalStrings(exec.Reasons),
		IdempotencyKey: exec.IdempotencyKey,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *GormRepository) LastTriggeredExecution(ctx context.Context, ruleID string) (models.RuleExecution, bool, error) {
	var row ruleExecutionRow
	err := r.db.WithContext(ctx).
		Where("rule_id = ? AND decision_state = ?", ruleID, string(models.DecisionTriggered)).
		Order("ts_millis desc").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return models.RuleExecution{}, false, nil
	}
	if err != nil {
		return models.RuleExecution{}, false, err
	}
	return models.RuleExecution{
		ID: row.ID, RuleID: row.RuleID, TsMillis: row.TsMillis,
		DecisionState: models.DecisionState(row.DecisionState), Reasons: unmarshalStrings(row.ReasonsJSON),
		IdempotencyKey: row.IdempotencyKey,
	}, true, nil
}

func (r *GormRepository) SavePatternWindows(ctx context.Context, windows []models.PatternWindow) error {
	for _, w := range windows {
		row := patternWindowRow{
			DayType: string(w.DayType), Hour: w.Hour, SampleCount: w.SampleCount, ActiveDays: w.ActiveDays,
			LowRate: w.LowRate, HighRate: w.HighRate, RecommendedTargetMmol: w.RecommendedTargetMmol,
			IsRiskWindow: w.IsRiskWindow,
		}
		if err := r.db.WithContext(ctx).
			Where("day_type = ? AND hour = ?", row.DayType, row.Hour).
			Assign(row).
			FirstOrCreate(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *GormRepository) CurrentPatternWindow(ctx context.Context, dayType models.DayType, hour int) (models.PatternWindow, bool, error) {
	var row patternWindowRow
	err := r.db.WithContext(ctx).Where("day_type = ? AND hour = ?", string(dayType), hour).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return models.PatternWindow{}, false, nil
	}
	if err != nil {
		return models.PatternWindow{}, false, err
	}
	return models.PatternWindow{
		DayType: models.DayType(row.DayType), Hour: row.Hour, SampleCount: row.SampleCount,
		ActiveDays: row.ActiveDays, LowRate: row.LowRate, HighRate: row.HighRate,
		RecommendedTargetMmol: row.RecommendedTargetMmol, IsRiskWindow: row.IsRiskWindow,
	}, true, nil
}

func (r *GormRepository) AppendAuditEvent(ctx context.Context, event models.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	row := auditRow{
		ID: event.ID, TsMillis: event.TsMillis, Level: string(event.Level),
		Message: event.Message, MetadataJSON: marshalMap(event.Metadata),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}
