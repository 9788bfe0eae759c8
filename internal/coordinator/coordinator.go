// Package coordinator runs the automation cycle: ingest, predict, evaluate rules, dispatch.
// Grounded on the teacher's NightscoutService (sync-guarded ticker loop, fetchAndUpdate),
// generalized from "poll and display" to "poll, decide, and act" per SPEC_FULL.md §4.8.
package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mrcode/glucocopilot/internal/config"
	"github.com/mrcode/glucocopilot/internal/dispatch"
	"github.com/mrcode/glucocopilot/internal/models"
	"github.com/mrcode/glucocopilot/internal/nightscout"
	"github.com/mrcode/glucocopilot/internal/notify"
	"github.com/mrcode/glucocopilot/internal/pattern"
	"github.com/mrcode/glucocopilot/internal/predict"
	"github.com/mrcode/glucocopilot/internal/rules"
	"github.com/mrcode/glucocopilot/internal/sanitize"
	"github.com/mrcode/glucocopilot/internal/store"
	"github.com/mrcode/glucocopilot/internal/telemetry"
)

const globalStaleMaxMinutes = 20

// dispatchFailureAlertThreshold is the number of consecutive failed/undelivered dispatches
// that raises notify.KindDispatchFailing.
const dispatchFailureAlertThreshold = 3

// Coordinator sequences one automation cycle end to end. RunCycle holds a non-blocking
// try-lock: a trigger that arrives while a cycle is already running is dropped, audit-logged,
// never queued (SPEC_FULL.md §5).
type Coordinator struct {
	mu sync.Mutex

	Settings    *config.Settings
	Repo        store.Repository
	Nightscout  *nightscout.Client
	Dispatcher  *dispatch.Dispatcher
	Engine      predict.Engine
	EngineState *predict.EngineState
	Rules       rules.Engine
	Log         zerolog.Logger
	Metrics     *Metrics
	Notify      *notify.Manager

	consecutiveDispatchFailures int
}

// New builds a Coordinator from its dependencies.
func New(settings *config.Settings, repo store.Repository, ns *nightscout.Client, disp *dispatch.Dispatcher, engine predict.Engine, rulesEngine rules.Engine, log zerolog.Logger, metrics *Metrics, notifier *notify.Manager) *Coordinator {
	return &Coordinator{
		Settings:   settings,
		Repo:       repo,
		Nightscout: ns,
		Dispatcher: disp,
		Engine:     engine,
		Rules:      rulesEngine,
		Log:        log.With().Str("component", "coordinator").Logger(),
		Metrics:    metrics,
		Notify:     notifier,
	}
}

// RunCycle executes the full pipeline once, or skips if a cycle is already in flight.
func (c *Coordinator) RunCycle(ctx context.Context) error {
	if !c.mu.TryLock() {
		c.audit(ctx, time.Now().UnixMilli(), models.AuditWarn, "automation_cycle_skipped:already_running", nil)
		return nil
	}
	defer c.mu.Unlock()

	start := time.Now()
	outcome := "ok"
	defer func() {
		c.Metrics.CyclesTotal.WithLabelValues(outcome).Inc()
		c.Metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	now := time.Now().UnixMilli()

	// Step 1: bootstrap external integrations concurrently; a failure in one probe never
	// cancels the other.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Nightscout.GetStatus(gctx) })
	g.Go(func() error { return nil }) // cloud reachability probe: no cloud backend configured
	if err := g.Wait(); err != nil {
		c.audit(ctx, now, models.AuditWarn, "bootstrap_probe_failed", map[string]string{"error": err.Error()})
	}

	// Step 2: settings snapshot.
	settings := c.Settings.Clone()
	if !settings.IsConfigured() {
		outcome = "skipped"
		c.audit(ctx, now, models.AuditWarn, "automation_skipped:not_configured", nil)
		return nil
	}

	if settings.Safety.KillSwitch && c.Notify != nil {
		if err := c.Notify.Raise(notify.KindKillSwitchEngaged, ""); err != nil {
			c.Log.Warn().Err(err).Msg("notify_kill_switch_failed")
		}
	}

	// Step 3: configure the prediction engine's insulin profile; ISF/CR filled in after step 6.
	profile := predict.Profile{InsulinProfile: settings.InsulinProfile}

	lookbackDays := clipInt(settings.LookbackDays, 30, 730)
	sinceMillis := now - int64(lookbackDays)*24*3600*1000
	overlapMillis := int64(5 * 60 * 1000)

	// Step 4: ingestion of the whole lookback window, widened by a 5-minute overlap at its start.
	// Every cycle re-fetches that full window; no cursor from earlier cycles is kept.
	rawGlucose, err := c.Nightscout.GetEntries(ctx, time.UnixMilli(sinceMillis-overlapMillis), time.Time{})
	if err != nil {
		outcome = "error"
		c.audit(ctx, now, models.AuditError, "ingestion_failed", map[string]string{"error": err.Error()})
		return fmt.Errorf("ingest glucose: %w", err)
	}
	rawTherapy, err := c.Nightscout.GetTreatments(ctx, time.UnixMilli(sinceMillis-overlapMillis), time.Time{})
	if err != nil {
		outcome = "error"
		c.audit(ctx, now, models.AuditError, "ingestion_failed", map[string]string{"error": err.Error()})
		return fmt.Errorf("ingest treatments: %w", err)
	}

	// Step 5: import baseline predictions from exports — no exporter is wired yet.
	c.audit(ctx, now, models.AuditInfo, "baseline_import_skipped:not_configured", nil)

	sanitizedGlucose := sanitize.Glucose(rawGlucose)
	sanitizedTherapy := sanitize.Therapy(rawTherapy)

	// Step 6: recompute patterns and profile estimates over the clamped lookback window.
	patternWindows := pattern.Windows(sanitizedGlucose)
	profileEstimate := pattern.Estimate(sanitizedGlucose, sanitizedTherapy, lookbackDays)
	if err := c.Repo.SavePatternWindows(ctx, patternWindows); err != nil {
		c.Log.Warn().Err(err).Msg("save_pattern_windows_failed")
	}
	profile.ISF = profileEstimate.ISF
	profile.CR = profileEstimate.CR

	// Step 7: purge telemetry rows with invalid (<=0) timestamps.
	if err := c.Repo.PruneInvalidTelemetry(ctx); err != nil {
		c.Log.Warn().Err(err).Msg("prune_invalid_telemetry_failed")
	}

	// Step 8: recent glucose (last 72 samples) and therapy (24h).
	recentGlucose := lastN(sanitizedGlucose, 72)
	recentTherapy := filterSince(sanitizedTherapy, now-24*3600*1000)
	if len(recentGlucose) == 0 {
		outcome = "skipped"
		c.audit(ctx, now, models.AuditWarn, "automation_skipped:no_glucose_data", nil)
		return nil
	}

	// Step 9: telemetry snapshot.
	telemetrySamples, err := c.Repo.RecentTelemetry(ctx, now-6*3600*1000)
	if err != nil {
		c.Log.Warn().Err(err).Msg("recent_telemetry_failed")
	}
	localNow := time.UnixMilli(now)
	dayStart := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, localNow.Location()).UnixMilli()
	snapshot := telemetry.Snapshot(telemetrySamples, dayStart)
	cobGrams := sampleValue(snapshot, models.KeyCOBGrams)
	iobUnits := sampleValue(snapshot, models.KeyIOBUnits)

	// Step 10: effective base target.
	effectiveBaseTarget := settings.BaseTargetMmol
	if cobGrams >= 20 {
		effectiveBaseTarget = 4.2
	}
	effectiveBaseTarget = clipF(effectiveBaseTarget, 4.0, 10.0)

	// Step 11: predict locally; ensure horizon 30 is present. No cloud merge configured.
	if c.EngineState == nil {
		c.EngineState = predict.NewEngineState(recentGlucose[0].TsMillis, recentGlucose[0].ValueMmol)
	}
	forecasts, err := c.Engine.Predict(c.EngineState, now, recentGlucose, recentTherapy, profile)
	if err != nil {
		outcome = "error"
		c.audit(ctx, now, models.AuditError, "prediction_failed", map[string]string{"error": err.Error()})
		return fmt.Errorf("predict: %w", err)
	}
	forecasts = predict.EnsureHorizon30(forecasts, now)

	// Step 12: calibration-history errors from past forecasts joined to nearest glucose.
	pastForecasts, err := c.Repo.RecentForecasts(ctx, now-13*3600*1000)
	if err != nil {
		c.Log.Warn().Err(err).Msg("recent_forecasts_failed")
	}
	calibErrors := computeCalibrationErrors(pastForecasts, sanitizedGlucose, now)

	// Step 13: apply recent calibration bias per horizon.
	forecasts = predict.ApplyCalibrationBias(forecasts, calibErrors, settings.Calibration)
	c.audit(ctx, now, models.AuditInfo, "forecast_calibration_bias_applied", map[string]string{
		"samples": strconv.Itoa(len(calibErrors)),
	})

	// Step 14: apply COB/IOB activity bias.
	forecasts = predict.ApplyActivityBias(forecasts, cobGrams, iobUnits)
	c.audit(ctx, now, models.AuditInfo, "forecast_bias_applied", map[string]string{
		"cobGrams": fmt.Sprintf("%.1f", cobGrams),
		"iobUnits": fmt.Sprintf("%.2f", iobUnits),
	})

	// Step 15: persist forecasts; drop those older than 400 days.
	if err := c.Repo.SaveForecasts(ctx, forecasts); err != nil {
		c.Log.Warn().Err(err).Msg("save_forecasts_failed")
	}
	if err := c.Repo.PruneForecastsOlderThan(ctx, now-400*24*3600*1000); err != nil {
		c.Log.Warn().Err(err).Msg("prune_forecasts_failed")
	}
	for _, f := range forecasts {
		c.Metrics.ForecastHorizonMmol.WithLabelValues(strconv.Itoa(f.HorizonMinutes)).Set(f.ValueMmol)
	}

	// Step 16: derived safety inputs.
	staleMax := settings.EffectiveStaleMaxMinutes(globalStaleMaxMinutes)
	latestGlucose := sanitizedGlucose[len(sanitizedGlucose)-1]
	dataFresh := now-latestGlucose.TsMillis <= int64(staleMax)*60000

	var activeTempTargetMmol *float64
	if lastAction, found, err := c.Repo.LastSentAction(ctx, models.ActionTempTarget); err == nil && found {
		durMin, _ := strconv.ParseFloat(lastAction.Params["durationMinutes"], 64)
		if lastAction.TsMillis+int64(durMin*60000) >= now {
			target, _ := strconv.ParseFloat(lastAction.Params["targetMmol"], 64)
			activeTempTargetMmol = &target
		}
	}

	sensorBlocked := false
	for _, e := range sanitizedTherapy {
		if e.Kind == models.KindSensorState && now-e.TsMillis <= 30*60000 {
			// sanitizedTherapy is sorted by timestamp, so the latest event's state wins.
			blocked, _ := e.Get("blocked")
			sensorBlocked = blocked == "true"
		}
	}
	if sensorBlocked && c.Notify != nil {
		if err := c.Notify.Raise(notify.KindSensorBlocked, "last sensor_state reported blocked"); err != nil {
			c.Log.Warn().Err(err).Msg("notify_sensor_blocked_failed")
		}
	}

	// Step 17: current PatternWindow / ProfileEstimate segment.
	nowTime := time.UnixMilli(now).UTC()
	dayType := dayTypeOf(nowTime)
	hour := nowTime.Hour()
	var currentPW models.PatternWindow
	hasPW := false
	for _, w := range patternWindows {
		if w.DayType == dayType && w.Hour == hour {
			currentPW = w
			hasPW = true
			break
		}
	}
	segment, hasSeg := profileEstimate.SegmentFor(dayType, models.TimeSlotForHour(hour))

	// Step 18: persist the calculated UAM snapshot as telemetry.
	if c.EngineState != nil {
		uci := c.EngineState.LastUCI0
		sample := models.TelemetrySample{
			TsMillis: now, Source: "coordinator", Key: models.KeyUAMValue,
			ValueDouble: &uci, Quality: models.QualityOK,
		}
		if err := c.Repo.SaveTelemetry(ctx, []models.TelemetrySample{sample}); err != nil {
			c.Log.Warn().Err(err).Msg("save_uam_telemetry_failed")
		}
	}

	// Step 19: build rule context; evaluate the rule engine.
	actionsLast6h, err := c.Repo.CountSentActionsSince(ctx, now-6*3600*1000, "")
	if err != nil {
		c.Log.Warn().Err(err).Msg("count_sent_actions_failed")
	}
	ruleCtx := rules.Context{
		Now: now, Forecasts: forecasts, Pattern: currentPW, HasPattern: hasPW,
		Profile: profileEstimate, Segment: segment, HasSegment: hasSeg,
		EffectiveBaseTargetMmol: effectiveBaseTarget, DataFresh: dataFresh, SensorBlocked: sensorBlocked,
		ActiveTempTargetMmol: activeTempTargetMmol, ActionsLast6h: actionsLast6h, Safety: settings.Safety,
	}
	decisions := c.Rules.Evaluate(ruleCtx)

	// Steps 20-21: cooldown gating, base alignment, and dispatch.
	adaptiveTriggered := false
	for _, d := range decisions {
		d := d // local copy
		if d.State == models.DecisionTriggered && d.ActionProposal != nil {
			if rule, ok := c.Rules.RuleByID(d.RuleID); ok {
				cooldownMinutes := rule.CooldownMinutes()
				if lastExec, found, err := c.Repo.LastTriggeredExecution(ctx, d.RuleID); err == nil && found &&
					now-lastExec.TsMillis < int64(cooldownMinutes)*60000 {
					reason := fmt.Sprintf("rule_cooldown_active:%dm", cooldownMinutes)
					if d.RuleID == rules.AdaptiveTargetControllerID {
						reason = fmt.Sprintf("retarget_cooldown_%dm", cooldownMinutes)
					}
					d.State = models.DecisionBlocked
					d.Reasons = append(d.Reasons, reason)
					d.ActionProposal = nil
				}
			}
		}

		if d.RuleID == rules.AdaptiveTargetControllerID {
			c.audit(ctx, now, models.AuditInfo, "adaptive_controller_evaluated", map[string]string{"state": string(d.State)})
			if d.State == models.DecisionTriggered {
				c.audit(ctx, now, models.AuditInfo, "adaptive_controller_triggered", nil)
			} else {
				c.audit(ctx, now, models.AuditInfo, "adaptive_controller_blocked", map[string]string{"reasons": strings.Join(d.Reasons, ";")})
				c.audit(ctx, now, models.AuditInfo, "adaptive_controller_fallback_to_rules", nil)
			}
		}

		exec := models.RuleExecution{RuleID: d.RuleID, TsMillis: now, DecisionState: d.State, Reasons: d.Reasons}

		if d.State == models.DecisionTriggered && d.ActionProposal != nil {
			bucketMinutes := 30
			if d.RuleID == rules.AdaptiveTargetControllerID {
				if rule, ok := c.Rules.RuleByID(d.RuleID); ok {
					bucketMinutes = rule.CooldownMinutes()
				}
			} else if d.ActionProposal.Type == models.ActionTempTarget {
				if f60, ok := ruleCtx.ForecastAt(60); ok {
					proposed, _ := strconv.ParseFloat(d.ActionProposal.Params["targetMmol"], 64)
					aligned := proposed
					if drift := f60.ValueMmol - effectiveBaseTarget; absF(drift) >= 0.15 {
						aligned = float64(int64((proposed+clipF(-drift*0.35, -1.20, 1.20))/0.05+0.5)) * 0.05
						d.ActionProposal.Params["reason"] = d.ActionProposal.Params["reason"] + "|base_align_60m"
					}
					d.ActionProposal.Params["targetMmol"] = fmt.Sprintf("%.2f", clipF(aligned, 4.0, 10.0))
				}
			}

			idemKey := fmt.Sprintf("%s:%d", d.RuleID, now/(int64(bucketMinutes)*60000))
			exec.IdempotencyKey = idemKey

			cmd := models.ActionCommand{
				IdempotencyKey: idemKey,
				Type:           d.ActionProposal.Type,
				Params:         d.ActionProposal.Params,
				SafetySnapshot: map[string]string{
					"dataFresh":     strconv.FormatBool(dataFresh),
					"sensorBlocked": strconv.FormatBool(sensorBlocked),
					"killSwitch":    strconv.FormatBool(settings.Safety.KillSwitch),
				},
				TsMillis: now,
			}
			result, err := c.Dispatcher.Submit(ctx, cmd)
			if err != nil {
				c.Log.Warn().Err(err).Str("rule", d.RuleID).Msg("dispatch_failed")
			}
			c.auditDispatchResult(ctx, now, d.RuleID, cmd, result, err)
			c.trackDispatchOutcome(result.Delivered, err)
			c.Metrics.ActionsTotal.WithLabelValues(string(cmd.Type), strconv.FormatBool(result.Delivered)).Inc()
			if d.RuleID == rules.AdaptiveTargetControllerID {
				adaptiveTriggered = true
			}
		}

		if err := c.Repo.SaveRuleExecution(ctx, exec); err != nil {
			c.Log.Warn().Err(err).Msg("save_rule_execution_failed")
		}
	}

	// Step 22: keepalive — only when no adaptive decision triggered this cycle. Every skip
	// path is audited with its reason (Scenario S5 requires this for the kill-switch case).
	keepaliveSkipReason := ""
	switch {
	case adaptiveTriggered:
		keepaliveSkipReason = "adaptive_already_triggered"
	case settings.Safety.KillSwitch:
		keepaliveSkipReason = "kill_switch"
	case !dataFresh:
		keepaliveSkipReason = "stale_data"
	case sensorBlocked:
		keepaliveSkipReason = "sensor_blocked"
	}
	if keepaliveSkipReason != "" {
		c.audit(ctx, now, models.AuditInfo, "adaptive_keepalive_skipped", map[string]string{"reason": keepaliveSkipReason})
	} else {
		lastSent, found, err := c.Repo.LastSentAction(ctx, models.ActionTempTarget)
		dueForKeepalive := err == nil && (!found || now-lastSent.TsMillis >= 30*60000)
		if !dueForKeepalive {
			c.audit(ctx, now, models.AuditInfo, "adaptive_keepalive_skipped", map[string]string{"reason": "not_due"})
		} else {
			curTarget := effectiveBaseTarget
			if activeTempTargetMmol != nil {
				curTarget = *activeTempTargetMmol
			}
			if absF(curTarget-effectiveBaseTarget) < 0.05 {
				c.audit(ctx, now, models.AuditInfo, "adaptive_keepalive_skipped", map[string]string{"reason": "target_within_tolerance"})
			} else {
				idemKey := fmt.Sprintf("keepalive:%d", now/(30*60000))
				cmd := models.ActionCommand{
					IdempotencyKey: idemKey,
					Type:           models.ActionTempTarget,
					Params: map[string]string{
						"targetMmol":      fmt.Sprintf("%.2f", effectiveBaseTarget),
						"durationMinutes": "30",
						"reason":          "keepalive",
					},
					TsMillis: now,
				}
				result, err := c.Dispatcher.Submit(ctx, cmd)
				if err != nil {
					c.Log.Warn().Err(err).Msg("keepalive_dispatch_failed")
				}
				if result.Delivered {
					c.audit(ctx, now, models.AuditInfo, "adaptive_keepalive_sent", map[string]string{"channel": result.Channel})
				} else {
					reason := result.FailureReason
					if err != nil {
						reason = err.Error()
					}
					c.audit(ctx, now, models.AuditWarn, "adaptive_keepalive_failed", map[string]string{"reason": reason})
				}
				c.trackDispatchOutcome(result.Delivered, err)
				c.Metrics.ActionsTotal.WithLabelValues(string(cmd.Type), strconv.FormatBool(result.Delivered)).Inc()
			}
		}
	}

	c.audit(ctx, now, models.AuditInfo, "automation_cycle_completed", map[string]string{"outcome": outcome})
	return nil
}

func (c *Coordinator) audit(ctx context.Context, now int64, level models.AuditLevel, message string, metadata map[string]string) {
	fields := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		fields[k] = v
	}
	switch level {
	case models.AuditError:
		c.Log.Error().Fields(fields).Msg(message)
	case models.AuditWarn:
		c.Log.Warn().Fields(fields).Msg(message)
	default:
		c.Log.Info().Fields(fields).Msg(message)
	}
	event := models.AuditEvent{TsMillis: now, Level: level, Message: message, Metadata: metadata}
	if err := c.Repo.AppendAuditEvent(ctx, event); err != nil {
		c.Log.Warn().Err(err).Msg("append_audit_event_failed")
	}
}

// auditDispatchResult emits the canonical audit events for a Dispatcher.Submit outcome:
// action_deduplicated on idempotent replay, temp_target_sent / temp_target_sent_local_fallback
// on successful delivery (split by which channel delivered it), action_delivery_failed otherwise.
func (c *Coordinator) auditDispatchResult(ctx context.Context, now int64, ruleID string, cmd models.ActionCommand, result dispatch.SubmitResult, err error) {
	meta := map[string]string{"rule": ruleID, "actionType": string(cmd.Type), "idempotencyKey": cmd.IdempotencyKey}

	if result.Deduped {
		meta["channel"] = result.Channel
		c.audit(ctx, now, models.AuditInfo, "action_deduplicated", meta)
		return
	}
	if err != nil {
		meta["error"] = err.Error()
		c.audit(ctx, now, models.AuditError, "action_delivery_failed", meta)
		return
	}
	if !result.Delivered {
		meta["reason"] = result.FailureReason
		c.audit(ctx, now, models.AuditWarn, "action_delivery_failed", meta)
		return
	}

	meta["channel"] = result.Channel
	if cmd.Type == models.ActionTempTarget {
		if result.Channel == "nightscout_primary" {
			c.audit(ctx, now, models.AuditInfo, "temp_target_sent", meta)
		} else {
			c.audit(ctx, now, models.AuditInfo, "temp_target_sent_local_fallback", meta)
		}
		return
	}
	c.audit(ctx, now, models.AuditInfo, "action_sent", meta)
}

// trackDispatchOutcome maintains the consecutive-failure counter behind notify.KindDispatchFailing:
// any failed Submit call or a successful one that did not actually deliver counts as a failure.
func (c *Coordinator) trackDispatchOutcome(delivered bool, err error) {
	if err != nil || !delivered {
		c.consecutiveDispatchFailures++
		if c.consecutiveDispatchFailures >= dispatchFailureAlertThreshold && c.Notify != nil {
			detail := fmt.Sprintf("%d consecutive dispatch failures", c.consecutiveDispatchFailures)
			if notifyErr := c.Notify.Raise(notify.KindDispatchFailing, detail); notifyErr != nil {
				c.Log.Warn().Err(notifyErr).Msg("notify_dispatch_failing_failed")
			}
		}
		return
	}
	c.consecutiveDispatchFailures = 0
	if c.Notify != nil {
		c.Notify.ClearAlertState(notify.KindDispatchFailing)
	}
}

func lastN(points []models.GlucosePoint, n int) []models.GlucosePoint {
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}

func filterSince(events []models.TherapyEvent, sinceMillis int64) []models.TherapyEvent {
	out := make([]models.TherapyEvent, 0, len(events))
	for _, e := range events {
		if e.TsMillis >= sinceMillis {
			out = append(out, e)
		}
	}
	return out
}

func sampleValue(snapshot map[string]models.TelemetrySample, key string) float64 {
	s, ok := snapshot[key]
	if !ok || s.ValueDouble == nil {
		return 0
	}
	return *s.ValueDouble
}

// computeCalibrationErrors joins past forecasts to the nearest glucose reading within +-2
// minutes of (forecast time + horizon), keeping only observations aged between 2 minutes and
// 12 hours (SPEC_FULL.md §4.8 step 12).
func computeCalibrationErrors(forecasts []models.Forecast, glucose []models.GlucosePoint, now int64) []predict.CalibrationError {
	const toleranceMillis = 2 * 60 * 1000
	var out []predict.CalibrationError
	for _, f := range forecasts {
		targetTs := f.TsMillis + int64(f.HorizonMinutes)*60000
		ageMinutes := float64(now-f.TsMillis) / 60000.0
		if ageMinutes < 2 || ageMinutes > 12*60 {
			continue
		}
		actual, ok := nearestGlucoseWithin(glucose, targetTs, toleranceMillis)
		if !ok {
			continue
		}
		out = append(out, predict.CalibrationError{
			HorizonMinutes: f.HorizonMinutes,
			ErrorMmol:      actual.ValueMmol - f.ValueMmol,
			AgeMinutes:     ageMinutes,
		})
	}
	return out
}

func nearestGlucoseWithin(points []models.GlucosePoint, targetTs, toleranceMillis int64) (models.GlucosePoint, bool) {
	best := models.GlucosePoint{}
	bestDiff := toleranceMillis + 1
	found := false
	for _, p := range points {
		diff := p.TsMillis - targetTs
		if diff < 0 {
			diff = -diff
		}
		if diff <= toleranceMillis && diff < bestDiff {
			bestDiff = diff
			best = p
			found = true
		}
	}
	return best, found
}

func dayTypeOf(t time.Time) models.DayType {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return models.DayWeekend
	default:
		return models.DayWeekday
	}
}

func clipInt(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func clipF(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
