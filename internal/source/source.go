package source

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/oncall-api/internal/models"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
)

// FileSource reads schedule and override documents from JSON files on disk.
type FileSource struct {
	schedulePath  string
	overridesPath string
	defaultOffset *time.Location
	logger        *zap.Logger
}

// NewFileSource builds a source rooted at the given paths. defaultOffset is
// a "+05:30"-style string applied when a layer's own offset cannot be parsed.
func NewFileSource(schedulePath, overridesPath, defaultOffset string, logger *zap.Logger) *FileSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := parseOffset(defaultOffset)
	if err != nil {
		logger.Warn("invalid default offset, using +05:30", zap.String("offset", defaultOffset))
		loc = time.FixedZone("UTC+05:30", 5*3600+30*60)
	}
	return &FileSource{
		schedulePath:  schedulePath,
		overridesPath: overridesPath,
		defaultOffset: loc,
		logger:        logger,
	}
}

type rawLayer struct {
	Name               string   `json:"name"`
	Start              string   `json:"start"`
	End                string   `json:"end"`
	Hours              int      `json:"hours"`
	RotationPeriodDays int      `json:"rotationPeriodDays"`
	Members            []string `json:"members"`
}

type rawDocument struct {
	Weekday map[string]rawLayer `json:"weekday"`
	Weekend map[string]rawLayer `json:"weekend"`
}

// LoadSchedule parses the schedule file into a ScheduleDocument. Layers that
// fail validation are skipped and logged; they are configuration errors local
// to the layer, not fatal to the load.
func (s *FileSource) LoadSchedule() (*models.ScheduleDocument, error) {
	data, err := os.ReadFile(s.schedulePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSourceUnavailable.Code, appErrors.ErrSourceUnavailable.Status, "read schedule source")
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSourceUnavailable.Code, appErrors.ErrSourceUnavailable.Status, "decode schedule source")
	}

	doc := &models.ScheduleDocument{}
	doc.Weekday = s.buildGroup(raw.Weekday, models.KindWeekday)
	doc.Weekend = s.buildGroup(raw.Weekend, models.KindWeekend)
	return doc, nil
}

func (s *FileSource) buildGroup(group map[string]rawLayer, kind models.LayerKind) []models.Layer {
	layers := make([]models.Layer, 0, len(group))
	for key, rl := range group {
		layer, err := s.buildLayer(key, rl, kind)
		if err != nil {
			s.logger.Warn("skipping layer",
				zap.String("layer", key),
				zap.String("kind", kind.String()),
				zap.Error(err),
			)
			continue
		}
		layers = append(layers, layer)
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i].Key < layers[j].Key })
	return layers
}

func (s *FileSource) buildLayer(key string, rl rawLayer, kind models.LayerKind) (models.Layer, error) {
	if len(rl.Members) == 0 {
		return models.Layer{}, appErrors.Clone(appErrors.ErrLayerConfig, fmt.Sprintf("layer %s has no members", key))
	}

	start, err := s.parseInstant(rl.Start, key)
	if err != nil {
		return models.Layer{}, err
	}
	end, err := s.parseInstant(rl.End, key)
	if err != nil {
		return models.Layer{}, err
	}

	return models.Layer{
		Key:                key,
		Name:               rl.Name,
		Kind:               kind,
		Start:              start,
		End:                end,
		Hours:              rl.Hours,
		RotationPeriodDays: rl.RotationPeriodDays,
		Members:            append([]string(nil), rl.Members...),
	}, nil
}

// parseInstant accepts an ISO-8601 instant with embedded offset. A malformed
// or missing offset degrades to the source's default offset, logged rather
// than silent.
func (s *FileSource) parseInstant(raw, layerKey string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, s.defaultOffset); err == nil {
		s.logger.Warn("layer instant missing offset, applying default",
			zap.String("layer", layerKey),
			zap.String("instant", raw),
		)
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", raw, s.defaultOffset); err == nil {
		s.logger.Warn("layer instant missing offset, applying default",
			zap.String("layer", layerKey),
			zap.String("instant", raw),
		)
		return t, nil
	}
	return time.Time{}, appErrors.Clone(appErrors.ErrLayerConfig, fmt.Sprintf("layer %s has unparseable instant %q", layerKey, raw))
}

var structuredDateKey = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type legacyOverride struct {
	Person         string `json:"person"`
	Reason         string `json:"reason"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	OriginalPerson string `json:"originalPerson"`
	Timestamp      int64  `json:"timestamp"`
}

// LoadOverrides reads the override file and normalizes both supported key
// formats into one structured OverrideSet. Structured entries win when a
// legacy entry targets the same date and layer.
func (s *FileSource) LoadOverrides() (*models.OverrideSet, error) {
	set := models.NewOverrideSet()
	if s.overridesPath == "" {
		return set, nil
	}

	data, err := os.ReadFile(s.overridesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrSourceUnavailable.Code, appErrors.ErrSourceUnavailable.Status, "read override source")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSourceUnavailable.Code, appErrors.ErrSourceUnavailable.Status, "decode override source")
	}

	// Legacy entries first so structured ones overwrite on collision.
	for key, value := range raw {
		if structuredDateKey.MatchString(key) {
			continue
		}
		ov, err := parseLegacyOverride(key, value)
		if err != nil {
			s.logger.Warn("skipping legacy override", zap.String("key", key), zap.Error(err))
			continue
		}
		set.Put(ov)
	}

	for key, value := range raw {
		if !structuredDateKey.MatchString(key) {
			continue
		}
		var layers map[string]string
		if err := json.Unmarshal(value, &layers); err != nil {
			s.logger.Warn("skipping override entry", zap.String("date", key), zap.Error(err))
			continue
		}
		for layerKey, person := range layers {
			set.Put(models.Override{
				ID:        uuid.NewString(),
				Date:      key,
				LayerKey:  layerKey,
				Person:    person,
				CreatedAt: time.Now().UTC(),
			})
		}
	}

	return set, nil
}

// parseLegacyOverride decodes the deprecated "<locale date string>-<layerKey>"
// format, e.g. "Mon Sep 29 2025-layer2".
func parseLegacyOverride(key string, value json.RawMessage) (models.Override, error) {
	idx := strings.LastIndex(key, "-")
	if idx <= 0 || idx == len(key)-1 {
		return models.Override{}, fmt.Errorf("malformed legacy key %q", key)
	}
	datePart := key[:idx]
	layerKey := key[idx+1:]

	parsed, err := parseLocaleDate(datePart)
	if err != nil {
		return models.Override{}, err
	}

	var legacy legacyOverride
	if err := json.Unmarshal(value, &legacy); err != nil {
		return models.Override{}, fmt.Errorf("decode legacy override: %w", err)
	}
	if legacy.Person == "" {
		return models.Override{}, fmt.Errorf("legacy override %q has no person", key)
	}

	ov := models.Override{
		ID:       uuid.NewString(),
		Date:     parsed.Format("2006-01-02"),
		LayerKey: layerKey,
		Person:   legacy.Person,
		Reason:   legacy.Reason,
	}
	if legacy.StartTime != "" {
		ov.StartTime = &legacy.StartTime
	}
	if legacy.EndTime != "" {
		ov.EndTime = &legacy.EndTime
	}
	if legacy.OriginalPerson != "" {
		ov.OriginalPerson = &legacy.OriginalPerson
	}
	if legacy.Timestamp > 0 {
		ov.CreatedAt = time.UnixMilli(legacy.Timestamp).UTC()
	} else {
		ov.CreatedAt = time.Now().UTC()
	}
	return ov, nil
}

func parseLocaleDate(raw string) (time.Time, error) {
	for _, layout := range []string{"Mon Jan 02 2006", "Mon Jan 2 2006", "January 2, 2006", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable legacy date %q", raw)
}

// parseOffset converts "+05:30" / "-08:00" into a fixed zone.
func parseOffset(raw string) (*time.Location, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty offset")
	}
	sign := 1
	switch raw[0] {
	case '+':
		raw = raw[1:]
	case '-':
		sign = -1
		raw = raw[1:]
	}
	parts := strings.SplitN(raw, ":", 2)
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("bad offset hours: %w", err)
	}
	minutes := 0
	if len(parts) == 2 {
		if minutes, err = strconv.Atoi(parts[1]); err != nil {
			return nil, fmt.Errorf("bad offset minutes: %w", err)
		}
	}
	secs := sign * (hours*3600 + minutes*60)
	name := fmt.Sprintf("UTC%+03d:%02d", sign*hours, minutes)
	return time.FixedZone(name, secs), nil
}
