package manufacturer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msc-platform/ivr/pkg/common/kafka"
	"github.com/msc-platform/ivr/pkg/common/logger"
	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/msc-platform/ivr/pkg/esign"
	"github.com/msc-platform/ivr/pkg/observability/metrics"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	eventSource      = "ivr-service"
	defaultRole      = "First Party"
	maxLoggedWarning = 10
)

var (
	ErrMissingTemplate = errors.New("template_id, manufacturer or product_code required")
	ErrNoFacts         = errors.New("episode_id or data required")
)

// EpisodeSource is satisfied by *extraction.Extractor.
type EpisodeSource interface {
	ExtractEpisodeData(ctx context.Context, episodeID string) (models.FactMap, error)
	ClearCache(ctx context.Context, episodeID string) error
}

// Signer is satisfied by *esign.Client.
type Signer interface {
	CreateSubmission(ctx context.Context, templateID string, submitters []esign.Submitter) (*esign.Submission, error)
	TemplateFields(ctx context.Context, templateID string) ([]string, error)
}

type LogStore interface {
	SaveLog(ctx context.Context, entry *MappingLog) error
	RecentLogs(ctx context.Context, episodeID string, limit int) ([]MappingLog, error)
}

type MapRequest struct {
	EpisodeID      string                 `json:"episode_id"`
	TemplateID     string                 `json:"template_id"`
	Manufacturer   string                 `json:"manufacturer"`
	ProductCode    string                 `json:"product_code"`
	TemplateFields []string               `json:"template_fields"`
	Data           map[string]interface{} `json:"data"`
}

type SubmitRequest struct {
	MapRequest
	SubmitterEmail string `json:"submitter_email"`
	SubmitterName  string `json:"submitter_name"`
	SubmitterRole  string `json:"submitter_role"`
}

type SubmitResult struct {
	Assembly   *Assembly         `json:"assembly"`
	Submission *esign.Submission `json:"submission"`
}

// Service runs extraction, assembly and submission for one request at a time.
// Logs, events and the signer are optional.
type Service struct {
	assembler *Assembler
	episodes  EpisodeSource
	signer    Signer
	logs      LogStore
	events    kafka.Publisher
}

func NewService(assembler *Assembler, episodes EpisodeSource, signer Signer, logs LogStore, events kafka.Publisher) *Service {
	return &Service{assembler: assembler, episodes: episodes, signer: signer, logs: logs, events: events}
}

func (s *Service) Catalog() Catalog { return s.assembler.Catalog() }

// MapEpisode assembles the payload for one episode and template, with
// additional overriding extracted facts.
func (s *Service) MapEpisode(ctx context.Context, episodeID, templateID string, additional models.FactMap) (*Assembly, error) {
	return s.Map(ctx, MapRequest{EpisodeID: episodeID, TemplateID: templateID, Data: additional})
}

func (s *Service) Map(ctx context.Context, req MapRequest) (*Assembly, error) {
	started := time.Now()
	assembly, err := s.assemble(ctx, req)
	if err != nil {
		return nil, err
	}
	s.record(ctx, req.EpisodeID, assembly, time.Since(started), nil)
	s.publish(ctx, models.EventMappingCompleted, req.EpisodeID, assembly, nil)
	return assembly, nil
}

// Submit maps the request and creates an e-sign submission prefilled with the
// payload. Validation problems are reported on the assembly and do not block
// the submission.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if s.signer == nil {
		return nil, fmt.Errorf("e-sign service not configured")
	}
	started := time.Now()
	assembly, err := s.assemble(ctx, req.MapRequest)
	if err != nil {
		return nil, err
	}
	if assembly.TemplateID == "" {
		return nil, ErrMissingTemplate
	}

	role := req.SubmitterRole
	if role == "" {
		role = defaultRole
	}
	submission, err := s.signer.CreateSubmission(ctx, assembly.TemplateID, []esign.Submitter{{
		Role:   role,
		Email:  req.SubmitterEmail,
		Name:   req.SubmitterName,
		Fields: ToSubmissionFields(assembly.Payload),
	}})
	if err != nil {
		metrics.SubmissionFailed()
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"episode_id":  req.EpisodeID,
			"template_id": assembly.TemplateID,
		}).Error("Failed to create e-sign submission")
		return nil, err
	}
	metrics.SubmissionCreated()

	s.record(ctx, req.EpisodeID, assembly, time.Since(started), &submission.ID)
	s.publish(ctx, models.EventSubmissionCreated, req.EpisodeID, assembly, submission)
	return &SubmitResult{Assembly: assembly, Submission: submission}, nil
}

// ClearEpisodeCache drops the cached fact map of one episode.
func (s *Service) ClearEpisodeCache(ctx context.Context, episodeID string) error {
	if s.episodes == nil {
		return nil
	}
	return s.episodes.ClearCache(ctx, episodeID)
}

// History returns the latest mapping logs of an episode, newest first.
func (s *Service) History(ctx context.Context, episodeID string, limit int) ([]MappingLog, error) {
	if s.logs == nil {
		return []MappingLog{}, nil
	}
	return s.logs.RecentLogs(ctx, episodeID, limit)
}

func (s *Service) assemble(ctx context.Context, req MapRequest) (*Assembly, error) {
	if req.EpisodeID == "" && len(req.Data) == 0 {
		return nil, ErrNoFacts
	}

	facts := models.FactMap{}
	if req.EpisodeID != "" {
		if s.episodes == nil {
			return nil, fmt.Errorf("episode extraction not configured")
		}
		extracted, err := s.episodes.ExtractEpisodeData(ctx, req.EpisodeID)
		if err != nil {
			return nil, err
		}
		facts = extracted.Clone()
	}
	facts = facts.Merge(req.Data)

	m, err := s.resolve(req, facts)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return s.assembler.AssembleFor(m, facts, req.TemplateFields)
	}

	fields := req.TemplateFields
	if len(fields) == 0 && s.signer != nil {
		fetched, err := s.signer.TemplateFields(ctx, req.TemplateID)
		if err != nil {
			logger.Log.WithError(err).WithField("template_id", req.TemplateID).Warn("Could not fetch template fields, mapping without them")
		} else {
			fields = fetched
		}
	}
	return s.assembler.Assemble(req.TemplateID, facts, fields)
}

// resolve picks the manufacturer by template id, then name, then product
// code. A nil manufacturer with no error means an unknown template.
func (s *Service) resolve(req MapRequest, facts models.FactMap) (*Manufacturer, error) {
	cat := s.assembler.Catalog()
	if req.TemplateID != "" {
		if m, ok := cat.ByTemplateID(req.TemplateID); ok {
			return m, nil
		}
		return nil, nil
	}
	if req.Manufacturer != "" {
		if m, ok := cat.ByName(req.Manufacturer); ok {
			return m, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownManufacturer, req.Manufacturer)
	}

	code := req.ProductCode
	if code == "" {
		code = facts.String("product_code")
	}
	if code != "" {
		if m, ok := cat.ByProductCode(code); ok {
			return m, nil
		}
		return nil, fmt.Errorf("%w: product %s", ErrUnknownManufacturer, code)
	}
	if name := facts.String("manufacturer_name"); name != "" {
		if m, ok := cat.ByName(name); ok {
			return m, nil
		}
	}
	return nil, ErrMissingTemplate
}

func (s *Service) record(ctx context.Context, episodeID string, a *Assembly, elapsed time.Duration, submissionID *int64) {
	valid := a.Validation == nil || a.Validation.Valid
	metrics.MappingCompleted(valid)

	fields := logrus.Fields{
		"episode_id":   episodeID,
		"manufacturer": a.Manufacturer,
		"template_id":  a.TemplateID,
		"completeness": a.Completeness.Percentage,
		"valid":        valid,
		"duration_ms":  elapsed.Milliseconds(),
	}
	logger.Log.WithFields(fields).Info("IVR field mapping completed")

	if s.logs == nil {
		return
	}
	details := datatypes.JSONMap{
		"payload_fields": len(a.Payload),
	}
	if a.Validation != nil {
		details["critical_errors"] = a.Validation.CriticalErrors
		details["warnings"] = a.Validation.Warnings[:min(maxLoggedWarning, len(a.Validation.Warnings))]
	}
	if len(a.Matches) > 0 {
		matched := make(map[string]interface{}, len(a.Matches))
		for target, m := range a.Matches {
			matched[target] = map[string]interface{}{"field": m.Field, "match_type": m.MatchType, "score": m.Score}
		}
		details["fallback_matches"] = matched
	}

	entry := &MappingLog{
		EpisodeID:        episodeID,
		Manufacturer:     a.Manufacturer,
		TemplateID:       a.TemplateID,
		Valid:            valid,
		Completeness:     a.Completeness.Percentage,
		RequiredComplete: a.Completeness.RequiredPercentage,
		FieldsMapped:     len(a.Payload),
		FallbackMatches:  len(a.Matches),
		DurationMillis:   elapsed.Milliseconds(),
		SubmissionID:     submissionID,
		Details:          details,
	}
	if err := s.logs.SaveLog(ctx, entry); err != nil {
		logger.Log.WithError(err).WithFields(fields).Warn("Failed to store field mapping log")
	}
}

func (s *Service) publish(ctx context.Context, eventType, episodeID string, a *Assembly, submission *esign.Submission) {
	if s.events == nil {
		return
	}
	data := map[string]interface{}{
		"episode_id":   episodeID,
		"manufacturer": a.Manufacturer,
		"template_id":  a.TemplateID,
		"completeness": a.Completeness.Percentage,
	}
	if a.Validation != nil {
		data["valid"] = a.Validation.Valid
		data["critical_errors"] = len(a.Validation.CriticalErrors)
	}
	if submission != nil {
		data["submission_id"] = submission.ID
		data["embed_src"] = submission.EmbedSrc
	}
	if err := s.events.PublishEvent(ctx, eventType, eventSource, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("Failed to publish mapping event")
	}
}
