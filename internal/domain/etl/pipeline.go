package etl

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunReport aggregates the per-object load outcomes and drop counts of one
// pipeline run.
type RunReport struct {
	RunID string

	Territories  LoadResult
	Users        LoadResult
	Accounts     LoadResult
	WorkTypes    LoadResult
	Resources    LoadResult
	Appointments LoadResult

	ResourcesDropped    int
	AppointmentsDropped int
	AppointmentsInvalid int
}

// Pipeline sequences the extract, transform, and load stages of one batch
// run. Both clients are injected; the pipeline holds no global state and
// performs every external call sequentially.
type Pipeline struct {
	src     EHRSource
	crm     CRMConnection
	loader  *Loader
	cfg     TransformConfig
	catalog map[string]WorkType
	logger  zerolog.Logger
}

func NewPipeline(src EHRSource, crm CRMConnection, cfg TransformConfig, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		src:     src,
		crm:     crm,
		loader:  NewLoader(crm, logger),
		cfg:     cfg,
		catalog: DefaultWorkTypes,
		logger:  logger,
	}
}

// Run executes one full sync for the organization. Independent objects
// load first; service resources wait for wave-1 User IDs; appointments
// wait for the rebuilt identifier maps. Per-record failures are absorbed
// by the loader and resolvers, so only errors outside those boundaries
// abort the run. Records already created stay in Salesforce on abort.
func (p *Pipeline) Run(ctx context.Context, orgID string) (*RunReport, error) {
	report := &RunReport{RunID: uuid.NewString()}
	logger := p.logger.With().Str("run_id", report.RunID).Str("org_id", orgID).Logger()

	// Extract.
	logger.Info().Msg("extract phase started")
	locations, err := ExtractLocations(ctx, p.src, orgID)
	if err != nil {
		return nil, err
	}
	providers, err := ExtractProviders(ctx, p.src, orgID)
	if err != nil {
		return nil, err
	}
	patients, err := ExtractPatients(ctx, p.src, orgID)
	if err != nil {
		return nil, err
	}
	appointments, err := ExtractAppointments(ctx, p.src, orgID)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("locations", len(locations)).
		Int("providers", len(providers)).
		Int("patients", len(patients)).
		Int("appointments", len(appointments)).
		Msg("extract phase complete")

	// Transform independent objects.
	territoryRecords := TerritoryRecords(locations, p.cfg)
	workTypeRecords := WorkTypeRecords(p.catalog)
	userRecords := UserRecords(providers, p.cfg)
	accountRecords := AccountRecords(patients)

	// Load wave 1: no interdependencies.
	logger.Info().Msg("load wave 1 started")
	report.Territories = p.loader.Load(ctx, ObjectServiceTerritory, territoryRecords)
	report.Users = p.loader.Load(ctx, ObjectUser, userRecords)
	report.Accounts = p.loader.Load(ctx, ObjectAccount, accountRecords)
	report.WorkTypes = p.loader.Load(ctx, ObjectWorkType, workTypeRecords)

	// Snapshot the identifier maps now that wave 1 is queryable.
	if _, err := BuildIDMaps(ctx, p.crm, logger); err != nil {
		return nil, fmt.Errorf("rebuild id maps after wave 1: %w", err)
	}

	// Wave 2: service resources link to the Users created in wave 1, keyed
	// by the email on each successful load record.
	userIDByEmail := make(map[string]string, len(report.Users.Successes))
	for _, s := range report.Users.Successes {
		if email, ok := s.Record["Email"].(string); ok {
			userIDByEmail[email] = s.ID
		}
	}

	resourceRecords, dropped := ResolveResources(ResourceRecords(providers, p.cfg), userIDByEmail)
	report.ResourcesDropped = dropped
	if dropped > 0 {
		logger.Warn().Int("dropped", dropped).
			Msg("skipping service resources whose user record failed to insert")
	}
	report.Resources = p.loader.Load(ctx, ObjectServiceResource, resourceRecords)

	// Rebuild the maps again: wave-3 resolution needs the wave-2 writes
	// along with everything already in Salesforce.
	maps, err := BuildIDMaps(ctx, p.crm, logger)
	if err != nil {
		return nil, fmt.Errorf("rebuild id maps after wave 2: %w", err)
	}

	// Wave 3: appointments. Normalization failures are skipped per record
	// and counted rather than aborting the run.
	appointmentRecords := make([]Record, 0, len(appointments))
	for _, a := range appointments {
		rec, err := AppointmentRecord(a, p.catalog)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				report.AppointmentsInvalid++
				logger.Warn().Str("appointment", verr.ID).Str("reason", verr.Reason).
					Msg("skipping invalid appointment")
				continue
			}
			return nil, err
		}
		appointmentRecords = append(appointmentRecords, rec)
	}

	resolvedAppointments, dropped := ResolveAppointments(appointmentRecords, maps)
	report.AppointmentsDropped = dropped
	if dropped > 0 {
		logger.Warn().Int("dropped", dropped).
			Msg("skipping service appointments with missing identifier mappings")
	}
	report.Appointments = p.loader.Load(ctx, ObjectServiceAppointment, resolvedAppointments)

	logger.Info().
		Int("territories", report.Territories.SuccessCount).
		Int("users", report.Users.SuccessCount).
		Int("accounts", report.Accounts.SuccessCount).
		Int("work_types", report.WorkTypes.SuccessCount).
		Int("resources", report.Resources.SuccessCount).
		Int("appointments", report.Appointments.SuccessCount).
		Msg("pipeline finished")
	return report, nil
}
