// Package missions implements dispatch and field execution: mission
// creation against verified incidents, the linear status chain, live
// tracking while en route and the final mission report.
package missions

import (
	"context"
	"errors"
	"strings"

	"aegis-ecc/config"
	"aegis-ecc/core/apperr"
	"aegis-ecc/core/identity"
	"aegis-ecc/core/incidents"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

const (
	ActionCreated         = "MISSION_CREATED"
	ActionAdvanced        = "MISSION_STATUS_CHANGED"
	ActionMemberAssigned  = "MISSION_MEMBER_ASSIGNED"
	ActionReportSubmitted = "MISSION_REPORT_SUBMITTED"

	entityMission = "MISSION"
)

type Service struct {
	missions     store.MissionsStore
	incidents    store.IncidentsStore
	applications store.ApplicationsStore
	users        store.UsersStore
	cfg          *config.AppConfig
	logger       *utils.Logger
}

func NewService(missions store.MissionsStore, incidentsStore store.IncidentsStore, applications store.ApplicationsStore, users store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) *Service {
	return &Service{
		missions:     missions,
		incidents:    incidentsStore,
		applications: applications,
		users:        users,
		cfg:          cfg,
		logger:       logger,
	}
}

type CreateInput struct {
	IncidentID  int64
	LeaderID    int64
	AgencyID    *int64
	MissionType string
	Priority    string
}

// Create dispatches a mission for a verified incident. The incident must
// hold VERIFIED status, carry no other active mission, and the leader must
// be an approved volunteer. The mission row, both initial log entries, the
// leader assignment and the audit entry commit atomically.
func (s *Service) Create(ctx context.Context, actor identity.Actor, in CreateInput) (*store.Mission, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	if in.LeaderID <= 0 {
		return nil, apperr.LeaderRequired()
	}
	inc, err := s.incidents.GetIncident(ctx, in.IncidentID)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, apperr.IncidentNotFound()
	}
	if inc.Status != incidents.StatusVerified {
		return nil, apperr.IncidentNotVerified()
	}
	active, err := s.missions.FindActiveMissionByIncident(ctx, in.IncidentID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperr.MissionAlreadyActive()
	}
	if err := s.requireApprovedVolunteer(ctx, in.LeaderID); err != nil {
		return nil, err
	}
	m := &store.Mission{
		IncidentID:  in.IncidentID,
		CreatedBy:   actor.UserID,
		AgencyID:    in.AgencyID,
		MissionType: strings.TrimSpace(in.MissionType),
		Priority:    strings.ToUpper(strings.TrimSpace(in.Priority)),
		Status:      StatusAssigned,
	}
	leader := &store.MissionAssignment{
		AssignedTo: in.LeaderID,
		AssignedBy: actor.UserID,
		Role:       RoleLeader,
	}
	logs := []store.MissionLog{
		{ActorID: actor.UserID, Action: LogCreated, Note: "Mission created from verified incident."},
		{ActorID: actor.UserID, Action: LogAssigned, Note: "Leader assigned to mission."},
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionCreated,
		EntityType: entityMission,
		Meta:       map[string]any{"incident_id": in.IncidentID, "leader_id": in.LeaderID},
	}
	if _, err := s.missions.CreateMission(ctx, m, leader, logs, audit); err != nil {
		return nil, err
	}
	s.logger.Printf("mission %d dispatched for incident %d, leader %d", m.ID, in.IncidentID, in.LeaderID)
	return m, nil
}

func (s *Service) Get(ctx context.Context, actor identity.Actor, id int64) (*store.Mission, error) {
	m, err := s.missions.GetMission(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.MissionNotFound()
	}
	if actor.Role == identity.RoleCivilian {
		return nil, apperr.Forbidden()
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, actor identity.Actor, filter store.MissionFilter) ([]store.Mission, error) {
	if actor.Role == identity.RoleCivilian {
		return nil, apperr.Forbidden()
	}
	// Volunteers only see missions they are assigned to.
	if actor.IsVolunteer() {
		filter.AssignedTo = actor.UserID
	}
	return s.missions.ListMissions(ctx, filter)
}

// Advance moves the mission one step along the chain. Only the assigned
// leader or an administrator may advance; the target must be the immediate
// successor of the current status.
func (s *Service) Advance(ctx context.Context, actor identity.Actor, id int64, to, note string) (*store.Mission, error) {
	m, err := s.missions.GetMission(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.MissionNotFound()
	}
	if !ValidStatus(to) {
		return nil, apperr.Validation("Unknown mission status.")
	}
	if err := s.requireLeaderOrAdmin(ctx, actor, id); err != nil {
		return nil, err
	}
	if Next(m.Status) != to {
		return nil, apperr.InvalidMissionTransition(m.Status, to)
	}
	// Each transition is logged under the status it reached, so the log
	// reads as the mission's lifecycle: CREATED, ASSIGNED, ACCEPTED, ...
	log := &store.MissionLog{ActorID: actor.UserID, Action: to, Note: strings.TrimSpace(note)}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionAdvanced,
		EntityType: entityMission,
		Meta:       map[string]any{"from": m.Status, "to": to},
	}
	updated, err := s.missions.AdvanceMission(ctx, id, m.Status, to, log, audit)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Conflict()
	}
	if err != nil {
		return nil, err
	}
	s.logger.Printf("mission %d advanced %s -> %s by user %d", id, m.Status, to, actor.UserID)
	return updated, nil
}

// AssignMember adds a volunteer to the mission crew.
func (s *Service) AssignMember(ctx context.Context, actor identity.Actor, missionID, userID int64, role string) (*store.MissionAssignment, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return nil, apperr.AssignmentRoleRequired()
	}
	if !ValidAssignmentRole(role) {
		return nil, apperr.Validation("Unknown assignment role.")
	}
	m, err := s.missions.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.MissionNotFound()
	}
	if role == RoleLeader {
		existing, err := s.missions.GetLeader(ctx, missionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperr.Conflict()
		}
	}
	if err := s.requireApprovedVolunteer(ctx, userID); err != nil {
		return nil, err
	}
	a := &store.MissionAssignment{
		MissionID:  missionID,
		AssignedTo: userID,
		AssignedBy: actor.UserID,
		Role:       role,
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionMemberAssigned,
		EntityType: entityMission,
		Meta:       map[string]any{"user_id": userID, "role": role},
	}
	if _, err := s.missions.AddAssignment(ctx, a, audit); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) ListAssignments(ctx context.Context, actor identity.Actor, missionID int64) ([]store.MissionAssignment, error) {
	if _, err := s.Get(ctx, actor, missionID); err != nil {
		return nil, err
	}
	return s.missions.ListAssignments(ctx, missionID)
}

func (s *Service) ListLogs(ctx context.Context, actor identity.Actor, missionID int64) ([]store.MissionLog, error) {
	if _, err := s.Get(ctx, actor, missionID); err != nil {
		return nil, err
	}
	return s.missions.ListLogs(ctx, missionID)
}

// RecordTracking stores a position sample. Only assigned crew may report,
// and only while the mission is EN_ROUTE.
func (s *Service) RecordTracking(ctx context.Context, actor identity.Actor, missionID int64, lat, lng float64) (*store.MissionTracking, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, apperr.Validation("Location coordinates are out of range.")
	}
	m, err := s.missions.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.MissionNotFound()
	}
	if !actor.IsAdmin() {
		assigned, err := s.isAssigned(ctx, actor.UserID, missionID)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, apperr.Forbidden()
		}
	}
	if m.Status != StatusEnRoute {
		return nil, apperr.TrackingNotEnRoute(m.Status)
	}
	t := &store.MissionTracking{
		MissionID:   missionID,
		VolunteerID: actor.UserID,
		Latitude:    lat,
		Longitude:   lng,
	}
	if _, err := s.missions.InsertTracking(ctx, t); err != nil {
		// The guarded insert failed the EN_ROUTE check: the mission moved
		// between our read and the write.
		if errors.Is(err, store.ErrConflict) {
			current, gerr := s.missions.GetMission(ctx, missionID)
			if gerr == nil && current != nil {
				return nil, apperr.TrackingNotEnRoute(current.Status)
			}
			return nil, apperr.TrackingNotEnRoute(m.Status)
		}
		return nil, err
	}
	return t, nil
}

func (s *Service) ListTracking(ctx context.Context, actor identity.Actor, missionID int64) ([]store.MissionTracking, error) {
	if _, err := s.Get(ctx, actor, missionID); err != nil {
		return nil, err
	}
	return s.missions.ListTracking(ctx, missionID, s.cfg.Missions.TrackingListLimit)
}

type ReportInput struct {
	Summary        string
	ActionsTaken   string
	ResourcesUsed  string
	Casualties     int
	PropertyDamage string
}

// SubmitReport files the single final report for a completed mission.
func (s *Service) SubmitReport(ctx context.Context, actor identity.Actor, missionID int64, in ReportInput) (*store.MissionReport, error) {
	summary := strings.TrimSpace(in.Summary)
	if summary == "" {
		return nil, apperr.Validation("A report summary is required.")
	}
	if in.Casualties < 0 {
		return nil, apperr.Validation("Casualty count cannot be negative.")
	}
	m, err := s.missions.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.MissionNotFound()
	}
	if err := s.requireLeaderOrAdmin(ctx, actor, missionID); err != nil {
		return nil, err
	}
	if m.Status != StatusCompleted {
		return nil, apperr.MissionNotCompleted(m.Status)
	}
	existing, err := s.missions.GetReport(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.ReportAlreadyExists()
	}
	damage := strings.TrimSpace(in.PropertyDamage)
	if damage == "" {
		damage = "None"
	}
	r := &store.MissionReport{
		MissionID:      missionID,
		Summary:        summary,
		ActionsTaken:   strings.TrimSpace(in.ActionsTaken),
		ResourcesUsed:  strings.TrimSpace(in.ResourcesUsed),
		Casualties:     in.Casualties,
		PropertyDamage: damage,
		SubmittedBy:    actor.UserID,
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionReportSubmitted,
		EntityType: entityMission,
	}
	if _, err := s.missions.CreateReport(ctx, r, audit); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.ReportAlreadyExists()
		}
		return nil, err
	}
	s.logger.Printf("mission %d report filed by user %d", missionID, actor.UserID)
	return r, nil
}

func (s *Service) GetReport(ctx context.Context, actor identity.Actor, missionID int64) (*store.MissionReport, error) {
	if _, err := s.Get(ctx, actor, missionID); err != nil {
		return nil, err
	}
	r, err := s.missions.GetReport(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.New(apperr.KindNotFound, "REPORT_NOT_FOUND", "No report has been filed for this mission.")
	}
	return r, nil
}

func (s *Service) requireApprovedVolunteer(ctx context.Context, userID int64) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil || !u.Active {
		return apperr.UserNotFound()
	}
	approved, err := s.applications.HasApprovedApplication(ctx, userID)
	if err != nil {
		return err
	}
	if !approved {
		return apperr.NotApprovedVolunteer()
	}
	return nil
}

func (s *Service) requireLeaderOrAdmin(ctx context.Context, actor identity.Actor, missionID int64) error {
	if actor.IsAdmin() {
		return nil
	}
	leader, err := s.missions.GetLeader(ctx, missionID)
	if err != nil {
		return err
	}
	if leader == nil || leader.AssignedTo != actor.UserID {
		return apperr.TransitionNotAuthorized()
	}
	return nil
}

func (s *Service) isAssigned(ctx context.Context, userID, missionID int64) (bool, error) {
	assignments, err := s.missions.ListAssignments(ctx, missionID)
	if err != nil {
		return false, err
	}
	for _, a := range assignments {
		if a.AssignedTo == userID {
			return true, nil
		}
	}
	return false, nil
}
