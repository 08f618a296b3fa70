package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"aegis-ecc/core/rbac"
)

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.authHandler.Register)
		r.Post("/auth/login", s.authHandler.Login)
		r.Post("/auth/logout", s.withSession(s.authHandler.Logout))
		r.Get("/auth/me", s.withSession(s.authHandler.Me))

		r.Get("/categories", s.guard(rbac.PermIncidentsView, s.refsHandler.ListCategories))
		r.Post("/categories", s.guard(rbac.PermIncidentsManage, s.refsHandler.CreateCategory))
		r.Patch("/categories/{id}", s.guard(rbac.PermIncidentsManage, s.refsHandler.SetCategoryActive))
		r.Get("/agencies", s.guard(rbac.PermIncidentsView, s.refsHandler.ListAgencies))
		r.Post("/agencies", s.guard(rbac.PermIncidentsManage, s.refsHandler.CreateAgency))

		r.Post("/incidents", s.guard(rbac.PermIncidentsReport, s.incidentsHandler.Create))
		r.Get("/incidents", s.guard(rbac.PermIncidentsView, s.incidentsHandler.List))
		r.Get("/incidents/{id}", s.guard(rbac.PermIncidentsView, s.incidentsHandler.Get))
		r.Get("/incidents/{id}/media", s.guard(rbac.PermIncidentsView, s.incidentsHandler.ListMedia))
		r.Post("/incidents/{id}/close", s.guard(rbac.PermIncidentsReport, s.incidentsHandler.Close))
		r.Patch("/incidents/{id}/status", s.guard(rbac.PermIncidentsManage, s.incidentsHandler.UpdateStatus))
		r.Post("/incidents/{id}/verifications", s.guard(rbac.PermIncidentsVerify, s.incidentsHandler.Verify))
		r.Get("/incidents/{id}/verifications", s.guard(rbac.PermIncidentsVerify, s.incidentsHandler.ListVerifications))
		r.Delete("/incidents/{id}", s.guard(rbac.PermIncidentsManage, s.incidentsHandler.Delete))

		r.Post("/missions", s.guard(rbac.PermMissionsDispatch, s.missionsHandler.Create))
		r.Get("/missions", s.guard(rbac.PermMissionsView, s.missionsHandler.List))
		r.Get("/missions/{id}", s.guard(rbac.PermMissionsView, s.missionsHandler.Get))
		r.Post("/missions/{id}/advance", s.guard(rbac.PermMissionsAdvance, s.missionsHandler.Advance))
		r.Post("/missions/{id}/assignments", s.guard(rbac.PermMissionsDispatch, s.missionsHandler.Assign))
		r.Get("/missions/{id}/assignments", s.guard(rbac.PermMissionsView, s.missionsHandler.ListAssignments))
		r.Get("/missions/{id}/logs", s.guard(rbac.PermMissionsView, s.missionsHandler.ListLogs))
		r.Post("/missions/{id}/tracking", s.guard(rbac.PermMissionsAdvance, s.missionsHandler.RecordTracking))
		r.Get("/missions/{id}/tracking", s.guard(rbac.PermMissionsView, s.missionsHandler.ListTracking))
		r.Post("/missions/{id}/report", s.guard(rbac.PermMissionsAdvance, s.missionsHandler.SubmitReport))
		r.Get("/missions/{id}/report", s.guard(rbac.PermMissionsView, s.missionsHandler.GetReport))

		r.Post("/applications", s.guard(rbac.PermApplicationsApply, s.applicationsHandler.Submit))
		r.Get("/applications", s.guard(rbac.PermApplicationsApply, s.applicationsHandler.List))
		r.Get("/applications/{id}", s.guard(rbac.PermApplicationsApply, s.applicationsHandler.Get))
		r.Get("/applications/{id}/certificates", s.guard(rbac.PermApplicationsApply, s.applicationsHandler.ListCertificates))
		r.Put("/applications/{id}", s.guard(rbac.PermApplicationsApply, s.applicationsHandler.Update))
		r.Post("/applications/{id}/withdraw", s.guard(rbac.PermApplicationsApply, s.applicationsHandler.Withdraw))
		r.Post("/applications/{id}/review", s.guard(rbac.PermApplicationsReview, s.applicationsHandler.Review))

		r.Post("/profiles/me", s.guard(rbac.PermProfilesManageOwn, s.profilesHandler.CreateMine))
		r.Patch("/profiles/me", s.guard(rbac.PermProfilesManageOwn, s.profilesHandler.UpdateMine))
		r.Get("/profiles/me", s.guard(rbac.PermProfilesManageOwn, s.profilesHandler.GetMine))
		r.Get("/profiles", s.guard(rbac.PermProfilesView, s.profilesHandler.List))
		r.Get("/profiles/{id}", s.guard(rbac.PermProfilesView, s.profilesHandler.Get))

		r.Get("/volunteers/me", s.guard(rbac.PermApplicationsApply, s.profilesHandler.GetVolunteer))
		r.Patch("/volunteers/me", s.guard(rbac.PermApplicationsApply, s.profilesHandler.UpdateVolunteer))
		r.Patch("/volunteers/me/availability", s.guard(rbac.PermApplicationsApply, s.profilesHandler.SetAvailability))

		r.Get("/logs", s.guard(rbac.PermAuditView, s.logsHandler.List))
	})

	return r
}

// guard chains session resolution with a permission check.
func (s *Server) guard(perm rbac.Permission, next http.HandlerFunc) http.HandlerFunc {
	return s.withSession(s.requirePermission(perm)(next))
}
