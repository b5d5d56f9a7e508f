package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/clinic-sync/internal/audit"
	"github.com/BruksfildServices01/clinic-sync/internal/backup"
	"github.com/BruksfildServices01/clinic-sync/internal/freshness"
	"github.com/BruksfildServices01/clinic-sync/internal/handlers"
	infraRepo "github.com/BruksfildServices01/clinic-sync/internal/infra/repository"
	"github.com/BruksfildServices01/clinic-sync/internal/media"
	"github.com/BruksfildServices01/clinic-sync/internal/middleware"
	"github.com/BruksfildServices01/clinic-sync/internal/session"
	"github.com/BruksfildServices01/clinic-sync/internal/stream"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
	ucAppointment "github.com/BruksfildServices01/clinic-sync/internal/usecase/appointment"
	ucPrescription "github.com/BruksfildServices01/clinic-sync/internal/usecase/prescription"
)

// Deps are the long-lived components built by main.
type Deps struct {
	Engine        *syncengine.Engine
	Scheduler     *syncengine.Scheduler
	Sessions      *session.Manager
	Freshness     freshness.Tracker
	Journal       *audit.Logger
	Appointments  *infraRepo.AppointmentGormRepository
	Notifications *infraRepo.NotificationGormRepository
	Bridge        *stream.Bridge
	Media         *media.Cache

	// Exporter is nil when no backup bucket is configured.
	Exporter *backup.Exporter
}

func RegisterRoutes(r *gin.Engine, d Deps) {

	// ======================================================
	// MIDDLEWARE GLOBAL
	// ======================================================
	r.Use(middleware.CORSMiddleware())

	// ======================================================
	// USE CASES
	// ======================================================
	listAppointmentsUC := ucAppointment.NewListAppointments(d.Engine)
	getAppointmentUC := ucAppointment.NewGetAppointment(d.Engine)
	cancelAppointmentUC := ucAppointment.NewCancelAppointment(d.Engine)
	confirmAppointmentUC := ucAppointment.NewConfirmAppointment(d.Engine)
	rejectAppointmentUC := ucAppointment.NewRejectAppointment(d.Engine)
	completeAppointmentUC := ucAppointment.NewCompleteAppointment(d.Engine)

	createPrescriptionUC := ucPrescription.NewCreatePrescription(d.Engine)
	getPrescriptionUC := ucPrescription.NewGetPrescription(d.Engine)

	// ======================================================
	// HANDLERS
	// ======================================================
	authHandler := handlers.NewAuthHandler(d.Sessions, d.Freshness, d.Scheduler.Trigger)

	appointmentHandler := handlers.NewAppointmentHandler(
		listAppointmentsUC,
		getAppointmentUC,
		cancelAppointmentUC,
		confirmAppointmentUC,
		rejectAppointmentUC,
		completeAppointmentUC,
		getPrescriptionUC,
		d.Engine,
	)

	prescriptionHandler := handlers.NewPrescriptionHandler(createPrescriptionUC)
	syncHandler := handlers.NewSyncHandler(d.Engine, d.Journal)
	notificationHandler := handlers.NewNotificationHandler(d.Notifications, d.Bridge)
	mediaHandler := handlers.NewMediaHandler(d.Media, d.Appointments)

	var exporter handlers.Exporter
	if d.Exporter != nil {
		exporter = d.Exporter
	}
	backupHandler := handlers.NewBackupHandler(exporter)

	// ======================================================
	// PUBLIC
	// ======================================================
	r.GET("/health", handlers.Health)

	api := r.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/me", authHandler.Me)
	}

	// ======================================================
	// SIGNED IN
	// ======================================================
	private := api.Group("")
	private.Use(middleware.SessionRequired(d.Sessions))
	{
		private.GET("/appointments", appointmentHandler.List)
		private.GET("/appointments/stream", appointmentHandler.Stream)
		private.GET("/appointments/:id", appointmentHandler.Get)
		private.GET("/appointments/:id/prescription", appointmentHandler.Prescription)
		private.PATCH("/appointments/:id/cancel", appointmentHandler.Cancel)
		private.PATCH("/appointments/:id/confirm", appointmentHandler.Confirm)
		private.PATCH("/appointments/:id/reject", appointmentHandler.Reject)
		private.PATCH("/appointments/:id/complete", appointmentHandler.Complete)

		private.POST("/prescriptions", prescriptionHandler.Create)

		private.POST("/sync", syncHandler.Run)
		private.GET("/sync/status", syncHandler.Status)
		private.GET("/sync/journal", syncHandler.Journal)

		private.GET("/notifications", notificationHandler.List)
		private.PATCH("/notifications/:id/read", notificationHandler.MarkRead)

		private.POST("/backup", backupHandler.Export)

		private.GET("/media", mediaHandler.Get)
	}
}
