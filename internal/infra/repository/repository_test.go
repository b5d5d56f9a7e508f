package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/BruksfildServices01/clinic-sync/internal/db"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbpkg.Open(filepath.Join(t.TempDir(), "cache.db"), false)
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func appt(id, patient, doctor int64, date, clock, status string) *models.Appointment {
	return &models.Appointment{
		ID:          id,
		Date:        date,
		Time:        clock,
		Status:      status,
		PatientID:   patient,
		DoctorID:    doctor,
		LastUpdated: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IsSynced:    true,
	}
}

func TestAppointmentUpsertAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentGormRepository(openTestDB(t))

	t.Run("missing is not an error", func(t *testing.T) {
		got, err := repo.GetByID(ctx, 42)
		if err != nil || got != nil {
			t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
		}
	})

	t.Run("replace on duplicate key", func(t *testing.T) {
		if err := repo.Upsert(ctx, appt(1, 10, 20, "2026-03-01", "09:00:00", "Pending")); err != nil {
			t.Fatalf("first upsert: %v", err)
		}
		if err := repo.Upsert(ctx, appt(1, 10, 20, "2026-03-01", "09:00:00", "Confirmed")); err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		got, err := repo.GetByID(ctx, 1)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status != "Confirmed" {
			t.Fatalf("expected replaced status, got %q", got.Status)
		}
	})

	t.Run("rejects unassigned id", func(t *testing.T) {
		if err := repo.Upsert(ctx, appt(0, 10, 20, "2026-03-01", "09:00:00", "Pending")); err == nil {
			t.Fatal("expected error for id 0")
		}
	})
}

func TestAppointmentQueryByOwnerOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentGormRepository(openTestDB(t))

	seed := []*models.Appointment{
		appt(1, 10, 20, "2026-03-01", "09:00:00", "Pending"),
		appt(2, 10, 21, "2026-03-02", "08:00:00", "Pending"),
		appt(3, 10, 20, "2026-03-01", "15:30:00", "Confirmed"),
		appt(4, 11, 20, "2026-04-01", "10:00:00", "Pending"),
	}
	for _, ap := range seed {
		if err := repo.Upsert(ctx, ap); err != nil {
			t.Fatalf("seed %d: %v", ap.ID, err)
		}
	}

	got, err := repo.QueryByOwner(ctx, models.Owner{Role: models.RolePatient, ID: 10})
	if err != nil {
		t.Fatalf("QueryByOwner: %v", err)
	}
	want := []int64{2, 3, 1}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got id %d, want %d", i, got[i].ID, id)
		}
	}

	doctorRows, err := repo.QueryByOwner(ctx, models.Owner{Role: models.RoleDoctor, ID: 20})
	if err != nil {
		t.Fatalf("QueryByOwner doctor: %v", err)
	}
	if len(doctorRows) != 3 || doctorRows[0].ID != 4 {
		t.Fatalf("unexpected doctor rows %+v", doctorRows)
	}
}

func TestAppointmentUnsyncedLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentGormRepository(openTestDB(t))

	dirty := appt(5, 10, 20, "2026-03-01", "09:00:00", "Cancelled")
	dirty.IsSynced = false
	dirty.PendingAction = "cancel"
	dirty.SyncedStatus = "Confirmed"
	if err := repo.Upsert(ctx, dirty); err != nil {
		t.Fatalf("upsert dirty: %v", err)
	}
	if err := repo.Upsert(ctx, appt(6, 12, 20, "2026-03-01", "10:00:00", "Pending")); err != nil {
		t.Fatalf("upsert clean: %v", err)
	}

	all, err := repo.QueryUnsynced(ctx, models.Owner{})
	if err != nil || len(all) != 1 || all[0].ID != 5 {
		t.Fatalf("QueryUnsynced all: %v %+v", err, all)
	}
	other, err := repo.QueryUnsynced(ctx, models.Owner{Role: models.RolePatient, ID: 12})
	if err != nil || len(other) != 0 {
		t.Fatalf("QueryUnsynced scoped: %v %+v", err, other)
	}

	for i := 0; i < 2; i++ {
		if err := repo.MarkSynced(ctx, 5); err != nil {
			t.Fatalf("MarkSynced #%d: %v", i, err)
		}
	}
	got, _ := repo.GetByID(ctx, 5)
	if !got.IsSynced || got.PendingAction != "" || got.SyncedStatus != "Cancelled" {
		t.Fatalf("unexpected row after MarkSynced %+v", got)
	}

	for i := 0; i < 2; i++ {
		if err := repo.Delete(ctx, 5); err != nil {
			t.Fatalf("Delete #%d: %v", i, err)
		}
	}
	if got, _ := repo.GetByID(ctx, 5); got != nil {
		t.Fatal("expected row to be gone")
	}
}

func TestAppointmentMutate(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentGormRepository(openTestDB(t))

	t.Run("insert when absent", func(t *testing.T) {
		out, written, err := repo.Mutate(ctx, 9, func(cur *models.Appointment) (*models.Appointment, error) {
			if cur != nil {
				t.Fatal("expected no current row")
			}
			return appt(0, 10, 20, "2026-05-05", "11:00:00", "Pending"), nil
		})
		if err != nil || !written || out.ID != 9 {
			t.Fatalf("Mutate insert: %v %v %+v", err, written, out)
		}
	})

	t.Run("skip leaves row untouched", func(t *testing.T) {
		_, written, err := repo.Mutate(ctx, 9, func(cur *models.Appointment) (*models.Appointment, error) {
			return nil, nil
		})
		if err != nil || written {
			t.Fatalf("expected no write, got %v %v", written, err)
		}
	})

	t.Run("callback error propagates unwrapped", func(t *testing.T) {
		boom := httperr.ErrBusiness(httperr.CodeInvalidTransition)
		_, _, err := repo.Mutate(ctx, 9, func(cur *models.Appointment) (*models.Appointment, error) {
			return nil, boom
		})
		if !httperr.IsBusiness(err, httperr.CodeInvalidTransition) {
			t.Fatalf("expected business error, got %v", err)
		}
		if httperr.IsKind(err, httperr.KindStorageFailure) {
			t.Fatal("callback errors are not storage failures")
		}
	})
}

func TestAppointmentConcurrentSameKeyWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentGormRepository(openTestDB(t))
	if err := repo.Upsert(ctx, appt(7, 10, 20, "2026-03-01", "09:00:00", "Pending")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.Mutate(ctx, 7, func(cur *models.Appointment) (*models.Appointment, error) {
				cur.FailedAttempts++
				return cur, nil
			})
			if err != nil {
				t.Errorf("Mutate: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := repo.GetByID(ctx, 7)
	if got.FailedAttempts != writers {
		t.Fatalf("lost updates: got %d, want %d", got.FailedAttempts, writers)
	}
}

func TestPrescriptionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPrescriptionGormRepository(openTestDB(t))
	owner := models.Owner{Role: models.RolePatient, ID: 10}
	note := "after meals"

	local := &models.Prescription{
		AppointmentID: 3,
		Medications: models.Medications{
			{Name: "Ibuprofen", Dosage: "200mg", Frequency: "2x/day", Instructions: &note},
			{Name: "Omeprazole", Dosage: "20mg", Frequency: "daily"},
		},
		IssuedDate: "2026-03-01",
		PatientID:  10,
		DoctorID:   20,
		IsSynced:   false,
	}
	if err := repo.Upsert(ctx, local); err != nil {
		t.Fatalf("upsert local: %v", err)
	}
	if local.LocalKey == "" {
		t.Fatal("expected a local key to be assigned")
	}

	t.Run("medications keep order", func(t *testing.T) {
		got, err := repo.GetByLocalKey(ctx, local.LocalKey)
		if err != nil || got == nil {
			t.Fatalf("GetByLocalKey: %v", err)
		}
		if len(got.Medications) != 2 || got.Medications[0].Name != "Ibuprofen" {
			t.Fatalf("unexpected medications %+v", got.Medications)
		}
		if got.Medications[0].Instructions == nil || *got.Medications[0].Instructions != note {
			t.Fatal("instructions lost")
		}
	})

	t.Run("unsynced until server id", func(t *testing.T) {
		rows, err := repo.QueryUnsynced(ctx, owner)
		if err != nil || len(rows) != 1 {
			t.Fatalf("QueryUnsynced: %v %d", err, len(rows))
		}

		local.ID = 77
		if err := repo.Upsert(ctx, local); err != nil {
			t.Fatalf("assign server id: %v", err)
		}
		if err := repo.MarkSynced(ctx, local.LocalKey); err != nil {
			t.Fatalf("MarkSynced: %v", err)
		}
		got, err := repo.GetByID(ctx, 77)
		if err != nil || got == nil || !got.IsSynced {
			t.Fatalf("GetByID after sync: %v %+v", err, got)
		}
	})

	t.Run("pull reuses existing local key", func(t *testing.T) {
		remote := &models.Prescription{ID: 77, AppointmentID: 3, IssuedDate: "2026-03-02", PatientID: 10, DoctorID: 20, IsSynced: true}
		if err := repo.Upsert(ctx, remote); err != nil {
			t.Fatalf("upsert remote: %v", err)
		}
		rows, err := repo.QueryByOwner(ctx, owner)
		if err != nil || len(rows) != 1 {
			t.Fatalf("expected a single row, got %d (%v)", len(rows), err)
		}
		if rows[0].LocalKey != local.LocalKey || rows[0].IssuedDate != "2026-03-02" {
			t.Fatalf("unexpected row %+v", rows[0])
		}
	})

	t.Run("orphan appointment tolerated", func(t *testing.T) {
		orphan := &models.Prescription{ID: 78, AppointmentID: 999, PatientID: 10, IsSynced: true}
		if err := repo.Upsert(ctx, orphan); err != nil {
			t.Fatalf("orphan upsert: %v", err)
		}
		got, err := repo.GetByAppointment(ctx, 999)
		if err != nil || got == nil || got.ID != 78 {
			t.Fatalf("GetByAppointment: %v %+v", err, got)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if err := repo.Delete(ctx, 78); err != nil {
				t.Fatalf("Delete: %v", err)
			}
		}
		if err := repo.DeleteLocal(ctx, "missing"); err != nil {
			t.Fatalf("DeleteLocal missing: %v", err)
		}
	})
}

func TestNotificationRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationGormRepository(openTestDB(t))
	owner := models.Owner{Role: models.RoleDoctor, ID: 20}

	n := &models.Notification{ID: 1, OwnerKey: owner.String(), Title: "New booking", CreatedAt: time.Now()}
	if err := repo.Save(ctx, n); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ok, err := repo.MarkRead(ctx, owner, 1)
	if err != nil || !ok {
		t.Fatalf("MarkRead: %v %v", ok, err)
	}

	again := &models.Notification{ID: 1, OwnerKey: owner.String(), Title: "New booking (edited)", CreatedAt: time.Now()}
	if err := repo.Save(ctx, again); err != nil {
		t.Fatalf("re-Save: %v", err)
	}

	list, err := repo.List(ctx, owner, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v %d", err, len(list))
	}
	if !list[0].Read || list[0].Title != "New booking (edited)" {
		t.Fatalf("read flag must survive redelivery: %+v", list[0])
	}

	ok, err = repo.MarkRead(ctx, models.Owner{Role: models.RolePatient, ID: 1}, 1)
	if err != nil || ok {
		t.Fatalf("other owner must not see notification: %v %v", ok, err)
	}
}

func TestStorageErrClassification(t *testing.T) {
	err := storageErr("op", errors.New("disk I/O error"))
	if !httperr.IsKind(err, httperr.KindStorageFailure) {
		t.Fatalf("expected StorageFailure, got %v", err)
	}
	if !errors.Is(storageErr("op", context.Canceled), context.Canceled) {
		t.Fatal("context errors pass through")
	}
	if storageErr("op", nil) != nil {
		t.Fatal("nil stays nil")
	}
}
